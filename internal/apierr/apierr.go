// Package apierr classifies upstream API failures and drives the retry policy
// shared by every network-calling component.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxBodySnippet bounds how much of a non-JSON error body ends up in the
// error message.
const maxBodySnippet = 200

// APIError is a classified upstream failure. Status is zero for failures that
// never produced an HTTP response (missing credentials, transport errors).
type APIError struct {
	Message    string
	Status     int
	Service    string
	Retryable  bool
	RetryAfter time.Duration
	Timestamp  time.Time
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// NotConfigured builds the fatal, non-retryable error used when a service
// credential is missing.
func NotConfigured(service, message string) *APIError {
	return &APIError{
		Message:   message,
		Service:   service,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// FromResponse builds an APIError from a failed HTTP response. It consumes
// the body: JSON error text is preferred, otherwise the first 200 bytes of
// the raw body stand in for a message.
func FromResponse(resp *http.Response, service string) *APIError {
	status := resp.StatusCode
	message := fmt.Sprintf("%s API error: %d", service, status)

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr == nil && len(body) > 0 {
		if msg := messageFromBody(resp.Header.Get("Content-Type"), body); msg != "" {
			message = msg
		}
	}

	apiErr := &APIError{
		Message:   message,
		Status:    status,
		Service:   service,
		Retryable: status == http.StatusTooManyRequests || (status >= 500 && status < 600),
		Timestamp: time.Now().UTC(),
	}

	if after := resp.Header.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(after)); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	return apiErr
}

func messageFromBody(contentType string, body []byte) string {
	if strings.Contains(contentType, "application/json") {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Error.Message != "" {
				return payload.Error.Message
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
		return ""
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxBodySnippet {
		text = text[:maxBodySnippet]
	}
	return text
}

// IsRetryable reports whether the error is worth retrying. A classified
// APIError is honored as-is; transport-level failures are retryable;
// everything else is not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// UserMessage maps an error to a single user-facing sentence. Raw error
// objects never reach the UI layer; this is the only translation point.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		service := apiErr.Service
		if service == "" {
			service = "the service"
		}

		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return fmt.Sprintf("Invalid API key. Please check your %s API key in Settings.", service)
		case apiErr.Status == http.StatusTooManyRequests:
			return fmt.Sprintf("Rate limit reached for %s. Will retry automatically.", service)
		case apiErr.Status >= 500 && apiErr.Status < 600:
			return fmt.Sprintf("%s is temporarily unavailable. Please try again later.", service)
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return "Unable to connect. Please check your internet connection."
	}

	return "Something went wrong. Please try again."
}

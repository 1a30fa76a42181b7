// Package gemini implements scoring and content generation on the Gemini API.
package gemini

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"jobdigest/internal/apierr"
)

const (
	defaultModel = "gemini-2.5-flash"

	serviceName = "gemini"

	resumeCacheTTL = 24 * time.Hour
)

// Generator wraps the GenAI client. The resume prefix (scoring rubric plus
// resume text) is uploaded once as cached content and referenced by every
// scoring call, so only the per-job payload is billed per request.
type Generator struct {
	client    *genai.Client
	modelName string

	cacheMu     sync.Mutex
	resumeCache map[string]cachedResume
}

type cachedResume struct {
	name string
	hash string
}

// NewGenerator creates a Generator for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Generator{client: client, modelName: model}, nil
}

// EnsureResumeCache uploads the resume prefix as a cached content resource
// and returns its name. The payload is hashed so an unchanged resume reuses
// the existing resource and an edited one replaces it.
func (g *Generator) EnsureResumeCache(ctx context.Context, cacheID, displayName, payload string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	if cacheID = strings.TrimSpace(cacheID); cacheID == "" {
		return "", errors.New("cache id is required")
	}
	if payload = strings.TrimSpace(payload); payload == "" {
		return "", errors.New("cache payload must not be empty")
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(payload)))

	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	if existing, ok := g.resumeCache[cacheID]; ok && existing.hash == hash && existing.name != "" {
		return existing.name, nil
	}

	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = fmt.Sprintf("resume-%s", cacheID)
	}

	cached, err := g.client.Caches.Create(ctx, g.modelName, &genai.CreateCachedContentConfig{
		DisplayName: displayName,
		TTL:         resumeCacheTTL,
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: payload}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("create resume cache: %w", wrapError(err))
	}

	name := strings.TrimSpace(cached.Name)
	if name == "" {
		return "", errors.New("gemini api returned empty cache name")
	}

	if g.resumeCache == nil {
		g.resumeCache = make(map[string]cachedResume)
	}
	g.resumeCache[cacheID] = cachedResume{name: name, hash: hash}

	return name, nil
}

// GenerateJSON sends the prompt and returns the raw JSON response constrained
// by schema. cacheName may be empty to run without cached content.
func (g *Generator) GenerateJSON(ctx context.Context, prompt, cacheName string, schema *genai.Schema) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if cacheName = strings.TrimSpace(cacheName); cacheName != "" {
		cfg.CachedContent = cacheName
	}
	return g.generateContent(ctx, prompt, cfg)
}

// GenerateContent sends the prompt and returns the first textual response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return g.generateContent(ctx, prompt, nil)
}

func (g *Generator) generateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", wrapError(err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

// wrapError maps SDK errors onto the shared retry classification. Rate limits
// and server errors become retryable, everything else fails fast.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	return &apierr.APIError{
		Message:   apiErr.Message,
		Status:    apiErr.Code,
		Service:   serviceName,
		Retryable: apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500,
		Timestamp: time.Now().UTC(),
	}
}

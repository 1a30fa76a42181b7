// Package secrets resolves upstream API credentials from the environment or
// from key files referenced in the configuration.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a credential may come from. Resolution order is
// Env, then File, then Value; the first non-empty wins.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Env is the environment variable holding the secret.
	Env string
	// File points to a file containing the secret value.
	File string
	// Value is an inline secret value provided via configuration.
	Value string
}

// Load resolves the secret from the source. The returned value is always
// trimmed. An error is returned when no location yields a usable secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value, nil
		}
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return value, nil
	}

	if value := strings.TrimSpace(src.Value); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("%s is not configured", name)
}

// LoadOptional is Load for secrets that may legitimately be absent: a fully
// unconfigured source yields an empty value instead of an error.
func LoadOptional(src Source) (string, error) {
	value, err := Load(src)
	if err != nil && src.File == "" {
		return "", nil
	}
	return value, err
}

package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"mercator-hq/courier/pkg/config"
)

// secretRef matches ${secret:name}.
var secretRef = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver replaces secret references using an ordered provider list.
type Resolver struct {
	providers []Provider
}

// NewResolver creates a resolver that tries providers in order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// FromConfig builds the env provider and, when a directory is configured
// and present, the file provider. A missing directory is logged and skipped.
func FromConfig(cfg *config.SecretsConfig) *Resolver {
	providers := []Provider{NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			slog.Warn("file secrets disabled", "dir", cfg.Dir, "error", err)
		} else {
			providers = append(providers, fp)
		}
	}
	return NewResolver(providers...)
}

// Lookup returns the first value any provider holds for name. Errors other
// than ErrNotFound stop the search.
func (r *Resolver) Lookup(ctx context.Context, name string) (string, error) {
	for _, p := range r.providers {
		value, err := p.Lookup(ctx, name)
		if err == nil {
			slog.Debug("secret resolved", "name", name, "provider", p.Name())
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve replaces every reference in input. On error the input is
// returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	var errs []error
	output := secretRef.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRef.FindStringSubmatch(match)[1]
		value, err := r.Lookup(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return input, errors.Join(errs...)
	}
	return output, nil
}

// ResolveConfig resolves references in the credential fields of cfg in
// place: the backend API key, backend custom headers and the client API key.
// Fields that fail to resolve keep their reference.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []error
	resolve := func(field string, dst *string) {
		resolved, err := r.Resolve(ctx, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = resolved
	}

	resolve("backend.api_key", &cfg.Backend.APIKey)
	resolve("auth.client_api_key", &cfg.Auth.ClientAPIKey)

	if len(cfg.Backend.CustomHeaders) > 0 {
		keys := make([]string, 0, len(cfg.Backend.CustomHeaders))
		for k := range cfg.Backend.CustomHeaders {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		headers := make(map[string]string, len(keys))
		for _, k := range keys {
			v := cfg.Backend.CustomHeaders[k]
			resolve("backend.custom_headers."+k, &v)
			headers[k] = v
		}
		cfg.Backend.CustomHeaders = headers
	}

	return errors.Join(errs...)
}

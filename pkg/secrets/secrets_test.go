package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/courier/pkg/config"
)

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("TEST_SECRET_OPENAI_API_KEY", "sk-from-env")
	p := NewEnvProvider("TEST_SECRET_")

	got, err := p.Lookup(context.Background(), "openai-api-key")
	if err != nil || got != "sk-from-env" {
		t.Errorf("Lookup() = %q, %v", got, err)
	}

	_, err = p.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing secret err = %v, want ErrNotFound", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "openai-api-key", "sk-from-file\n", 0600)
	writeSecret(t, dir, "readonly", "ro", 0400)
	writeSecret(t, dir, "world-readable", "leak", 0644)

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		secret   string
		want     string
		notFound bool
		wantErr  string
	}{
		{name: "trimmed", secret: "openai-api-key", want: "sk-from-file"},
		{name: "read only", secret: "readonly", want: "ro"},
		{name: "missing", secret: "nope", notFound: true},
		{name: "insecure mode", secret: "world-readable", wantErr: "insecure permissions"},
		{name: "traversal", secret: "../etc/passwd", wantErr: "invalid secret name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Lookup(context.Background(), tt.secret)
			switch {
			case tt.notFound:
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("err = %v, want ErrNotFound", err)
				}
			case tt.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
			default:
				if err != nil || got != tt.want {
					t.Errorf("Lookup() = %q, %v; want %q", got, err, tt.want)
				}
			}
		})
	}

	if _, err := NewFileProvider(filepath.Join(dir, "openai-api-key")); err == nil {
		t.Error("NewFileProvider on a file should fail")
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Setenv("RESOLVE_TEST_A", "alpha")
	dir := t.TempDir()
	writeSecret(t, dir, "b", "beta", 0600)
	fp, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(NewEnvProvider("RESOLVE_TEST_"), fp)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "sk-plain", want: "sk-plain"},
		{name: "env", input: "${secret:a}", want: "alpha"},
		{name: "file fallback", input: "${secret:b}", want: "beta"},
		{name: "embedded", input: "Bearer ${secret:a}-${secret:b}", want: "Bearer alpha-beta"},
		{name: "unresolved", input: "${secret:a} ${secret:zzz}", want: "${secret:a} ${secret:zzz}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_ResolveConfig(t *testing.T) {
	t.Setenv("COURIER_SECRET_OPENAI_API_KEY", "sk-resolved")
	t.Setenv("COURIER_SECRET_CLIENT_KEY", "client-resolved")
	t.Setenv("COURIER_SECRET_ORG", "org-1")

	cfg := config.DefaultConfig()
	cfg.Backend.APIKey = "${secret:openai-api-key}"
	cfg.Auth.ClientAPIKey = "${secret:client-key}"
	cfg.Backend.CustomHeaders = map[string]string{
		"OpenAI-Organization": "${secret:org}",
		"X-Static":            "static",
	}

	if err := FromConfig(&cfg.Secrets).ResolveConfig(context.Background(), cfg); err != nil {
		t.Fatalf("ResolveConfig() error = %v", err)
	}
	if cfg.Backend.APIKey != "sk-resolved" {
		t.Errorf("APIKey = %q", cfg.Backend.APIKey)
	}
	if cfg.Auth.ClientAPIKey != "client-resolved" {
		t.Errorf("ClientAPIKey = %q", cfg.Auth.ClientAPIKey)
	}
	if cfg.Backend.CustomHeaders["OpenAI-Organization"] != "org-1" || cfg.Backend.CustomHeaders["X-Static"] != "static" {
		t.Errorf("CustomHeaders = %v", cfg.Backend.CustomHeaders)
	}

	bad := config.DefaultConfig()
	bad.Backend.APIKey = "${secret:not-set-anywhere}"
	err := FromConfig(&bad.Secrets).ResolveConfig(context.Background(), bad)
	if err == nil || !strings.Contains(err.Error(), "backend.api_key") {
		t.Errorf("err = %v, want backend.api_key failure", err)
	}
	if bad.Backend.APIKey != "${secret:not-set-anywhere}" {
		t.Errorf("unresolved field changed to %q", bad.Backend.APIKey)
	}
}

func TestFromConfig_MissingDir(t *testing.T) {
	r := FromConfig(&config.SecretsConfig{EnvPrefix: "X_", Dir: filepath.Join(t.TempDir(), "absent")})
	if len(r.providers) != 1 || r.providers[0].Name() != "env" {
		t.Errorf("providers = %v", r.providers)
	}
}

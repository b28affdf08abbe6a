package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// The variable name is the prefix followed by the secret name upper-cased
// with hyphens and dots replaced by underscores:
// "openai-api-key" -> "COURIER_SECRET_OPENAI_API_KEY".
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment variable provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// Lookup reads the variable for name. Empty variables count as unset.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	envVar := p.envVar(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, envVar)
	}
	return value, nil
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

func (p *EnvProvider) envVar(name string) string {
	replacer := strings.NewReplacer("-", "_", ".", "_")
	return p.Prefix + strings.ToUpper(replacer.Replace(name))
}

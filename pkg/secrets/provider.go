package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider looks secrets up by name.
type Provider interface {
	// Lookup returns the value of the named secret, or an error wrapping
	// ErrNotFound when the provider does not hold it.
	Lookup(ctx context.Context, name string) (string, error)

	// Name identifies the provider in errors and logs.
	Name() string
}

package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "api_key_identity"

// Identity is the authenticated caller. KeyID doubles as the doctor id on
// diagnoses the caller signs.
type Identity struct {
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// HasScope reports whether the identity carries scope.
func (id Identity) HasScope(scope string) bool {
	return slices.Contains(id.Scopes, scope)
}

// WithIdentity stores id in ctx. Auth calls it; tests use it to skip Auth.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func GetIdentity(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	return id, ok
}

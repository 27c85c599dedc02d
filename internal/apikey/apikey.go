// Package apikey issues and checks bearer API keys. Raw keys are shown once;
// only a bcrypt hash and a lookup prefix are stored.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// PrefixLen is the number of leading characters stored in clear for lookup.
	PrefixLen = 12
	keyMarker = "ctk_"
)

var ErrInvalidParams = errors.New("invalid api key parameters")

// Generate creates a new key. The returned raw key must be handed to the
// caller and is not recoverable afterwards.
func Generate(name string, scopes []string) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: name is required", ErrInvalidParams)
	}
	if len(scopes) == 0 {
		scopes = []string{models.ScopeDoctor}
	}
	for _, s := range scopes {
		if s != models.ScopeDoctor && s != models.ScopeAdmin {
			return "", nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidParams, s)
		}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("reading random bytes: %w", err)
	}
	raw := keyMarker + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Prefix returns the lookup prefix of a raw key, or false if the key is too
// short to have one.
func Prefix(raw string) (string, bool) {
	if len(raw) < PrefixLen {
		return "", false
	}
	return raw[:PrefixLen], true
}

// Matches reports whether raw hashes to key.
func Matches(key *models.APIKey, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil
}

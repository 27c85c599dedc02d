package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/api/response"
	"github.com/kiranshivaraju/cardiotriage/internal/apikey"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createdKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

type KeyHandlers struct {
	store KeyStore
}

func NewKeyHandlers(s KeyStore) *KeyHandlers {
	return &KeyHandlers{store: s}
}

// Create issues a key. The raw key appears only in this response.
func (h *KeyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string   `json:"name"`
		Scopes []string `json:"scopes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	raw, key, err := apikey.Generate(req.Name, req.Scopes)
	if err != nil {
		if errors.Is(err, apikey.ErrInvalidParams) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		slog.Error("generating api key", "error", err)
		internalError(w)
		return
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key with this name already exists", nil)
			return
		}
		slog.Error("creating api key", "error", err)
		internalError(w)
		return
	}

	slog.Info("api key created", "key_id", key.ID, "name", key.Name, "scopes", key.Scopes)
	response.Created(w, createdKey{
		ID:        key.ID,
		Name:      key.Name,
		Key:       raw,
		KeyPrefix: key.KeyPrefix,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	})
}

func (h *KeyHandlers) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		slog.Error("listing api keys", "error", err)
		internalError(w)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.JSON(w, keys)
}

func (h *KeyHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "keyID", "INVALID_KEY_ID")
	if !ok {
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
			return
		}
		slog.Error("revoking api key", "key_id", id, "error", err)
		internalError(w)
		return
	}
	response.NoContent(w)
}

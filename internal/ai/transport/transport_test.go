package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		wantKey string
	}{
		{"plain", `{"risk_level":"low"}`, false, "risk_level"},
		{"fenced", "```json\n{\"risk_level\":\"low\"}\n```", false, "risk_level"},
		{"prose around", `Here you go: {"risk_level":"low"} hope that helps`, false, "risk_level"},
		{"array", `[1,2,3]`, true, ""},
		{"empty", ``, true, ""},
		{"broken", `{"risk_level":`, true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := DecodeObject(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tc.wantKey)
		})
	}
}

func TestPostJSON_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["msg"])
		_, _ = w.Write([]byte(`{"msg":"pong"}`))
	}))
	defer ts.Close()

	var out map[string]string
	err := PostJSON(context.Background(), ts.Client(), ts.URL, map[string]string{"X-Key": "secret"},
		map[string]string{"msg": "ping"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "pong", out["msg"])
}

func TestPostJSON_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	var out map[string]any
	err := PostJSON(context.Background(), ts.Client(), ts.URL, nil, map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestPostJSON_Undecodable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	var out map[string]any
	err := PostJSON(context.Background(), ts.Client(), ts.URL, nil, map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestPostJSON_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := PostJSON(ctx, ts.Client(), ts.URL, nil, map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}

func TestPostJSON_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	var out map[string]any
	err := PostJSON(context.Background(), http.DefaultClient, url, nil, map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestBuildPrompt(t *testing.T) {
	req := models.GenerateRequest{
		Prompt:                 "assess",
		ResponseSchema:         map[string]any{"type": "object"},
		AddContextFromInternet: true,
	}
	p := BuildPrompt(req, true)
	assert.Contains(t, p, GroundingNote)
	assert.Contains(t, p, "assess")
	assert.Contains(t, p, `{"type":"object"}`)

	p = BuildPrompt(models.GenerateRequest{Prompt: "assess"}, false)
	assert.Equal(t, "assess", p)
}

func TestNewChatRequest_ResponseFormat(t *testing.T) {
	withSchema := NewChatRequest("m", models.GenerateRequest{Prompt: "x", ResponseSchema: map[string]any{"type": "object"}})
	assert.Equal(t, "json_schema", withSchema.ResponseFormat.Type)
	require.NotNil(t, withSchema.ResponseFormat.JSONSchema)

	without := NewChatRequest("m", models.GenerateRequest{Prompt: "x"})
	assert.Equal(t, "json_object", without.ResponseFormat.Type)
	assert.Nil(t, without.ResponseFormat.JSONSchema)
}

package story

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClientComplete(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "once upon a time"},
			},
		})
	}))
	defer server.Close()

	client := NewAnthropicClient(server.URL, "test-key", "claude-sonnet-4-5")
	text, err := client.Complete(context.Background(), "tell me a story", 1500)
	require.NoError(t, err)

	assert.Equal(t, "once upon a time", text)
	assert.Equal(t, "claude-sonnet-4-5", gotBody["model"])
	assert.Equal(t, float64(1500), gotBody["max_tokens"])
}

func TestAnthropicClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"type": "overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewAnthropicClient(server.URL, "test-key", "claude-sonnet-4-5")
	_, err := client.Complete(context.Background(), "prompt", 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestAnthropicClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewAnthropicClient(server.URL, "test-key", "claude-sonnet-4-5")
	_, err := client.Complete(context.Background(), "prompt", 100)
	assert.Error(t, err)
}

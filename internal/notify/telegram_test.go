package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTelegramValidatesCredentials(t *testing.T) {
	_, err := NewTelegram("", "chat", nil)
	require.Error(t, err)
	_, err = NewTelegram("token", " ", nil)
	require.Error(t, err)
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	telegram, err := NewTelegram("token-123", "chat-9", nil)
	require.NoError(t, err)
	telegram.baseURL = server.URL

	require.NoError(t, telegram.Send(context.Background(), "order more A-1"))
	require.Equal(t, "/bottoken-123/sendMessage", gotPath)
	require.Equal(t, map[string]string{"chat_id": "chat-9", "text": "order more A-1"}, gotBody)
}

func TestTelegramTruncatesLongMessages(t *testing.T) {
	var gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	telegram, err := NewTelegram("token", "chat", nil)
	require.NoError(t, err)
	telegram.baseURL = server.URL

	require.NoError(t, telegram.Send(context.Background(), strings.Repeat("x", 5000)))
	require.LessOrEqual(t, len([]rune(gotText)), 4096)
	require.True(t, strings.HasSuffix(gotText, "…"))
}

func TestTelegramSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	telegram, err := NewTelegram("token", "chat", nil)
	require.NoError(t, err)
	telegram.baseURL = server.URL

	err = telegram.Send(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "chat not found")
}

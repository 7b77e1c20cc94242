package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomagnet-assist/internal/platform/logger"
)

func TestSendPasswordReset(t *testing.T) {
	var got mailSendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGrid(Config{
		APIKey:    "sg-key",
		BaseURL:   srv.URL + "/",
		FromEmail: "no-reply@clinic.com",
		AppURL:    "https://app.clinic.com/",
	}, logger.NewNop())

	require.NoError(t, m.SendPasswordReset(context.Background(), "ana@example.com", "tok 1"))

	assert.Equal(t, "Bearer sg-key", auth)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "ana@example.com", got.Personalizations[0].To[0].Email)
	require.Len(t, got.Content, 1)
	assert.Contains(t, got.Content[0].Value, "https://app.clinic.com/redefinir-senha?token=tok+1")
}

func TestSendFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	m := NewSendGrid(Config{APIKey: "x", BaseURL: srv.URL, FromEmail: "a@b.c"}, logger.NewNop())
	err := m.SendConfirmation(context.Background(), "ana@example.com", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestDisabledMailerIsNoop(t *testing.T) {
	m := NewSendGrid(Config{}, logger.NewNop())
	assert.False(t, m.Enabled())
	assert.NoError(t, m.SendConfirmation(context.Background(), "ana@example.com", "t"))
}

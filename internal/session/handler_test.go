package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/respond"
)

func newTestRouter(f *fixture, owner uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if owner != uuid.Nil {
				p := &identity.Principal{User: identity.User{ID: owner}, State: identity.Authorized}
				req = req.WithContext(identity.WithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	RegisterRoutes(r, NewHandler(f.svc))
	return r
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env respond.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func TestHandlerAnalyze(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, uuid.New())

	rec := post(t, h, "/analysis", map[string]string{"session_type": "emotional", "complaint": "ansiedade", "pairs": "Timo - Reto"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "emotional", got["sessionType"])
	assert.Contains(t, got, "pairFindings")
	assert.Contains(t, got, "patientSummary")
}

func TestHandlerAnalyzeErrorEnvelopes(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, uuid.New())

	rec := post(t, h, "/analysis", map[string]string{"complaint": "  ", "pairs": "Timo - Reto"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	rec = post(t, h, "/analysis", map[string]string{"complaint": "dor", "pairs": "Timo - Reto", "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	f.analyst.err = errors.New("dial tcp: i/o timeout")
	rec = post(t, h, "/analysis", map[string]string{"complaint": "dor", "pairs": "Timo - Reto"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "analysis_unavailable", errorCode(t, rec))
}

func TestHandlerAnalyzeInProgress(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	f.analyst.block = block
	h := newTestRouter(f, uuid.New())
	body := map[string]string{"complaint": "dor", "pairs": "Timo - Reto"}

	done := make(chan int, 1)
	go func() { done <- post(t, h, "/analysis", body).Code }()
	require.Eventually(t, func() bool { return f.analyst.callCount() == 1 }, time.Second, 5*time.Millisecond)

	rec := post(t, h, "/analysis", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "analysis_in_progress", errorCode(t, rec))

	close(block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHandlerAnalyzeRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, uuid.Nil)

	rec := post(t, h, "/analysis", map[string]string{"complaint": "dor", "pairs": "Timo - Reto"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.analyst.callCount())
}

func TestHandlerSaveAndList(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, uuid.New())

	rec := post(t, h, "/sessions", map[string]any{"patient_id": WalkInID, "analysis": sampleAnalysis()})
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
	assert.Equal(t, WalkInLabel, saved["patient_name"])
	assert.Equal(t, WalkInID, saved["patient_id"])
	assert.Contains(t, saved, "created_at")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions?patient_id="+WalkInID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []SavedSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "dor de cabeça", list[0].Complaint)
}

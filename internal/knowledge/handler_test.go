package knowledge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomagnet-assist/internal/identity"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	owner := uuid.New()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &identity.Principal{User: identity.User{ID: owner}, State: identity.Authorized}
			next.ServeHTTP(w, req.WithContext(identity.WithPrincipal(req.Context(), p)))
		})
	})
	RegisterRoutes(r, NewHandler(newTestService(t)))
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func listLen(t *testing.T, h http.Handler) int {
	t.Helper()
	rec := serve(h, http.MethodGet, "/knowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	return len(entries)
}

func TestHandlerCustomEntryLifecycle(t *testing.T) {
	h := newTestRouter(t)

	rec := serve(h, http.MethodPost, "/knowledge", `{"name":"TIMO / RETO","description":"impacto"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var e Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	assert.Equal(t, 19, listLen(t, h))

	rec = serve(h, http.MethodPut, "/knowledge/"+e.ID, `{"name":"TIMO / RETO","description":"impactar sempre"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "impactar sempre")

	rec = serve(h, http.MethodDelete, "/knowledge/"+e.ID, "")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, 19, listLen(t, h))

	rec = serve(h, http.MethodDelete, "/knowledge/"+e.ID+"?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 18, listLen(t, h))
}

func TestHandlerReservedEntries(t *testing.T) {
	h := newTestRouter(t)

	rec := serve(h, http.MethodDelete, "/knowledge/R1?confirm=true", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "reserved_entry")

	rec = serve(h, http.MethodPut, "/knowledge/R1", `{"name":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, 18, listLen(t, h))
}

func TestHandlerResetRequiresConfirmation(t *testing.T) {
	h := newTestRouter(t)
	rec := serve(h, http.MethodPost, "/knowledge", `{"name":"TIMO / RETO"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(h, http.MethodPost, "/knowledge/reset", "")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, 19, listLen(t, h))

	rec = serve(h, http.MethodPost, "/knowledge/reset?confirm=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 18, listLen(t, h))
}

func TestHandlerSearch(t *testing.T) {
	h := newTestRouter(t)
	rec := serve(h, http.MethodGet, "/knowledge/search?q=bexiga", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "R16", got[0].ID)
}

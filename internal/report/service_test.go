package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
	"biomagnet-assist/internal/session"
)

type fakeSender struct {
	chatID   int64
	data     []byte
	fileName string
	caption  string
	err      error
}

func (f *fakeSender) SendDocument(_ context.Context, chatID int64, data []byte, fileName, caption string) error {
	f.chatID, f.data, f.fileName, f.caption = chatID, data, fileName, caption
	return f.err
}

type fakeSessions map[uuid.UUID]*session.SavedSession

func (f fakeSessions) Get(_ context.Context, ownerID, id uuid.UUID) (*session.SavedSession, error) {
	s, ok := f[id]
	if !ok || s.OwnerID != ownerID {
		return nil, apierr.NotFound("session")
	}
	return s, nil
}

func savedSession(owner uuid.UUID) *session.SavedSession {
	return &session.SavedSession{
		ID:          uuid.New(),
		OwnerID:     owner,
		PatientID:   session.WalkInID,
		PatientName: session.WalkInLabel,
		Analysis: session.Analysis{
			SessionType:       session.Clinical,
			Complaint:         "Enxaqueca recorrente",
			AnalysisNarrative: "Pares compatíveis com reservatórios.",
			PairFindings: []session.PairFinding{
				{PairLabel: "Dente / Rim", LocationOrEmotion: "Dente", PathogenOrMeaning: "Streptococcus"},
			},
			PatientSummary:       "Ajustes de pH realizados.",
			TherapistSuggestions: "Reavaliar em duas semanas.",
		},
		CreatedAt: time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC),
	}
}

// fontPath returns an installed DejaVu font or skips the test.
func fontPath(t *testing.T) string {
	t.Helper()
	for _, p := range fallbackFontPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("no DejaVu font installed")
	return ""
}

func TestSummaryExcludesFindings(t *testing.T) {
	svc, err := NewService(nil, Config{Timezone: "America/Sao_Paulo"}, logger.NewNop())
	require.NoError(t, err)

	got := svc.Summary(savedSession(uuid.New()))
	assert.Equal(t, "RELATÓRIO: Paciente Avulso\nData: 13/03/2026\nQueixa: Enxaqueca recorrente\n\nResumo: Ajustes de pH realizados.", got)
	assert.NotContains(t, got, "Streptococcus")
	assert.NotContains(t, got, "Dente / Rim")
}

func TestNewServiceRejectsUnknownTimezone(t *testing.T) {
	_, err := NewService(nil, Config{Timezone: "Mars/Olympus"}, logger.NewNop())
	assert.Error(t, err)
}

func TestRenderPDFWithoutFont(t *testing.T) {
	svc := &Service{fontPaths: []string{"/nonexistent/font.ttf"}, loc: time.UTC, log: logger.NewNop()}
	_, err := svc.RenderPDF(savedSession(uuid.New()), nil)
	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	svc, err := NewService(nil, Config{FontPath: fontPath(t)}, logger.NewNop())
	require.NoError(t, err)

	data, err := svc.RenderPDF(savedSession(uuid.New()), &identity.Profile{
		DisplayName:    "Dra. Helena",
		RegistrationID: "CRT 1234",
		Signature:      "Helena Souza",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestShareNotConfigured(t *testing.T) {
	svc, err := NewService(&fakeSender{}, Config{}, logger.NewNop())
	require.NoError(t, err)

	err = svc.Share(context.Background(), savedSession(uuid.New()), nil)
	assert.Equal(t, "share_unavailable", apierr.CodeOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, apierr.StatusOf(err))
}

func TestShareSendsDocument(t *testing.T) {
	sender := &fakeSender{}
	svc, err := NewService(sender, Config{FontPath: fontPath(t), ChatID: 42}, logger.NewNop())
	require.NoError(t, err)

	saved := savedSession(uuid.New())
	require.NoError(t, svc.Share(context.Background(), saved, nil))
	assert.Equal(t, int64(42), sender.chatID)
	assert.Equal(t, "relatorio_"+saved.ID.String()+".pdf", sender.fileName)
	assert.Equal(t, "Paciente Avulso (14/03/2026)", sender.caption)
	assert.NotEmpty(t, sender.data)

	sender.err = errors.New("telegram down")
	err = svc.Share(context.Background(), saved, nil)
	assert.Equal(t, "share_failed", apierr.CodeOf(err))
}

func TestSummaryHandler(t *testing.T) {
	svc, err := NewService(nil, Config{}, logger.NewNop())
	require.NoError(t, err)

	owner := uuid.New()
	saved := savedSession(owner)
	h := NewHandler(svc, fakeSessions{saved.ID: saved})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &identity.Principal{User: identity.User{ID: owner}, State: identity.Authorized}
			next.ServeHTTP(w, req.WithContext(identity.WithPrincipal(req.Context(), p)))
		})
	})
	RegisterRoutes(r, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+saved.ID.String()+"/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RELATÓRIO: Paciente Avulso")
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.NewString()+"/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

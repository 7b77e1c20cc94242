// Package report renders saved sessions as plain-text summaries and PDF
// reports, and shares PDFs with the clinic's Telegram chat.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
	"biomagnet-assist/internal/session"
)

const (
	fontFamily   = "DejaVu"
	marginX      = 40.0
	contentWidth = 515.0
	pageBottom   = 790.0
	dateLayout   = "02/01/2006"
)

// Font locations tried after the configured one (Alpine and Debian layouts).
var fallbackFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrShareNotConfigured = errors.New("report sharing is not configured")

type DocumentSender interface {
	SendDocument(ctx context.Context, chatID int64, data []byte, fileName, caption string) error
}

type Config struct {
	FontPath string
	Timezone string
	ChatID   int64
}

type Service struct {
	sender    DocumentSender
	chatID    int64
	fontPaths []string
	loc       *time.Location
	log       *logger.Logger
}

func NewService(sender DocumentSender, cfg Config, log *logger.Logger) (*Service, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load report timezone: %w", err)
		}
		loc = l
	}
	paths := fallbackFontPaths
	if cfg.FontPath != "" {
		paths = append([]string{cfg.FontPath}, fallbackFontPaths...)
	}
	return &Service{
		sender:    sender,
		chatID:    cfg.ChatID,
		fontPaths: paths,
		loc:       loc,
		log:       log.With("service", "report"),
	}, nil
}

// Summary is the patient-facing text report. It carries the complaint and
// the patient-safe summary only, never the pair findings.
func (s *Service) Summary(saved *session.SavedSession) string {
	return fmt.Sprintf("RELATÓRIO: %s\nData: %s\nQueixa: %s\n\nResumo: %s",
		saved.PatientName,
		saved.CreatedAt.In(s.loc).Format(dateLayout),
		saved.Complaint,
		saved.PatientSummary)
}

// RenderPDF builds the full A4 report signed with the therapist's profile.
func (s *Service) RenderPDF(saved *session.SavedSession, therapist *identity.Profile) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(marginX, 40, marginX, 40)
	pdf.AddPage()

	if err := s.loadFont(pdf); err != nil {
		return nil, err
	}
	w := &writer{pdf: pdf}

	w.text(18, "Relatório de Sessão de Biomagnetismo")
	if therapist != nil && therapist.DisplayName != "" {
		w.text(11, therapist.DisplayName)
		if therapist.RegistrationID != "" {
			w.text(10, "Registro: "+therapist.RegistrationID)
		}
		if therapist.BusinessContact != "" {
			w.text(10, therapist.BusinessContact)
		}
	}
	w.gap(10)

	w.text(11, "Paciente: "+saved.PatientName)
	w.text(11, "Data: "+saved.CreatedAt.In(s.loc).Format(dateLayout+" 15:04"))
	w.text(11, "Tipo de sessão: "+sessionTypeLabel(saved.SessionType))
	w.gap(10)

	w.section("Queixa Principal", saved.Complaint)
	w.section("Análise Profissional", saved.AnalysisNarrative)

	w.heading("Pares Encontrados")
	if len(saved.PairFindings) == 0 {
		w.text(10, "Nenhum par registrado.")
	}
	for i, f := range saved.PairFindings {
		w.text(10, fmt.Sprintf("%d. %s | %s | %s", i+1, f.PairLabel, f.LocationOrEmotion, f.PathogenOrMeaning))
	}
	w.gap(10)

	w.section("Resumo para o Paciente", saved.PatientSummary)
	w.section("Sugestões ao Terapeuta", saved.TherapistSuggestions)

	if therapist != nil && therapist.Signature != "" {
		w.gap(20)
		w.text(10, "______________________________")
		w.text(10, therapist.Signature)
	}
	if w.err != nil {
		return nil, fmt.Errorf("render report: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Share sends the PDF report to the configured chat.
func (s *Service) Share(ctx context.Context, saved *session.SavedSession, therapist *identity.Profile) error {
	if s.sender == nil || s.chatID == 0 {
		return apierr.New(http.StatusServiceUnavailable, "share_unavailable", ErrShareNotConfigured)
	}
	data, err := s.RenderPDF(saved, therapist)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("%s (%s)", saved.PatientName, saved.CreatedAt.In(s.loc).Format(dateLayout))
	if err := s.sender.SendDocument(ctx, s.chatID, data, FileName(saved), caption); err != nil {
		s.log.Error("report share failed", "session", saved.ID, "error", err)
		return apierr.New(http.StatusBadGateway, "share_failed", fmt.Errorf("send report: %w", err))
	}
	s.log.Info("report shared", "session", saved.ID, "bytes", len(data))
	return nil
}

func FileName(saved *session.SavedSession) string {
	return fmt.Sprintf("relatorio_%s.pdf", saved.ID)
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	s.log.Error("no report font could be loaded", "tried", s.fontPaths, "error", lastErr)
	return fmt.Errorf("load report font (install ttf-dejavu or set report.font_path): %w", lastErr)
}

func sessionTypeLabel(t session.SessionType) string {
	if t == session.Emotional {
		return "Desbloqueio Emocional"
	}
	return "Biomagnetismo Clínico"
}

// writer lays out wrapped text and keeps the first error.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) heading(title string) {
	w.text(13, title)
	w.gap(2)
}

func (w *writer) section(title, body string) {
	w.heading(title)
	w.text(10, body)
	w.gap(10)
}

func (w *writer) text(size float64, s string) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(fontFamily, "", size); w.err != nil {
		return
	}
	lineHeight := size * 1.4
	for _, para := range strings.Split(s, "\n") {
		if strings.TrimSpace(para) == "" {
			w.gap(lineHeight / 2)
			continue
		}
		lines, err := w.pdf.SplitText(para, contentWidth)
		if err != nil {
			w.err = err
			return
		}
		for _, line := range lines {
			if w.pdf.GetY()+lineHeight > pageBottom {
				w.pdf.AddPage()
			}
			w.pdf.SetX(marginX)
			if w.err = w.pdf.Cell(nil, line); w.err != nil {
				return
			}
			w.pdf.Br(lineHeight)
		}
	}
}

func (w *writer) gap(h float64) {
	w.pdf.Br(h)
}

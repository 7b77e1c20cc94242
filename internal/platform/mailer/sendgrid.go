// Package mailer delivers account emails (password reset, email
// confirmation) through the SendGrid v3 API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"biomagnet-assist/internal/platform/logger"
)

type Config struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	// AppURL is the frontend origin links in emails point at.
	AppURL string
}

type SendGrid struct {
	cfg        Config
	log        *logger.Logger
	httpClient *http.Client
}

func NewSendGrid(cfg Config, log *logger.Logger) *SendGrid {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &SendGrid{
		cfg: cfg,
		log: log.With("component", "mailer"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *SendGrid) Enabled() bool {
	return s.cfg.APIKey != "" && s.cfg.FromEmail != ""
}

func (s *SendGrid) SendPasswordReset(ctx context.Context, email, token string) error {
	link := s.link("/redefinir-senha", token)
	body := "Recebemos um pedido para redefinir sua senha.\n\n" +
		"Use o link abaixo (válido por tempo limitado):\n" + link + "\n\n" +
		"Se não foi você, ignore este e-mail."
	return s.send(ctx, email, "Redefinição de senha", body)
}

func (s *SendGrid) SendConfirmation(ctx context.Context, email, token string) error {
	link := s.link("/confirmar-email", token)
	body := "Bem-vindo! Confirme seu e-mail para acessar o sistema:\n" + link
	return s.send(ctx, email, "Confirme seu e-mail", body)
}

func (s *SendGrid) link(path, token string) string {
	return s.cfg.AppURL + path + "?token=" + url.QueryEscape(token)
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

func (s *SendGrid) send(ctx context.Context, to, subject, text string) error {
	if !s.Enabled() {
		s.log.Warn("mailer disabled, dropping message", "subject", subject)
		return nil
	}
	payload := mailSendRequest{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          subject,
		Content:          []content{{Type: "text/plain", Value: text}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sendgrid returned status %s: %s", resp.Status, string(b))
	}
	s.log.Debug("mail sent", "subject", subject)
	return nil
}

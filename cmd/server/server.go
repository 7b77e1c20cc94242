package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"biomagnet-assist/internal/agent"
	"biomagnet-assist/internal/config"
	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/knowledge"
	"biomagnet-assist/internal/patient"
	"biomagnet-assist/internal/platform/database"
	"biomagnet-assist/internal/platform/logger"
	"biomagnet-assist/internal/platform/mailer"
	"biomagnet-assist/internal/platform/metrics"
	"biomagnet-assist/internal/platform/respond"
	"biomagnet-assist/internal/platform/telegram"
	"biomagnet-assist/internal/report"
	"biomagnet-assist/internal/session"
)

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// 1. Infrastructure
	db, err := database.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.Storage.Driver); err != nil {
		return err
	}
	log.Info("database ready", "driver", cfg.Storage.Driver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 2. Clients
	var gen agent.Generator = agent.DisabledGenerator{}
	if g, err := agent.NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model); err != nil {
		log.Warn("analysis disabled", "error", err)
	} else {
		gen = g
	}

	var sender report.DocumentSender
	if cfg.Telegram.Token != "" {
		sender = telegram.NewClient(cfg.Telegram.Token)
	} else {
		log.Warn("telegram token not set, report sharing disabled")
	}

	mail := mailer.NewSendGrid(mailer.Config{
		APIKey:    cfg.Mail.SendGridKey,
		BaseURL:   cfg.Mail.BaseURL,
		FromEmail: cfg.Mail.FromEmail,
		FromName:  cfg.Mail.FromName,
		AppURL:    cfg.Mail.AppURL,
	}, log)

	// 3. Services
	identitySvc := identity.NewService(identity.NewRepository(db), identity.NewGate(cfg.Auth.AdminEmails), mail, identity.Config{
		JWTSecret:           cfg.Auth.JWTSecret,
		SessionTTL:          cfg.Auth.SessionTTL,
		TokenTTL:            cfg.Auth.TokenTTL,
		RequireConfirmation: cfg.Auth.RequireConfirmation,
		SignInInterval:      cfg.Auth.SignInInterval,
		SignInBurst:         cfg.Auth.SignInBurst,
	}, log)
	patientSvc := patient.NewService(patient.NewRepository(db), log)
	knowledgeSvc := knowledge.NewService(knowledge.NewRepository(db), log)
	sessionSvc := session.NewService(
		session.NewRepository(db),
		agent.NewAnalyst(gen, log),
		patientSvc,
		knowledgeSvc,
		log,
		session.WithAnalysisTimeout(cfg.Analysis.Timeout),
		session.WithMetrics(m),
	)
	reportSvc, err := report.NewService(sender, report.Config{
		FontPath: cfg.Report.FontPath,
		Timezone: cfg.Report.Timezone,
		ChatID:   cfg.Telegram.ChatID,
	}, log)
	if err != nil {
		return err
	}

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware)
	r.Use(m.Middleware)
	r.Use(cors(cfg.Server.AllowedOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respond.OK(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(reg))

	r.Route("/api", func(r chi.Router) {
		identity.RegisterRoutes(r, identity.NewHandler(identitySvc))

		r.Group(func(r chi.Router) {
			r.Use(identitySvc.Authenticate)
			r.Use(identity.RequireAuthorized)
			patient.RegisterRoutes(r, patient.NewHandler(patientSvc))
			knowledge.RegisterRoutes(r, knowledge.NewHandler(knowledgeSvc))
			session.RegisterRoutes(r, session.NewHandler(sessionSvc))
			report.RegisterRoutes(r, report.NewHandler(reportSvc, sessionSvc))
		})
	})

	// 5. Serve
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cors allows the browser frontend to call the API from its own origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IELTS Speaking Coach - exam practice server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/ielts-coach/internal/api"
	"github.com/ashureev/ielts-coach/internal/app"
	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/config"
	"github.com/ashureev/ielts-coach/internal/conversation"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/health"
	"github.com/ashureev/ielts-coach/internal/identity"
	"github.com/ashureev/ielts-coach/internal/middleware"
	"github.com/ashureev/ielts-coach/internal/observe"
	"github.com/ashureev/ielts-coach/internal/session"
	"github.com/ashureev/ielts-coach/internal/store"
	"github.com/ashureev/ielts-coach/internal/transcript"
	"github.com/ashureev/ielts-coach/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"llm_provider", cfg.LLM.Provider, "llm_model", cfg.LLM.Model, "stt_provider", cfg.STT.Provider)

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("Failed to shut down metrics provider", "error", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Session store ready", "db_path", cfg.DBPath)

	sessions := session.NewManager(repo)
	if err := metrics.RegisterSessionGauge(sessions.Count); err != nil {
		return err
	}

	chat, err := app.NewLLM(cfg.LLM, metrics)
	if err != nil {
		return err
	}
	transcriber, err := app.NewSTT(cfg.STT, metrics)
	if err != nil {
		return err
	}

	transcripts, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := transcripts.Close(); err != nil {
			slog.Warn("Failed to flush transcripts", "error", err)
		}
	}()

	chain := conversation.New(chat, conversation.WithTemperature(cfg.LLM.Temperature))
	ctrl := exam.NewController(chain, exam.WithMode(exam.AutoAdvance), exam.WithObserver(metrics))
	normalizer := audio.NewNormalizer(audio.WithFFmpeg(cfg.FFmpegPath))

	examHandler := api.NewHandler(sessions, ctrl, normalizer, transcriber,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithNormalizeRecorder(metrics),
		api.WithTranscript(transcripts),
		api.WithAllowedOrigin(cfg.FrontendURL, cfg.IsDevelopment()),
	)
	healthHandler := health.New(
		health.Store(repo),
		health.Breaker("llm", chat.Breaker()),
		health.Breaker("stt", transcriber.Breaker()),
	)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(observe.Middleware(metrics))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", observe.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		examHandler.RegisterRoutes(r)
	})

	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: /ws/exam connections are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sessions.RunSweeper(gctx, cfg.SessionSweepInterval, cfg.SessionTTL, func(key string) {
			slog.Info("Session expired", "session_key", key)
			metrics.RecordSessionExpired(gctx)
		})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// allowedOrigins is the configured front end, or any origin in development.
func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

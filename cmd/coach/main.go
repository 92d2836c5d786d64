// IELTS Speaking Coach - terminal practice
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/ielts-coach/internal/app"
	"github.com/ashureev/ielts-coach/internal/coach"
	"github.com/ashureev/ielts-coach/internal/config"
	"github.com/ashureev/ielts-coach/internal/conversation"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/mic"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so they do not interleave with the exam dialogue.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat, err := app.NewLLM(cfg.LLM, nil)
	if err != nil {
		slog.Error("Failed to create chat provider", "error", err)
		os.Exit(1)
	}
	transcriber, err := app.NewSTT(cfg.STT, nil)
	if err != nil {
		slog.Error("Failed to create transcription provider", "error", err)
		os.Exit(1)
	}

	var recorder coach.Recorder
	m, err := mic.New()
	if err != nil {
		slog.Warn("Microphone unavailable, typed answers only", "error", err)
	} else {
		defer func() {
			if err := m.Close(); err != nil {
				slog.Debug("Failed to release microphone", "error", err)
			}
		}()
		recorder = m
	}

	chain := conversation.New(chat, conversation.WithTemperature(cfg.LLM.Temperature))
	ctrl := exam.NewController(chain, exam.WithMode(exam.ManualAdvance))
	runner := coach.NewRunner(ctrl, recorder, transcriber,
		time.Duration(cfg.RecordSeconds)*time.Second, os.Stdin, os.Stdout)

	if err := runner.Run(ctx); err != nil {
		slog.Error("Exam failed", "error", err)
		os.Exit(1)
	}
}

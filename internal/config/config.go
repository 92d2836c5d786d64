// Package config provides application configuration.
//
// Values start from built-in defaults, are overlaid by an optional YAML file
// named by CONFIG_FILE, and finally by environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port        string `yaml:"port"`
	FrontendURL string `yaml:"frontend_url"`
	LogLevel    string `yaml:"log_level"`

	DBPath               string        `yaml:"db_path"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`

	LLM LLMConfig `yaml:"llm"`
	STT STTConfig `yaml:"stt"`

	FFmpegPath     string `yaml:"ffmpeg_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	RecordSeconds  int    `yaml:"record_seconds"`

	Transcript TranscriptConfig `yaml:"transcript"`
}

// TranscriptConfig controls per-session NDJSON exam transcripts.
type TranscriptConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// LLMConfig selects and tunes the chat completion backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// STTConfig selects and tunes the transcription backend.
type STTConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// LLMProviders lists the accepted LLM_PROVIDER values.
var LLMProviders = []string{"openai", "gemini", "anthropic", "ollama", "mistral", "groq", "deepseek"}

// STTProviders lists the accepted STT_PROVIDER values.
var STTProviders = []string{"whisper", "openai"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                 "8080",
		LogLevel:             "info",
		DBPath:               ":memory:",
		SessionTTL:           30 * time.Minute,
		SessionSweepInterval: time.Minute,
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		STT: STTConfig{
			Provider:   "whisper",
			BaseURL:    "http://localhost:8178",
			Language:   "en",
			Timeout:    60 * time.Second,
			MaxRetries: 1,
		},
		FFmpegPath:     "ffmpeg",
		MaxUploadBytes: 25 << 20,
		RecordSeconds:  5,
		Transcript: TranscriptConfig{
			Dir:       "./data/transcripts",
			QueueSize: 1000,
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the
// environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.SessionSweepInterval)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)

	c.STT.Provider = strings.ToLower(getEnv("STT_PROVIDER", c.STT.Provider))
	c.STT.BaseURL = getEnv("STT_BASE_URL", c.STT.BaseURL)
	c.STT.APIKey = getEnv("STT_API_KEY", c.STT.APIKey)
	c.STT.Model = getEnv("STT_MODEL", c.STT.Model)
	c.STT.Language = getEnv("STT_LANGUAGE", c.STT.Language)
	c.STT.Timeout = getEnvDuration("STT_TIMEOUT", c.STT.Timeout)
	c.STT.MaxRetries = getEnvInt("STT_MAX_RETRIES", c.STT.MaxRetries)

	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.RecordSeconds = getEnvInt("RECORD_SECONDS", c.RecordSeconds)

	c.Transcript.Enabled = getEnvBool("TRANSCRIPT_ENABLED", c.Transcript.Enabled)
	c.Transcript.Dir = getEnv("TRANSCRIPT_DIR", c.Transcript.Dir)
	c.Transcript.QueueSize = getEnvInt("TRANSCRIPT_QUEUE_SIZE", c.Transcript.QueueSize)
}

// Validate checks that the configuration is usable. All failures are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH cannot be empty"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be > 0"))
	}
	if c.SessionSweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must be > 0"))
	}

	if !contains(LLMProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not one of %s", c.LLM.Provider, strings.Join(LLMProviders, ", ")))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("LLM_MODEL cannot be empty"))
	}
	if c.LLM.APIKey == "" && c.LLM.Provider != "ollama" {
		errs = append(errs, fmt.Errorf("LLM_API_KEY is required for provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("LLM_TEMPERATURE must be within [0, 2]"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must be >= 0"))
	}

	if !contains(STTProviders, c.STT.Provider) {
		errs = append(errs, fmt.Errorf("STT_PROVIDER %q is not one of %s", c.STT.Provider, strings.Join(STTProviders, ", ")))
	}
	if c.STT.Provider == "whisper" && c.STT.BaseURL == "" {
		errs = append(errs, errors.New("STT_BASE_URL is required for provider \"whisper\""))
	}
	if c.STT.Provider == "openai" && c.STT.APIKey == "" {
		errs = append(errs, errors.New("STT_API_KEY is required for provider \"openai\""))
	}
	if c.STT.MaxRetries < 0 {
		errs = append(errs, errors.New("STT_MAX_RETRIES must be >= 0"))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be > 0"))
	}
	if c.RecordSeconds <= 0 {
		errs = append(errs, errors.New("RECORD_SECONDS must be > 0"))
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		errs = append(errs, errors.New("TRANSCRIPT_DIR cannot be empty when transcripts are enabled"))
	}
	if c.Transcript.QueueSize <= 0 {
		errs = append(errs, errors.New("TRANSCRIPT_QUEUE_SIZE must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

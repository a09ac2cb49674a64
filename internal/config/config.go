package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory engine service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	OllamaURL      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	EmbeddingModel    string
	EmbeddingDim      int
	EmbeddingProvider string

	WindowCapacity     int
	SummarizeThreshold int
	SummarizeKeep      int

	TopKFacts          int
	TopKEpisodes       int
	InjectionMaxTokens int

	WorkerPoolSize   int
	WorkerQueueLen   int
	WorkerJobTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mnemo"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		OllamaURL:        envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		LLMModel:         envOrDefault("LLM_MODEL", "llama3.1:8b"),
		LLMTemperature:   0.7,
		LLMMaxTokens:     512,
		LLMTimeout:       30 * time.Second,
		EmbeddingModel:   envOrDefault("EMBEDDING_MODEL", "all-minilm"),
		EmbeddingDim:     384,
		// "ollama" or "mock"; mock keeps local dev off the GPU box.
		EmbeddingProvider: envOrDefault("EMBEDDING_PROVIDER", "ollama"),
		// Must cover SummarizeThreshold, or eviction discards turns
		// before compression can ever see them.
		WindowCapacity:     24,
		SummarizeThreshold: 20,
		SummarizeKeep:      10,
		TopKFacts:          5,
		TopKEpisodes:       3,
		InjectionMaxTokens: 400,
		WorkerPoolSize:     2,
		WorkerQueueLen:     64,
		WorkerJobTimeout:   2 * time.Minute,
		ShutdownTimeout:    15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.WindowCapacity, err = intFromEnv("SESSION_WINDOW_CAPACITY", cfg.WindowCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizeThreshold, err = intFromEnv("SUMMARIZE_THRESHOLD", cfg.SummarizeThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizeKeep, err = intFromEnv("SUMMARIZE_KEEP_RECENT", cfg.SummarizeKeep)
	if err != nil {
		return Config{}, err
	}
	cfg.TopKFacts, err = intFromEnv("RETRIEVAL_TOP_K_FACTS", cfg.TopKFacts)
	if err != nil {
		return Config{}, err
	}
	cfg.TopKEpisodes, err = intFromEnv("RETRIEVAL_TOP_K_EPISODES", cfg.TopKEpisodes)
	if err != nil {
		return Config{}, err
	}
	cfg.InjectionMaxTokens, err = intFromEnv("INJECTION_MAX_TOKENS", cfg.InjectionMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerPoolSize, err = intFromEnv("WORKER_POOL_SIZE", cfg.WorkerPoolSize)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerQueueLen, err = intFromEnv("WORKER_QUEUE_LEN", cfg.WorkerQueueLen)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerJobTimeout, err = durationFromEnv("WORKER_JOB_TIMEOUT", cfg.WorkerJobTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.WindowCapacity <= 0 {
		return Config{}, fmt.Errorf("SESSION_WINDOW_CAPACITY must be positive")
	}
	if cfg.SummarizeKeep >= cfg.SummarizeThreshold {
		return Config{}, fmt.Errorf("SUMMARIZE_KEEP_RECENT must be below SUMMARIZE_THRESHOLD")
	}
	if cfg.WindowCapacity < cfg.SummarizeThreshold {
		return Config{}, fmt.Errorf("SESSION_WINDOW_CAPACITY must be at least SUMMARIZE_THRESHOLD, or the window evicts turns before they can be summarized")
	}
	if cfg.TopKFacts <= 0 || cfg.TopKEpisodes <= 0 {
		return Config{}, fmt.Errorf("retrieval top-K values must be positive")
	}
	if cfg.WorkerPoolSize <= 0 {
		return Config{}, fmt.Errorf("WORKER_POOL_SIZE must be positive")
	}
	switch cfg.EmbeddingProvider {
	case "ollama", "mock":
	default:
		return Config{}, fmt.Errorf("EMBEDDING_PROVIDER must be ollama or mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// validLLMProviders lists the translation backends the builder can wire.
var validLLMProviders = []string{"gemini", "openai", "anthropic", "ollama"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Before parsing, `${VAR}` references are expanded from the
// environment; a `.env` file in the working directory is loaded first when
// present so local keys need no shell exports.
func Load(path string) (*Config, error) {
	// Missing .env is fine; any other error is worth surfacing.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("no .env file loaded", "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q is invalid; valid values: text, json", cfg.Logging.Format))
	}

	if !cfg.Pipeline.TargetLanguage.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.target_language %q is not a supported language", cfg.Pipeline.TargetLanguage))
	}
	if !slices.Contains(validLLMProviders, cfg.Providers.LLM.Provider) {
		errs = append(errs, fmt.Errorf("providers.llm.provider %q is invalid; valid values: %v", cfg.Providers.LLM.Provider, validLLMProviders))
	}
	if cfg.Providers.LLM.Temperature < 0 || cfg.Providers.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("providers.llm.temperature %.2f is out of range [0, 2]", cfg.Providers.LLM.Temperature))
	}

	if cfg.Pipeline.VAD.MinSegmentDuration <= 0 {
		errs = append(errs, errors.New("pipeline.vad.min_segment_duration must be positive"))
	}
	if cfg.Pipeline.VAD.CombineDuration < cfg.Pipeline.VAD.MinSegmentDuration {
		errs = append(errs, errors.New("pipeline.vad.combine_duration must be >= min_segment_duration"))
	}
	if cfg.Pipeline.Translation.ChunkSize <= 0 {
		errs = append(errs, errors.New("pipeline.translation.chunk_size must be positive"))
	}
	if cfg.Pipeline.Merge.MaxSilence < 0 {
		errs = append(errs, errors.New("pipeline.merge.max_silence must not be negative"))
	}
	if cfg.Pipeline.Synthesis.MaxChunkChars <= 0 {
		errs = append(errs, errors.New("pipeline.synthesis.max_chunk_chars must be positive"))
	}
	if cfg.Pipeline.Separation.BackgroundThresholdDB > 0 {
		errs = append(errs, errors.New("pipeline.separation.background_threshold_db must be <= 0 dBFS"))
	}
	if cfg.Pipeline.Retry.Attempts < 1 {
		errs = append(errs, errors.New("pipeline.retry.attempts must be at least 1"))
	}
	if cfg.Pipeline.Retry.Backoff < 0 {
		errs = append(errs, errors.New("pipeline.retry.backoff must not be negative"))
	}

	// Credential availability warnings — these are not fatal because tests
	// and offline runs use mocks and the local whisper fallback.
	if cfg.Providers.Sarvam.APIKey == "" {
		slog.Warn("providers.sarvam.api_key is empty; cloud ASR and Hindi TTS will be unavailable")
	}
	if cfg.Providers.Cartesia.APIKey == "" {
		slog.Warn("providers.cartesia.api_key is empty; non-Hindi TTS will be unavailable")
	}
	if cfg.Providers.Sarvam.APIKey == "" && cfg.Providers.Whisper.ModelPath == "" {
		slog.Warn("no ASR backend configured; transcription will fail")
	}

	return errors.Join(errs...)
}

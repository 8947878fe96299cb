// Package config provides the configuration schema, loader, and live-reload
// watcher for the dubbing pipeline.
package config

import (
	"time"

	"github.com/anuvox/anuvox/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; `${VAR}` references in the file
// are expanded from the environment before parsing.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Paths     PathsConfig     `yaml:"paths"`
	Tools     ToolsConfig     `yaml:"tools"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Voices    VoicesConfig    `yaml:"voices"`
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	// Level controls verbosity. Default: info.
	Level LogLevel `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// PathsConfig holds filesystem roots used by the session store.
type PathsConfig struct {
	// SessionsDir is the root directory under which per-session trees are
	// created. Default: "sessions".
	SessionsDir string `yaml:"sessions_dir"`

	// TmpDir holds scratch files for subprocess handoff. Default: OS temp.
	TmpDir string `yaml:"tmp_dir"`
}

// ToolsConfig holds paths to external binaries the pipeline shells out to.
// Empty values resolve from PATH.
type ToolsConfig struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	YtDlp   string `yaml:"yt_dlp"`
	Demucs  string `yaml:"demucs"`
}

// ProvidersConfig holds credentials and model selections for the external
// AI services.
type ProvidersConfig struct {
	Sarvam   SarvamConfig   `yaml:"sarvam"`
	Cartesia CartesiaConfig `yaml:"cartesia"`
	LLM      LLMConfig      `yaml:"llm"`
	Whisper  WhisperConfig  `yaml:"whisper"`
}

// SarvamConfig configures the Sarvam ASR and TTS APIs.
type SarvamConfig struct {
	// APIKey authenticates both ASR and TTS calls (e.g., "${SARVAM_API_KEY}").
	APIKey string `yaml:"api_key"`

	// ASRModel is the Saarika model variant. Empty uses the provider default.
	ASRModel string `yaml:"asr_model"`

	// TTSModel is the Bulbul model variant. Empty uses the provider default.
	TTSModel string `yaml:"tts_model"`

	// DefaultVoice is the Bulbul speaker used when a segment's speaker has no
	// voice mapping.
	DefaultVoice string `yaml:"default_voice"`
}

// CartesiaConfig configures the Cartesia Sonic TTS API.
type CartesiaConfig struct {
	APIKey string `yaml:"api_key"`

	// Model is the Sonic model. Empty uses the provider default.
	Model string `yaml:"model"`

	// DefaultVoice is the voice id used when a segment's speaker has no
	// voice mapping.
	DefaultVoice string `yaml:"default_voice"`
}

// LLMConfig configures the translation model.
type LLMConfig struct {
	// Provider selects the backend: "gemini", "openai", "anthropic", "ollama".
	// Default: gemini.
	Provider string `yaml:"provider"`

	// Model is the model identifier (e.g., "gemini-2.0-flash").
	Model string `yaml:"model"`

	// APIKey authenticates the backend. Empty falls back to the backend's
	// environment variable.
	APIKey string `yaml:"api_key"`

	// Temperature is the sampling temperature for translation. Default: 0.2.
	Temperature float64 `yaml:"temperature"`
}

// WhisperConfig configures the local whisper.cpp fallback transcriber.
type WhisperConfig struct {
	// ModelPath points at a ggml model file. Empty disables the local
	// fallback.
	ModelPath string `yaml:"model_path"`
}

// PipelineConfig holds stage tuning knobs.
type PipelineConfig struct {
	// Workers bounds per-stage worker pools. Default: 4.
	Workers int `yaml:"workers"`

	// TargetLanguage is the default dub language. Default: hindi.
	TargetLanguage types.Language `yaml:"target_language"`

	// PreserveBackgroundMusic is the default for new sessions.
	PreserveBackgroundMusic bool `yaml:"preserve_background_music"`

	VAD         VADConfig         `yaml:"vad"`
	Translation TranslationConfig `yaml:"translation"`
	Merge       MergeConfig       `yaml:"merge"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Separation  SeparationConfig  `yaml:"separation"`
	Retry       RetryConfig       `yaml:"retry"`
}

// RetryConfig tunes how a stage re-runs after a provider outage. Failures of
// any other kind never retry.
type RetryConfig struct {
	// Attempts is the total number of tries per stage, including the first.
	// Default: 2.
	Attempts int `yaml:"attempts"`

	// Backoff is the delay before the second attempt; it doubles after each
	// further failure. Default: 500ms.
	Backoff time.Duration `yaml:"backoff"`
}

// VADConfig tunes speech-region slicing ahead of ASR.
type VADConfig struct {
	// MinSegmentDuration is the shortest region passed to ASR, in seconds.
	// Default: 1.0.
	MinSegmentDuration float64 `yaml:"min_segment_duration"`

	// CombineDuration is the ceiling for combined regions, in seconds.
	// Default: 8.0.
	CombineDuration float64 `yaml:"combine_duration"`

	// CombineGap is the largest silence bridged when combining adjacent
	// regions, in seconds. Default: 1.0.
	CombineGap float64 `yaml:"combine_gap"`
}

// TranslationConfig tunes the context-aware translator.
type TranslationConfig struct {
	// ChunkThreshold is the segment count above which full-diarization calls
	// are split into chunks. Default: 30.
	ChunkThreshold int `yaml:"chunk_threshold"`

	// ChunkSize caps segments per chunked call. Default: 10.
	ChunkSize int `yaml:"chunk_size"`

	// MaxValidationRetries is how many times malformed model output is
	// retried with feedback. Default: 2.
	MaxValidationRetries int `yaml:"max_validation_retries"`

	// ContextBefore / ContextAfter bound the per-segment context windows.
	// Defaults: 3 and 3.
	ContextBefore int `yaml:"context_before"`
	ContextAfter  int `yaml:"context_after"`
}

// MergeConfig tunes the same-speaker segment merger.
type MergeConfig struct {
	// MaxSilence is the largest same-speaker gap that still merges.
	// Default: 500ms.
	MaxSilence time.Duration `yaml:"max_silence"`
}

// SynthesisConfig tunes per-segment TTS.
type SynthesisConfig struct {
	// MaxChunkChars caps text per provider call. Default: 500.
	MaxChunkChars int `yaml:"max_chunk_chars"`

	// MinSilenceSeconds is the floor for silence substitutes. Default: 1.0.
	MinSilenceSeconds float64 `yaml:"min_silence_seconds"`
}

// SeparationConfig tunes the stem separator and background policy.
type SeparationConfig struct {
	// BackgroundThresholdDB is the mean loudness above which a background
	// stem counts as significant. Default: −40.
	BackgroundThresholdDB float64 `yaml:"background_threshold_db"`

	// FallbackAttenuationDB is applied to the background stem when no
	// measured loudness is stored. Default: −12.
	FallbackAttenuationDB float64 `yaml:"fallback_attenuation_db"`
}

// VoicesConfig maps diarization speaker labels to default voice ids per
// provider. Session-level speaker_voice_map entries override these.
type VoicesConfig struct {
	// Sarvam maps speaker label → Bulbul speaker id.
	Sarvam map[string]string `yaml:"sarvam"`

	// Cartesia maps speaker label → Sonic voice id.
	Cartesia map[string]string `yaml:"cartesia"`
}

// applyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = LogInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Paths.SessionsDir == "" {
		c.Paths.SessionsDir = "sessions"
	}
	if c.Providers.LLM.Provider == "" {
		c.Providers.LLM.Provider = "gemini"
	}
	if c.Providers.LLM.Model == "" {
		c.Providers.LLM.Model = "gemini-2.0-flash"
	}
	if c.Providers.LLM.Temperature == 0 {
		c.Providers.LLM.Temperature = 0.2
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.TargetLanguage == "" {
		c.Pipeline.TargetLanguage = types.LangHindi
	}
	if c.Pipeline.VAD.MinSegmentDuration == 0 {
		c.Pipeline.VAD.MinSegmentDuration = 1.0
	}
	if c.Pipeline.VAD.CombineDuration == 0 {
		c.Pipeline.VAD.CombineDuration = 8.0
	}
	if c.Pipeline.VAD.CombineGap == 0 {
		c.Pipeline.VAD.CombineGap = 1.0
	}
	if c.Pipeline.Translation.ChunkThreshold == 0 {
		c.Pipeline.Translation.ChunkThreshold = 30
	}
	if c.Pipeline.Translation.ChunkSize == 0 {
		c.Pipeline.Translation.ChunkSize = 10
	}
	if c.Pipeline.Translation.MaxValidationRetries == 0 {
		c.Pipeline.Translation.MaxValidationRetries = 2
	}
	if c.Pipeline.Translation.ContextBefore == 0 {
		c.Pipeline.Translation.ContextBefore = 3
	}
	if c.Pipeline.Translation.ContextAfter == 0 {
		c.Pipeline.Translation.ContextAfter = 3
	}
	if c.Pipeline.Merge.MaxSilence == 0 {
		c.Pipeline.Merge.MaxSilence = 500 * time.Millisecond
	}
	if c.Pipeline.Synthesis.MaxChunkChars == 0 {
		c.Pipeline.Synthesis.MaxChunkChars = 500
	}
	if c.Pipeline.Synthesis.MinSilenceSeconds == 0 {
		c.Pipeline.Synthesis.MinSilenceSeconds = 1.0
	}
	if c.Pipeline.Separation.BackgroundThresholdDB == 0 {
		c.Pipeline.Separation.BackgroundThresholdDB = -40
	}
	if c.Pipeline.Separation.FallbackAttenuationDB == 0 {
		c.Pipeline.Separation.FallbackAttenuationDB = -12
	}
	if c.Pipeline.Retry.Attempts == 0 {
		c.Pipeline.Retry.Attempts = 2
	}
	if c.Pipeline.Retry.Backoff == 0 {
		c.Pipeline.Retry.Backoff = 500 * time.Millisecond
	}
}

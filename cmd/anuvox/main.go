// Command anuvox dubs Indian-language short-form videos into another
// language. It downloads the source audio, separates stems, transcribes and
// diarizes the speech, translates it, synthesises per-segment speech, and
// stitches a time-aligned dub.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/anuvox/anuvox/internal/align"
	"github.com/anuvox/anuvox/internal/config"
	"github.com/anuvox/anuvox/internal/diarize"
	"github.com/anuvox/anuvox/internal/ingest"
	"github.com/anuvox/anuvox/internal/observe"
	"github.com/anuvox/anuvox/internal/pipeline"
	"github.com/anuvox/anuvox/internal/resilience"
	"github.com/anuvox/anuvox/internal/separation"
	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/internal/stitch"
	"github.com/anuvox/anuvox/internal/synth"
	"github.com/anuvox/anuvox/internal/translate"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/asr"
	asrsarvam "github.com/anuvox/anuvox/pkg/provider/asr/sarvam"
	"github.com/anuvox/anuvox/pkg/provider/asr/whisperlocal"
	"github.com/anuvox/anuvox/pkg/provider/llm"
	"github.com/anuvox/anuvox/pkg/provider/llm/anyllm"
	llmopenai "github.com/anuvox/anuvox/pkg/provider/llm/openai"
	"github.com/anuvox/anuvox/pkg/provider/tts"
	"github.com/anuvox/anuvox/pkg/provider/tts/cartesia"
	ttssarvam "github.com/anuvox/anuvox/pkg/provider/tts/sarvam"
	"github.com/anuvox/anuvox/pkg/provider/vad"
	"github.com/anuvox/anuvox/pkg/types"
)

const usage = `usage: anuvox <command> [flags]

commands:
  run      dub a video URL end to end
  resume   continue a session paused for segment review
  edit     apply segment edits to a paused session
  status   print a session's metadata
  voices   list the available voices of a TTS provider

Run "anuvox <command> -h" for the flags of each command.`

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(ctx, os.Args[2:])
	case "resume":
		err = cmdResume(ctx, os.Args[2:])
	case "edit":
		err = cmdEdit(ctx, os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "voices":
		err = cmdVoices(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "anuvox: unknown command %q\n%s\n", os.Args[1], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "anuvox: interrupted")
			return 130
		}
		fmt.Fprintf(os.Stderr, "anuvox: %v\n", err)
		return 1
	}
	return 0
}

// setup loads configuration, initialises logging and telemetry, and opens
// the session store. The config file stays watched for the lifetime of the
// command: edits to the logging settings take effect immediately, which
// matters during dubbing runs that take many minutes. Provider credentials
// are read once at pipeline build time.
func setup(ctx context.Context, configPath string) (*config.Config, *session.Store, func(), error) {
	watcher, err := config.NewWatcher(configPath, func(_, next *config.Config) {
		observe.SetupLogging(string(next.Logging.Level), next.Logging.Format)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := watcher.Current()
	observe.SetupLogging(string(cfg.Logging.Level), cfg.Logging.Format)

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "anuvox"})
	if err != nil {
		watcher.Stop()
		return nil, nil, nil, fmt.Errorf("init telemetry: %w", err)
	}
	cleanup := func() {
		watcher.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}

	store, err := session.NewStore(cfg.Paths.SessionsDir)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return cfg, store, cleanup, nil
}

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	target := fs.String("target", "", "target language (default from config)")
	preserve := fs.Bool("preserve-background", false, "keep the separated background music in the final mix")
	pause := fs.Bool("pause-for-edits", false, "stop after diarization for segment review")
	batch := fs.Bool("batch-translation", false, "translate whole chunks per model call")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("run: exactly one video URL is required")
	}
	rawURL := fs.Arg(0)

	cfg, store, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if !ingest.Supported(rawURL) {
		return fmt.Errorf("run: unsupported URL %q (YouTube and Instagram links are accepted)", rawURL)
	}

	targetLang := cfg.Pipeline.TargetLanguage
	if *target != "" {
		targetLang, err = types.ParseLanguage(*target)
		if err != nil {
			return err
		}
	}

	p, err := buildPipeline(cfg, store, pipeline.Options{
		TargetLanguage:          targetLang,
		MaxSilence:              cfg.Pipeline.Merge.MaxSilence,
		PreserveBackgroundMusic: *preserve || cfg.Pipeline.PreserveBackgroundMusic,
		SpeakerVoiceMap:         configuredVoices(cfg, targetLang),
		PauseForEdits:           *pause,
		BatchTranslation:        *batch,
		Retry: resilience.RetryPolicy{
			Attempts: cfg.Pipeline.Retry.Attempts,
			Initial:  cfg.Pipeline.Retry.Backoff,
		},
	})
	if err != nil {
		return err
	}

	sid, err := p.Run(ctx, rawURL)
	if sid != "" {
		fmt.Println(sid)
	}
	return err
}

func cmdResume(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	sid := fs.String("session", "", "session id to resume")
	target := fs.String("target", "", "target language (default from config)")
	preserve := fs.Bool("preserve-background", false, "keep the separated background music in the final mix")
	batch := fs.Bool("batch-translation", false, "translate whole chunks per model call")
	fs.Parse(args)
	if !session.ValidID(*sid) {
		return fmt.Errorf("resume: invalid session id %q", *sid)
	}

	cfg, store, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	targetLang := cfg.Pipeline.TargetLanguage
	if *target != "" {
		targetLang, err = types.ParseLanguage(*target)
		if err != nil {
			return err
		}
	}

	p, err := buildPipeline(cfg, store, pipeline.Options{
		TargetLanguage:          targetLang,
		MaxSilence:              cfg.Pipeline.Merge.MaxSilence,
		PreserveBackgroundMusic: *preserve || cfg.Pipeline.PreserveBackgroundMusic,
		SpeakerVoiceMap:         configuredVoices(cfg, targetLang),
		BatchTranslation:        *batch,
		Retry: resilience.RetryPolicy{
			Attempts: cfg.Pipeline.Retry.Attempts,
			Initial:  cfg.Pipeline.Retry.Backoff,
		},
	})
	if err != nil {
		return err
	}
	return p.Resume(ctx, *sid)
}

func cmdEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	sid := fs.String("session", "", "session id to edit")
	editsPath := fs.String("edits", "", "JSON file mapping segment id to {speaker, text} updates")
	fs.Parse(args)
	if !session.ValidID(*sid) {
		return fmt.Errorf("edit: invalid session id %q", *sid)
	}
	if *editsPath == "" {
		return errors.New("edit: -edits is required")
	}

	_, store, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(*editsPath)
	if err != nil {
		return err
	}
	var edits map[string]diarize.Edit
	if err := json.Unmarshal(data, &edits); err != nil {
		return fmt.Errorf("edit: parse %s: %w", *editsPath, err)
	}
	return diarize.ApplyEdits(store, *sid, edits)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	sid := fs.String("session", "", "session id to inspect")
	fs.Parse(args)
	if !session.ValidID(*sid) {
		return fmt.Errorf("status: invalid session id %q", *sid)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.Paths.SessionsDir)
	if err != nil {
		return err
	}
	meta, err := store.Get(*sid)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func cmdVoices(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("voices", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	providerName := fs.String("provider", "sarvam", `TTS provider: "sarvam" or "cartesia"`)
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	observe.SetupLogging(string(cfg.Logging.Level), cfg.Logging.Format)

	var provider tts.Provider
	switch *providerName {
	case "sarvam":
		provider, err = ttssarvam.New(cfg.Providers.Sarvam.APIKey)
	case "cartesia":
		provider, err = cartesia.New(cfg.Providers.Cartesia.APIKey)
	default:
		return fmt.Errorf("voices: unknown provider %q", *providerName)
	}
	if err != nil {
		return err
	}

	voices, err := provider.ListVoices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		fmt.Printf("%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Language, v.Gender)
	}
	return nil
}

// buildPipeline wires the stage implementations from configuration.
func buildPipeline(cfg *config.Config, store *session.Store, opts pipeline.Options) (*pipeline.Pipeline, error) {
	ingestor := ingest.New(store, ingestOptions(cfg)...)

	sepOpts := []separation.Option{
		separation.WithThresholdDB(cfg.Pipeline.Separation.BackgroundThresholdDB),
	}
	if cfg.Tools.Demucs != "" {
		sepOpts = append(sepOpts, separation.WithDemucsPath(cfg.Tools.Demucs))
	}
	separator := separation.New(store, sepOpts...)

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return nil, err
	}

	translator, err := buildTranslator(cfg)
	if err != nil {
		return nil, err
	}

	synthesizer, err := buildSynthesizer(cfg, store)
	if err != nil {
		return nil, err
	}

	aligner, err := align.New(store, buildToolchain(cfg))
	if err != nil {
		return nil, err
	}

	stitcher, err := stitch.New(store, stitch.Options{
		BackgroundAttenuationDB: cfg.Pipeline.Separation.FallbackAttenuationDB,
		PreserveBackground:      opts.PreserveBackgroundMusic,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Components{
		Store:       store,
		Ingestor:    ingestor,
		Separator:   separator,
		Transcriber: transcriber,
		Translator:  translator,
		Synthesizer: synthesizer,
		Aligner:     aligner,
		Stitcher:    stitcher,
	}, opts)
}

func ingestOptions(cfg *config.Config) []ingest.Option {
	var opts []ingest.Option
	if cfg.Tools.YtDlp != "" {
		opts = append(opts, ingest.WithYtDlpPath(cfg.Tools.YtDlp))
	}
	return opts
}

func buildToolchain(cfg *config.Config) *media.Toolchain {
	var opts []media.ToolchainOption
	if cfg.Tools.FFmpeg != "" {
		opts = append(opts, media.WithFFmpegPath(cfg.Tools.FFmpeg))
	}
	if cfg.Tools.FFprobe != "" {
		opts = append(opts, media.WithFFprobePath(cfg.Tools.FFprobe))
	}
	return media.NewToolchain(opts...)
}

// buildTranscriber assembles the VAD detector and the ASR fallback chain:
// Sarvam first, the local whisper.cpp model as the offline fallback.
func buildTranscriber(cfg *config.Config) (*diarize.Transcriber, error) {
	chain := resilience.NewChain[asr.Provider](resilience.BreakerConfig{})

	if cfg.Providers.Sarvam.APIKey != "" {
		var sarvamOpts []asrsarvam.Option
		if cfg.Providers.Sarvam.ASRModel != "" {
			sarvamOpts = append(sarvamOpts, asrsarvam.WithModel(cfg.Providers.Sarvam.ASRModel))
		}
		p, err := asrsarvam.New(cfg.Providers.Sarvam.APIKey, sarvamOpts...)
		if err != nil {
			return nil, err
		}
		chain.Add("sarvam", p)
	}
	if cfg.Providers.Whisper.ModelPath != "" {
		p, err := whisperlocal.New(cfg.Providers.Whisper.ModelPath)
		if err != nil {
			return nil, err
		}
		chain.Add("whisper", p)
	}
	if chain.Len() == 0 {
		return nil, errors.New("no ASR provider configured: set providers.sarvam.api_key or providers.whisper.model_path")
	}

	params := diarize.Params{
		MinSegmentDuration: cfg.Pipeline.VAD.MinSegmentDuration,
		CombineDuration:    cfg.Pipeline.VAD.CombineDuration,
		CombineGap:         cfg.Pipeline.VAD.CombineGap,
		Workers:            cfg.Pipeline.Workers,
	}
	return diarize.New(vad.NewEnergy(), chain, params)
}

// buildTranslator selects the translation backend. OpenAI goes through the
// native SDK client; every other backend goes through the any-llm shim.
func buildTranslator(cfg *config.Config) (*translate.Translator, error) {
	var provider llm.Provider
	var err error
	switch cfg.Providers.LLM.Provider {
	case "openai":
		key := cfg.Providers.LLM.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		provider, err = llmopenai.New(key, cfg.Providers.LLM.Model)
	default:
		var llmOpts []anyllmlib.Option
		if cfg.Providers.LLM.APIKey != "" {
			llmOpts = append(llmOpts, anyllmlib.WithAPIKey(cfg.Providers.LLM.APIKey))
		}
		provider, err = anyllm.New(cfg.Providers.LLM.Provider, cfg.Providers.LLM.Model, llmOpts...)
	}
	if err != nil {
		return nil, err
	}
	return translate.New(provider, translate.Options{
		Temperature:          cfg.Providers.LLM.Temperature,
		ContextBefore:        cfg.Pipeline.Translation.ContextBefore,
		SameSpeakerContext:   cfg.Pipeline.Translation.ContextAfter,
		ChunkThreshold:       cfg.Pipeline.Translation.ChunkThreshold,
		ChunkSize:            cfg.Pipeline.Translation.ChunkSize,
		MaxValidationRetries: cfg.Pipeline.Translation.MaxValidationRetries,
		Workers:              cfg.Pipeline.Workers,
	})
}

func buildSynthesizer(cfg *config.Config, store *session.Store) (*synth.Synthesizer, error) {
	var hindi, other tts.Provider

	if cfg.Providers.Sarvam.APIKey != "" {
		var opts []ttssarvam.Option
		if cfg.Providers.Sarvam.TTSModel != "" {
			opts = append(opts, ttssarvam.WithModel(cfg.Providers.Sarvam.TTSModel))
		}
		if cfg.Providers.Sarvam.DefaultVoice != "" {
			opts = append(opts, ttssarvam.WithDefaultVoice(cfg.Providers.Sarvam.DefaultVoice))
		}
		p, err := ttssarvam.New(cfg.Providers.Sarvam.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		hindi = p
	}
	if cfg.Providers.Cartesia.APIKey != "" {
		var opts []cartesia.Option
		if cfg.Providers.Cartesia.Model != "" {
			opts = append(opts, cartesia.WithModel(cfg.Providers.Cartesia.Model))
		}
		if cfg.Providers.Cartesia.DefaultVoice != "" {
			opts = append(opts, cartesia.WithDefaultVoice(cfg.Providers.Cartesia.DefaultVoice))
		}
		p, err := cartesia.New(cfg.Providers.Cartesia.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		other = p
	}

	return synth.New(store, hindi, other, synth.Options{
		MaxChunkChars:     cfg.Pipeline.Synthesis.MaxChunkChars,
		MinSilenceSeconds: cfg.Pipeline.Synthesis.MinSilenceSeconds,
		Workers:           cfg.Pipeline.Workers,
	})
}

// configuredVoices picks the speaker → voice defaults for the target
// language's provider.
func configuredVoices(cfg *config.Config, target types.Language) map[string]string {
	if target == types.LangHindi {
		return cfg.Voices.Sarvam
	}
	return cfg.Voices.Cartesia
}

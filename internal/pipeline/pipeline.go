// Package pipeline drives a dubbing session through its stages: ingest,
// stem separation, diarized transcription, translation, same-speaker
// merging, synthesis, time alignment, and stitching.
//
// Each stage transition is recorded in the session's processing_status
// metadata before the stage runs and a provenance record is written to
// tool_outputs/<stage>.json after it finishes, so an interrupted session
// can always be inspected from disk alone.
//
// Failures split into two classes. Fatal failures (unreachable source,
// separator crash, no speech found, every translation rejected) halt the
// run and park the session in the error stage. Everything else is absorbed
// inside the owning stage: a failed segment becomes an error marker or a
// silence substitute and the run continues.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anuvox/anuvox/internal/align"
	"github.com/anuvox/anuvox/internal/diarize"
	"github.com/anuvox/anuvox/internal/ingest"
	"github.com/anuvox/anuvox/internal/observe"
	"github.com/anuvox/anuvox/internal/resilience"
	"github.com/anuvox/anuvox/internal/segmerge"
	"github.com/anuvox/anuvox/internal/separation"
	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/internal/stitch"
	"github.com/anuvox/anuvox/internal/synth"
	"github.com/anuvox/anuvox/internal/translate"
	"github.com/anuvox/anuvox/pkg/types"
)

// Artifact paths written by the orchestrator itself. Stage packages own
// their respective artifacts.
const (
	diarizationCSV   = "diarization.csv"
	translatedJSON   = "diarization_translated.json"
	translatedCSV    = "diarization_translated.csv"
	mergedJSON       = "diarization_translated_merged.json"
	synthResultsJSON = "tool_outputs/synthesis_results.json"
)

// Options tunes a pipeline run. Zero values fall back to defaults.
type Options struct {
	// TargetLanguage is the dubbing target. Default hindi.
	TargetLanguage types.Language

	// SourceLanguage hints the ASR and translator. Empty means autodetect.
	SourceLanguage types.Language

	// MaxSilence is the largest same-speaker gap that merges; touching
	// segments always fit the budget. Zero selects the 500ms default; a
	// negative value disables merging entirely.
	MaxSilence time.Duration

	// PreserveBackgroundMusic requests the background stem in the final mix.
	PreserveBackgroundMusic bool

	// SpeakerVoiceMap maps diarization speaker labels to voice names.
	SpeakerVoiceMap map[string]string

	// PauseForEdits stops the run after diarization so segments can be
	// reviewed; Resume picks the session up from there.
	PauseForEdits bool

	// BatchTranslation sends whole chunks per model call instead of one
	// segment per call.
	BatchTranslation bool

	// Retry governs re-running a stage whose failure was a provider outage
	// (KindExternalUnavailable). Other failure kinds never retry. Attempts
	// counts the first try; zero falls back to 2.
	Retry resilience.RetryPolicy
}

func (o *Options) fill() {
	if o.TargetLanguage == "" {
		o.TargetLanguage = types.LangHindi
	}
	if o.MaxSilence == 0 {
		o.MaxSilence = segmerge.DefaultMaxSilence
	}
	if o.Retry.Attempts == 0 {
		o.Retry.Attempts = 2
	}
}

// Components bundles the stage implementations a Pipeline drives.
type Components struct {
	Store       *session.Store
	Ingestor    *ingest.Ingestor
	Separator   *separation.Separator
	Transcriber *diarize.Transcriber
	Translator  *translate.Translator
	Synthesizer *synth.Synthesizer
	Aligner     *align.Aligner
	Stitcher    *stitch.Stitcher

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// Pipeline orchestrates dubbing sessions.
type Pipeline struct {
	c    Components
	opts Options
}

// New validates the component set and creates a Pipeline.
func New(c Components, opts Options) (*Pipeline, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case c.Ingestor == nil:
		return nil, errors.New("pipeline: ingestor is required")
	case c.Separator == nil:
		return nil, errors.New("pipeline: separator is required")
	case c.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case c.Translator == nil:
		return nil, errors.New("pipeline: translator is required")
	case c.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case c.Aligner == nil:
		return nil, errors.New("pipeline: aligner is required")
	case c.Stitcher == nil:
		return nil, errors.New("pipeline: stitcher is required")
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	opts.fill()
	return &Pipeline{c: c, opts: opts}, nil
}

// Run creates a session for rawURL and processes it. The session id is
// returned even when processing fails so the caller can inspect the state
// on disk; with PauseForEdits set the run stops in the editing stage and
// must be continued with Resume.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (string, error) {
	sid, err := session.NewID()
	if err != nil {
		return "", err
	}
	if _, err := p.c.Store.Create(sid); err != nil {
		return "", err
	}
	if err := p.c.Store.Update(sid, map[string]any{
		"source_url":                rawURL,
		"created_at":                time.Now().UTC().Format(time.RFC3339),
		"target_language":           string(p.opts.TargetLanguage),
		"preserve_background_music": p.opts.PreserveBackgroundMusic,
		"speaker_voice_map":         voiceMapAny(p.opts.SpeakerVoiceMap),
	}); err != nil {
		return sid, err
	}

	p.c.Metrics.ActiveSessions.Add(ctx, 1)
	defer p.c.Metrics.ActiveSessions.Add(ctx, -1)

	if err := p.ingestThroughDiarize(ctx, sid, rawURL); err != nil {
		return sid, p.fail(sid, err)
	}
	if p.opts.PauseForEdits {
		p.setStatus(sid, types.StageEditing, 45, "awaiting segment review")
		slog.Info("session paused for edits", "session", sid)
		return sid, nil
	}
	if err := p.translateThroughStitch(ctx, sid); err != nil {
		return sid, p.fail(sid, err)
	}
	p.setStatus(sid, types.StageCompleted, 100, "dubbing complete")
	return sid, nil
}

// Resume continues a session that was paused for edits (or that already
// holds a reviewed diarization) from translation onwards.
func (p *Pipeline) Resume(ctx context.Context, sid string) error {
	if !p.c.Store.Exists(sid) {
		return &PipelineError{Kind: KindNotFound, Err: fmt.Errorf("%w: %s", session.ErrNotFound, sid)}
	}
	p.c.Metrics.ActiveSessions.Add(ctx, 1)
	defer p.c.Metrics.ActiveSessions.Add(ctx, -1)

	if err := p.translateThroughStitch(ctx, sid); err != nil {
		return p.fail(sid, err)
	}
	p.setStatus(sid, types.StageCompleted, 100, "dubbing complete")
	return nil
}

// ingestThroughDiarize runs the stages that depend only on the source URL.
func (p *Pipeline) ingestThroughDiarize(ctx context.Context, sid, rawURL string) error {
	var audioPath string
	err := p.stage(ctx, sid, types.StageIngesting, 10, "downloading source audio",
		func(ctx context.Context) (any, error) {
			var err error
			audioPath, err = p.c.Ingestor.Ingest(ctx, rawURL, sid)
			if err != nil {
				return nil, err
			}
			return map[string]any{"audio_path": audioPath}, nil
		})
	if err != nil {
		return err
	}

	var sep *types.SeparationMetadata
	err = p.stage(ctx, sid, types.StageSeparated, 25, "separating vocal and background stems",
		func(ctx context.Context) (any, error) {
			var err error
			sep, err = p.c.Separator.Separate(ctx, sid, audioPath)
			return sep, err
		})
	if err != nil {
		return err
	}

	return p.stage(ctx, sid, types.StageDiarized, 40, "transcribing speech",
		func(ctx context.Context) (any, error) {
			d, err := p.c.Transcriber.Transcribe(ctx, sep.VocalsPath)
			if err != nil {
				return nil, err
			}
			if len(d.Segments) == 0 {
				return nil, diarize.ErrNoSpeech
			}
			if err := p.c.Store.WriteJSON(sid, diarize.DiarizationArtifact, d); err != nil {
				return nil, err
			}
			if err := p.writeCSV(sid, diarizationCSV, d); err != nil {
				return nil, err
			}
			return map[string]any{"segments": len(d.Segments), "speakers": d.Speakers()}, nil
		})
}

// translateThroughStitch runs the stages that consume the (possibly edited)
// diarization.
func (p *Pipeline) translateThroughStitch(ctx context.Context, sid string) error {
	d := &types.Diarization{}
	if err := p.c.Store.ReadJSON(sid, diarize.DiarizationArtifact, d); err != nil {
		return &PipelineError{Kind: KindNotFound, Err: fmt.Errorf("diarization missing: %w", err)}
	}
	if len(d.Segments) == 0 {
		return &PipelineError{Kind: KindFatal, Err: errors.New("diarization has no segments")}
	}

	var translated *types.Diarization
	err := p.stage(ctx, sid, types.StageTranslated, 55, "translating segments",
		func(ctx context.Context) (any, error) {
			var err error
			if p.opts.BatchTranslation {
				translated, err = p.c.Translator.TranslateBatch(ctx, d, p.opts.SourceLanguage, p.opts.TargetLanguage)
			} else {
				translated, err = p.c.Translator.Translate(ctx, d, p.opts.SourceLanguage, p.opts.TargetLanguage)
			}
			if translated != nil {
				// Persist even on total failure so the markers are visible.
				if werr := p.c.Store.WriteJSON(sid, translatedJSON, translated); werr != nil && err == nil {
					err = werr
				}
				if werr := p.writeCSV(sid, translatedCSV, translated); werr != nil && err == nil {
					err = werr
				}
				// The plain-text transcript of the dub, one artifact per
				// target language.
				txt := translated.TranslatedTranscript()
				name := fmt.Sprintf("translation/%s.txt", p.opts.TargetLanguage)
				if werr := p.c.Store.WriteArtifact(sid, name, []byte(txt+"\n")); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"segments": len(translated.Segments)}, nil
		})
	if err != nil {
		return err
	}

	var merged *types.MergedDiarization
	err = p.stage(ctx, sid, types.StageMerged, 65, "merging same-speaker segments",
		func(ctx context.Context) (any, error) {
			merged = segmerge.MergeDiarization(translated, p.opts.MaxSilence)
			if err := p.c.Store.WriteJSON(sid, mergedJSON, merged); err != nil {
				return nil, err
			}
			return map[string]any{
				"original_segments": merged.OriginalSegmentCount,
				"merged_segments":   merged.MergedSegmentCount,
			}, nil
		})
	if err != nil {
		return err
	}

	voiceMap, err := p.voiceMap(sid)
	if err != nil {
		return err
	}
	err = p.stage(ctx, sid, types.StageSynthesized, 80, "synthesising speech",
		func(ctx context.Context) (any, error) {
			results, err := p.c.Synthesizer.SynthesizeAll(ctx, sid, merged.MergedSegments, p.opts.TargetLanguage, voiceMap)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				p.c.Metrics.RecordSegment(ctx, string(types.StageSynthesized), r.Status)
			}
			if err := p.c.Store.WriteJSON(sid, synthResultsJSON, results); err != nil {
				return nil, err
			}
			return map[string]any{"segments": len(results)}, nil
		})
	if err != nil {
		return err
	}

	var alignment *types.AlignmentMetadata
	err = p.stage(ctx, sid, types.StageAligned, 90, "matching segment durations",
		func(ctx context.Context) (any, error) {
			var err error
			alignment, err = p.c.Aligner.AlignAll(ctx, sid, merged.MergedSegments)
			if err != nil {
				return nil, err
			}
			for _, rec := range alignment.Segments {
				if rec.Status == types.AlignSuccess {
					p.c.Metrics.RecordAlignment(ctx, string(rec.QualityLevel), rec.SpeedFactor)
				}
			}
			return map[string]any{
				"successful": alignment.Successful,
				"failed":     alignment.Failed,
			}, nil
		})
	if err != nil {
		return err
	}

	return p.stage(ctx, sid, types.StageStitched, 98, "assembling final audio",
		func(ctx context.Context) (any, error) {
			sep, err := separation.Metadata(p.c.Store, sid)
			if err != nil {
				sep = nil
			}
			res, err := p.c.Stitcher.Stitch(ctx, sid, alignment, sep)
			if err != nil {
				return nil, err
			}
			return res, nil
		})
}

// stage runs one pipeline stage with status, metrics, and provenance
// bookkeeping. The stage name doubles as the provenance file name. Failures
// classified as provider outages are retried under the configured policy;
// every other kind fails the stage on the first attempt.
func (p *Pipeline) stage(ctx context.Context, sid string, stage types.Stage, progress int, message string, fn func(context.Context) (any, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.setStatus(sid, stage, progress, message)

	start := time.Now()
	detail, err := fn(ctx)
	attempts := 1
	if err != nil && classify(err) == KindExternalUnavailable && p.opts.Retry.Attempts > 1 {
		policy := p.opts.Retry
		policy.Attempts-- // the first try is already spent
		rerr := resilience.Retry(ctx, policy, func(int) error {
			attempts++
			slog.Warn("stage retrying after provider failure",
				"session", sid, "stage", stage, "attempt", attempts, "error", err)
			detail, err = fn(ctx)
			if err == nil || classify(err) != KindExternalUnavailable {
				// Success, or a failure retrying cannot help; stop the loop
				// and let err carry the outcome.
				return nil
			}
			return err
		})
		if rerr != nil {
			err = rerr
		}
	}
	elapsed := time.Since(start)
	p.c.Metrics.RecordStage(ctx, string(stage), elapsed.Seconds())

	prov := map[string]any{
		"run_id":      uuid.NewString(),
		"stage":       string(stage),
		"started_at":  start.UTC().Format(time.RFC3339),
		"finished_at": start.Add(elapsed).UTC().Format(time.RFC3339),
		"duration":    elapsed.Seconds(),
		"attempts":    attempts,
		"status":      "success",
	}
	if detail != nil {
		prov["detail"] = detail
	}
	if err != nil {
		prov["status"] = "error"
		prov["error"] = err.Error()
		prov["error_kind"] = string(Kind(err))
	}
	if perr := p.c.Store.WriteJSON(sid, "tool_outputs/"+string(stage)+".json", prov); perr != nil {
		slog.Warn("provenance write failed", "session", sid, "stage", stage, "error", perr)
	}

	if err != nil {
		return &PipelineError{Kind: Kind(err), Stage: stage, Err: err}
	}
	slog.Info("stage complete", "session", sid, "stage", stage, "duration", elapsed)
	return nil
}

// setStatus records the session's current stage in metadata. Status writes
// are best-effort; a failing write never aborts the run by itself.
func (p *Pipeline) setStatus(sid string, stage types.Stage, progress int, message string) {
	err := p.c.Store.UpdateSection(sid, "processing_status", map[string]any{
		"stage":      string(stage),
		"progress":   progress,
		"message":    message,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("status update failed", "session", sid, "stage", stage, "error", err)
	}
}

// fail parks the session in the terminal error stage and passes err through.
func (p *Pipeline) fail(sid string, err error) error {
	p.setStatus(sid, types.StageError, 0, err.Error())
	slog.Error("session failed", "session", sid, "error", err)
	return err
}

// voiceMap merges the run options' speaker voices with any voices stored on
// the session (set during editing); stored entries win.
func (p *Pipeline) voiceMap(sid string) (map[string]string, error) {
	out := make(map[string]string, len(p.opts.SpeakerVoiceMap))
	for k, v := range p.opts.SpeakerVoiceMap {
		out[k] = v
	}
	raw, err := p.c.Store.GetField(sid, "speaker_voice_map", map[string]any{})
	if err != nil {
		return nil, err
	}
	if m, ok := raw.(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok && s != "" {
				out[k] = s
			}
		}
	}
	return out, nil
}

// writeCSV writes the diarization's CSV sibling artifact.
func (p *Pipeline) writeCSV(sid, relpath string, d *types.Diarization) error {
	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		return err
	}
	return p.c.Store.WriteArtifact(sid, relpath, buf.Bytes())
}

// voiceMapAny converts a string map for metadata storage, normalising nil to
// an empty object so the stored document always carries the key.
func voiceMapAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

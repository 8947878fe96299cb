package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/anuvox/anuvox/internal/diarize"
	"github.com/anuvox/anuvox/internal/ingest"
	"github.com/anuvox/anuvox/internal/resilience"
	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/internal/translate"
	"github.com/anuvox/anuvox/pkg/types"
)

// ErrKind classifies a pipeline failure for callers that decide between
// surfacing an error, retrying, and giving up.
type ErrKind string

const (
	// KindInvalidInput marks rejected caller input, such as an unsupported
	// source URL. Retrying cannot help.
	KindInvalidInput ErrKind = "invalid_input"

	// KindNotFound marks a missing session or a missing prerequisite
	// artifact, such as resuming before diarization ran.
	KindNotFound ErrKind = "not_found"

	// KindExternalUnavailable marks provider outages: every link of a
	// fallback chain failed or a circuit breaker is open. These are the only
	// failures a stage retries.
	KindExternalUnavailable ErrKind = "external_unavailable"

	// KindPartialFailure marks per-segment failures that were absorbed
	// inside a stage as error markers or silence substitutes. Stages report
	// these in their artifacts rather than returning them, so a
	// PipelineError rarely carries this kind.
	KindPartialFailure ErrKind = "partial_failure"

	// KindFatal marks everything that halts the run: no speech found, every
	// translation rejected, a separator crash, disk errors.
	KindFatal ErrKind = "fatal"
)

// PipelineError is the error type returned by Run and Resume when a stage
// fails. It carries the failing stage and the failure's kind; the underlying
// error remains reachable through errors.Is and errors.As.
type PipelineError struct {
	Kind  ErrKind
	Stage types.Stage
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline: stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Kind returns the classification of err: the embedded kind when err is (or
// wraps) a PipelineError, otherwise the classification of the error itself.
// A nil error has no kind.
func Kind(err error) ErrKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classify(err)
}

// classify maps known sentinels onto the taxonomy. Anything unrecognised is
// fatal: an unknown failure must halt the run rather than be retried.
func classify(err error) ErrKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ingest.ErrUnsupportedURL):
		return KindInvalidInput
	case errors.Is(err, session.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, resilience.ErrChainExhausted),
		errors.Is(err, resilience.ErrBreakerOpen),
		errors.Is(err, translate.ErrAllSegmentsFailed),
		errors.Is(err, context.DeadlineExceeded):
		return KindExternalUnavailable
	case errors.Is(err, diarize.ErrNoSpeech):
		return KindFatal
	default:
		return KindFatal
	}
}

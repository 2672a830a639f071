// Package faults defines the error taxonomy shared by the pipeline, the queue
// workers, and the provider adapters.
//
// Every failure that crosses a stage boundary is classified into a [Kind].
// The kind decides three things: whether the queue may retry the job, whether
// the orchestrator must fail the whole production or can degrade gracefully,
// and what the operator sees in `adpipe status`.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindValidation marks malformed input. Never retried.
	KindValidation Kind = "VALIDATION"

	// KindAuth marks a rejected credential. Never retried; fails the production.
	KindAuth Kind = "AUTH"

	// KindQuota marks a provider quota/rate rejection. Never retried; the LLM
	// stage responds with the deterministic fallback blueprint instead.
	KindQuota Kind = "QUOTA"

	// KindTimeout marks a stage that exceeded its hard ceiling. Retryable;
	// two consecutive timeouts are upgraded to KindStageStuck.
	KindTimeout Kind = "TIMEOUT"

	// KindTransientProvider marks a retryable provider-side error (5xx,
	// connection reset, etc.).
	KindTransientProvider Kind = "TRANSIENT_PROVIDER"

	// KindAnalysisFailed marks a music analysis failure. Non-fatal; the
	// orchestrator falls back to the synthetic grid (Tier 1).
	KindAnalysisFailed Kind = "ANALYSIS_FAILED"

	// KindAlignmentInfeasible marks an aligner that could not place the voice.
	// Non-fatal; voiceDelay collapses to zero.
	KindAlignmentInfeasible Kind = "ALIGNMENT_INFEASIBLE"

	// KindAlignmentMismatch marks a TTS character alignment shorter than the
	// synthesised text. Non-fatal; the caller proceeds without timings.
	KindAlignmentMismatch Kind = "ALIGNMENT_MISMATCH"

	// KindScalingRefused marks a time-stretch request outside the 0.85–1.25
	// ratio clamp. Logged; the original audio is kept.
	KindScalingRefused Kind = "SCALING_REFUSED"

	// KindLoudnessMeasureFailed marks a failed loudness measurement. Non-fatal;
	// the first mix is kept.
	KindLoudnessMeasureFailed Kind = "LOUDNESS_MEASURE_FAILED"

	// KindStageStuck marks a stage that timed out twice in a row. Fatal.
	KindStageStuck Kind = "STAGE_STUCK"

	// KindConfigMissing marks an unset required secret or setting. Fatal.
	KindConfigMissing Kind = "CONFIG_MISSING"
)

// IsValid reports whether k is a recognised failure kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindValidation, KindAuth, KindQuota, KindTimeout, KindTransientProvider,
		KindAnalysisFailed, KindAlignmentInfeasible, KindAlignmentMismatch,
		KindScalingRefused, KindLoudnessMeasureFailed, KindStageStuck,
		KindConfigMissing:
		return true
	}
	return false
}

// Retryable reports whether the queue may re-enqueue a job that failed with
// this kind.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindTransientProvider
}

// Fatal reports whether this kind forces the owning production into FAILED.
// Non-fatal kinds permit graceful degradation at the orchestrator's
// discretion.
func (k Kind) Fatal() bool {
	return k == KindAuth || k == KindStageStuck || k == KindConfigMissing
}

// Error is a classified pipeline failure. It wraps the underlying cause so
// errors.Is/As keep working through the classification layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. A nil err yields a classified error
// with only the message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the [Kind] from err. Unclassified errors report
// KindTransientProvider, the safe retryable default for provider plumbing.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransientProvider
}

// Retryable reports whether err may be retried, looking through wrapping.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

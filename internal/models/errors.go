package models

import (
	"errors"
	"fmt"
)

// Sentinel errors used across storage and pipeline layers
var (
	// ErrJobNotFound is returned when a job ID does not exist in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrVersionConflict is returned by conditional updates when the record
	// version changed between read and write
	ErrVersionConflict = errors.New("version conflict")

	// ErrNoMessage is returned when the queue is empty
	ErrNoMessage = errors.New("no messages in queue")

	// ErrTerminalJob is returned when a write targets a job already in
	// SUCCESS or FAILED
	ErrTerminalJob = errors.New("job is in a terminal state")
)

// FailureKind classifies stage failures for retry and reporting decisions
type FailureKind string

const (
	// FailureInvalidTicker - the symbol cannot be resolved; permanent, user-facing
	FailureInvalidTicker FailureKind = "invalid_ticker"
	// FailureProviderUnavailable - upstream provider errored; transient
	FailureProviderUnavailable FailureKind = "provider_unavailable"
	// FailureProviderTimeout - provider call exceeded its deadline; transient
	FailureProviderTimeout FailureKind = "provider_timeout"
	// FailureModelInference - LLM call failed; permanent for the stage
	FailureModelInference FailureKind = "model_inference_error"
	// FailurePersistenceConflict - conditional update retries exhausted
	FailurePersistenceConflict FailureKind = "persistence_conflict"
	// FailureInternal - anything else
	FailureInternal FailureKind = "internal"
)

// Retryable reports whether queue-level redelivery may clear the failure
func (k FailureKind) Retryable() bool {
	return k == FailureProviderUnavailable || k == FailureProviderTimeout
}

// StageError is a classified failure from one pipeline stage
type StageError struct {
	Stage  StageKind
	Kind   FailureKind
	Ticker string
	Cause  error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s stage failed (%s)", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// UserMessage renders the failure for the job record's error field: names the
// ticker, gives a generic explanation, and appends the technical cause without
// stack detail.
func (e *StageError) UserMessage() string {
	var reason string
	switch e.Kind {
	case FailureInvalidTicker:
		reason = "The ticker symbol could not be resolved to a listed company."
	case FailureProviderUnavailable:
		reason = "A market data provider was unavailable."
	case FailureProviderTimeout:
		reason = "A market data provider did not respond in time."
	case FailureModelInference:
		reason = "The language model could not complete the analysis."
	case FailurePersistenceConflict:
		reason = "The job record could not be updated due to concurrent writes."
	default:
		reason = "An unexpected error occurred while processing the analysis."
	}

	msg := fmt.Sprintf("Analysis failed for ticker '%s'. %s", e.Ticker, reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (Details: %v)", msg, e.Cause)
	}
	return msg
}

// NewStageError builds a classified stage failure
func NewStageError(stage StageKind, kind FailureKind, ticker string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Ticker: ticker, Cause: cause}
}

// AsStageError extracts a StageError from an error chain, wrapping unclassified
// errors as FailureInternal for the given stage.
func AsStageError(stage StageKind, ticker string, err error) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return NewStageError(stage, FailureInternal, ticker, err)
}

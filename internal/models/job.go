package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an analysis job
type JobStatus string

const (
	JobStatusPending               JobStatus = "PENDING"
	JobStatusDataFetching          JobStatus = "DATA_FETCHING"
	JobStatusIntelligenceGathering JobStatus = "INTELLIGENCE_GATHERING"
	JobStatusPredicting            JobStatus = "PREDICTING"
	JobStatusAnalyzing             JobStatus = "ANALYZING"
	JobStatusSummarizing           JobStatus = "SUMMARIZING"
	JobStatusSuccess               JobStatus = "SUCCESS"
	JobStatusFailed                JobStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// Any non-terminal status may move to FAILED; everything else follows the
// pipeline order. INTELLIGENCE_GATHERING and PREDICTING describe the same
// fan-out phase, so either may stand in for the other while both branches run.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}

	switch s {
	case JobStatusPending:
		return next == JobStatusDataFetching
	case JobStatusDataFetching:
		return next == JobStatusIntelligenceGathering || next == JobStatusPredicting
	case JobStatusIntelligenceGathering:
		return next == JobStatusPredicting || next == JobStatusAnalyzing
	case JobStatusPredicting:
		return next == JobStatusIntelligenceGathering || next == JobStatusAnalyzing
	case JobStatusAnalyzing:
		return next == JobStatusSummarizing
	case JobStatusSummarizing:
		return next == JobStatusSuccess
	default:
		return false
	}
}

// StageKind identifies one unit of pipeline work
type StageKind string

const (
	StageData         StageKind = "data"
	StageIntelligence StageKind = "intelligence"
	StagePrediction   StageKind = "prediction"
	StageAnalysis     StageKind = "analysis"
	StageAdvisor      StageKind = "advisor"
)

// ParallelBranches are the stages dispatched together after the data stage.
// Both must report before the pipeline advances to analysis.
var ParallelBranches = []StageKind{StageIntelligence, StagePrediction}

// IsBranch reports whether the stage is one of the fan-out pair
func (k StageKind) IsBranch() bool {
	return k == StageIntelligence || k == StagePrediction
}

// JoinState tracks which fan-out branches have reported for a job.
// It lives inside the job record so branch completion and join bookkeeping
// commit in the same conditional update.
type JoinState struct {
	IntelligenceDone bool   `json:"intelligence_done"`
	PredictionDone   bool   `json:"prediction_done"`
	IntelligenceErr  string `json:"intelligence_err,omitempty"`
	PredictionErr    string `json:"prediction_err,omitempty"`
}

// MarkReported records a branch completion with an optional error
func (j *JoinState) MarkReported(kind StageKind, errMsg string) {
	switch kind {
	case StageIntelligence:
		j.IntelligenceDone = true
		j.IntelligenceErr = errMsg
	case StagePrediction:
		j.PredictionDone = true
		j.PredictionErr = errMsg
	}
}

// Reported reports whether the given branch has already checked in
func (j *JoinState) Reported(kind StageKind) bool {
	switch kind {
	case StageIntelligence:
		return j.IntelligenceDone
	case StagePrediction:
		return j.PredictionDone
	default:
		return false
	}
}

// BothReported reports whether the join barrier is satisfied
func (j *JoinState) BothReported() bool {
	return j.IntelligenceDone && j.PredictionDone
}

// FirstError returns the first branch error, if any branch failed
func (j *JoinState) FirstError() string {
	if j.IntelligenceErr != "" {
		return j.IntelligenceErr
	}
	return j.PredictionErr
}

// AnalysisJob is the durable record for one ticker analysis request.
// Stage workers and the coordinator mutate it exclusively through the job
// store's conditional update, keyed on Version.
type AnalysisJob struct {
	ID     string    `json:"id" badgerhold:"key"`
	Ticker string    `json:"ticker"` // Normalized EXCHANGE:CODE form, immutable after creation
	Status JobStatus `json:"status"`

	// Result accumulates one sub-key per stage. Keys are additive: a retry of
	// the same stage overwrites its own key, nothing ever deletes one.
	Result AnalysisResult `json:"result"`

	// Join tracks the intelligence/prediction fan-out barrier
	Join JoinState `json:"join"`

	// Dispatched records which stages have been enqueued, keyed by StageKind.
	// Checked before every enqueue so duplicate completion events cannot
	// double-dispatch a downstream stage.
	Dispatched map[StageKind]bool `json:"dispatched,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version increments on every committed write. Conditional updates compare
	// it to detect concurrent writers.
	Version uint64 `json:"version"`
}

// NewAnalysisJob creates a pending job for the given normalized ticker
func NewAnalysisJob(ticker string) *AnalysisJob {
	now := time.Now().UTC()
	return &AnalysisJob{
		ID:         "job_" + uuid.New().String(),
		Ticker:     ticker,
		Status:     JobStatusPending,
		Dispatched: make(map[StageKind]bool),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkDispatched records that a stage has been enqueued for this job.
// Returns false when the stage was already dispatched.
func (j *AnalysisJob) MarkDispatched(kind StageKind) bool {
	if j.Dispatched == nil {
		j.Dispatched = make(map[StageKind]bool)
	}
	if j.Dispatched[kind] {
		return false
	}
	j.Dispatched[kind] = true
	return true
}

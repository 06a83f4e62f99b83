package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to data fetching", JobStatusPending, JobStatusDataFetching, true},
		{"pending cannot skip to analyzing", JobStatusPending, JobStatusAnalyzing, false},
		{"data fetching to intelligence", JobStatusDataFetching, JobStatusIntelligenceGathering, true},
		{"data fetching to predicting", JobStatusDataFetching, JobStatusPredicting, true},
		{"fan-out phase to analyzing", JobStatusPredicting, JobStatusAnalyzing, true},
		{"analyzing to summarizing", JobStatusAnalyzing, JobStatusSummarizing, true},
		{"summarizing to success", JobStatusSummarizing, JobStatusSuccess, true},
		{"summarizing cannot loop back", JobStatusSummarizing, JobStatusAnalyzing, false},
		{"any non-terminal to failed", JobStatusIntelligenceGathering, JobStatusFailed, true},
		{"success is terminal", JobStatusSuccess, JobStatusFailed, false},
		{"failed is terminal", JobStatusFailed, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJoinState(t *testing.T) {
	var join JoinState
	assert.False(t, join.BothReported())

	join.MarkReported(StageIntelligence, "")
	assert.True(t, join.Reported(StageIntelligence))
	assert.False(t, join.Reported(StagePrediction))
	assert.False(t, join.BothReported())

	join.MarkReported(StagePrediction, "forecast provider down")
	assert.True(t, join.BothReported())
	assert.Equal(t, "forecast provider down", join.FirstError())
}

func TestAnalysisJob_MarkDispatched(t *testing.T) {
	job := NewAnalysisJob("NASDAQ:ACME")
	require.Equal(t, JobStatusPending, job.Status)

	assert.True(t, job.MarkDispatched(StageData))
	assert.False(t, job.MarkDispatched(StageData), "second dispatch of same stage must be rejected")
	assert.True(t, job.MarkDispatched(StageIntelligence))
}

func TestAnalysisResult_SubKeyCount(t *testing.T) {
	var result AnalysisResult
	assert.Equal(t, 0, result.SubKeyCount())

	result.Fundamentals = &Fundamentals{CompanyName: "Acme Corp", CurrentPrice: 100}
	result.Briefing = &Briefing{Summary: SentimentSummary{}}
	assert.Equal(t, 2, result.SubKeyCount())
}

func TestStageError_UserMessage(t *testing.T) {
	err := NewStageError(StageData, FailureInvalidTicker, "ZZZZINVALID", errors.New("no symbol match"))
	msg := err.UserMessage()

	assert.Contains(t, msg, "Analysis failed for ticker 'ZZZZINVALID'")
	assert.Contains(t, msg, "Details: no symbol match")
	assert.NotContains(t, msg, "goroutine", "no stack detail in user message")
}

func TestFailureKind_Retryable(t *testing.T) {
	assert.True(t, FailureProviderTimeout.Retryable())
	assert.True(t, FailureProviderUnavailable.Retryable())
	assert.False(t, FailureInvalidTicker.Retryable())
	assert.False(t, FailureModelInference.Retryable())
	assert.False(t, FailurePersistenceConflict.Retryable())
}

func TestAsStageError(t *testing.T) {
	classified := NewStageError(StagePrediction, FailureProviderTimeout, "ACME", errors.New("deadline exceeded"))
	got := AsStageError(StagePrediction, "ACME", classified)
	assert.Equal(t, FailureProviderTimeout, got.Kind)

	plain := errors.New("something odd")
	got = AsStageError(StageAdvisor, "ACME", plain)
	assert.Equal(t, FailureInternal, got.Kind)
	assert.Equal(t, StageAdvisor, got.Stage)
}

package models

// StageMessage is the structure stored in the queue.
// Keep it simple - just enough to route the stage to a worker.
type StageMessage struct {
	JobID  string    `json:"job_id"` // References AnalysisJob.ID
	Stage  StageKind `json:"stage"`  // Stage kind for worker routing
	Ticker string    `json:"ticker"` // Denormalized for logging and provider calls
}

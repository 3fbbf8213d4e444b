package model

import "time"

// AnalysisStartRequest represents the request to start an analysis job
type AnalysisStartRequest struct {
	VideoID   string          `json:"videoId" validate:"required,uuid"`
	Profile   AnalysisProfile `json:"profile" validate:"required,oneof=fast standard deep"`
	SampleFPS *int            `json:"sampleFps" validate:"omitempty,min=1,max=30"`
}

// AnalysisStartResponse represents the response when starting an analysis
type AnalysisStartResponse struct {
	JobID             string    `json:"job_id"`
	Status            JobStatus `json:"status"`
	EstimatedDuration int       `json:"estimated_duration"`
	CreatedAt         time.Time `json:"created_at"`
}

// StatusResponse is the wire shape of GET /api/v1/analysis/:jobId/status.
// The same struct is decoded by the client-side status poller, so field
// names are part of the external contract.
type StatusResponse struct {
	JobID                  string    `json:"job_id"`
	Status                 JobStatus `json:"status"`
	OverallProgress        int       `json:"overall_progress"`
	CurrentStep            string    `json:"current_step,omitempty"`
	Steps                  []Step    `json:"steps"`
	EstimatedTimeRemaining *int      `json:"estimated_time_remaining,omitempty"`
	Error                  *string   `json:"error,omitempty"`
}

// AnalysisResultResponse represents the result of a completed analysis
type AnalysisResultResponse struct {
	ID        string         `json:"id"`
	VideoID   string         `json:"video_id"`
	Duration  float64        `json:"duration"`
	Scenes    []SceneResult  `json:"scenes"`
	Objects   []ObjectResult `json:"objects"`
	CreatedAt time.Time      `json:"created_at"`
}

// SceneResult represents one detected scene in the analyzed video
type SceneResult struct {
	ID           string  `json:"id"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
}

// ObjectResult represents an aggregated object detection
type ObjectResult struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
}

// AnalysisCancelResponse represents the response when canceling an analysis
type AnalysisCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
}

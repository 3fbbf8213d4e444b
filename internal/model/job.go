package model

import "time"

// Job represents a background analysis job in the system
type Job struct {
	ID          string          `json:"id"`
	VideoID     string          `json:"videoId"`
	Profile     AnalysisProfile `json:"profile"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Steps       []Step          `json:"steps"`
	ETASeconds  *int            `json:"etaSeconds,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Payload     []byte          `json:"payload,omitempty"`
	Result      []byte          `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// AnalysisJobPayload contains the data for an analysis job
type AnalysisJobPayload struct {
	VideoID   string          `json:"videoId"`
	Profile   AnalysisProfile `json:"profile"`
	SampleFPS *int            `json:"sampleFps,omitempty"`
}

// Step is one pipeline stage of an analysis job. Step names are unique within
// a job and the slice order is the display order.
type Step struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Progress *int       `json:"progress,omitempty"`
	Message  string     `json:"message,omitempty"`
}

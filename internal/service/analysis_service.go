package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipsight/api/internal/model"
)

const (
	TaskTypeAnalysis = "analysis:process"
)

const jobTTL = 24 * time.Hour

// AnalysisService handles analysis job management
type AnalysisService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewAnalysisService(redisClient *redis.Client, asynqClient *asynq.Client) *AnalysisService {
	return &AnalysisService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartAnalysis queues a new analysis job
func (s *AnalysisService) StartAnalysis(ctx context.Context, req *model.AnalysisStartRequest) (*model.AnalysisStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		VideoID:   req.VideoID,
		Profile:   req.Profile,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Steps:     model.PendingSteps(req.Profile),
		CreatedAt: now,
	}

	payload := &model.AnalysisJobPayload{
		VideoID:   req.VideoID,
		Profile:   req.Profile,
		SampleFPS: req.SampleFPS,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	job.Payload = payloadBytes

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newAnalysisTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("analysis"),
		asynq.MaxRetry(3),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.AnalysisStartResponse{
		JobID:             jobID,
		Status:            model.JobStatusQueued,
		EstimatedDuration: estimateDuration(req.Profile),
		CreatedAt:         now,
	}, nil
}

// GetStatus returns the current status of an analysis job
func (s *AnalysisService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.StatusResponse{
		JobID:                  job.ID,
		Status:                 job.Status,
		OverallProgress:        job.Progress,
		CurrentStep:            job.CurrentStep,
		Steps:                  job.Steps,
		EstimatedTimeRemaining: job.ETASeconds,
		Error:                  job.Error,
	}, nil
}

// GetResult returns the result of a completed analysis job
func (s *AnalysisService) GetResult(ctx context.Context, jobID string) (*model.AnalysisResultResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.AnalysisResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// Cancel cancels an analysis job
func (s *AnalysisService) Cancel(ctx context.Context, jobID string) (*model.AnalysisCancelResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("job already completed")
	}

	job.Status = model.JobStatusCanceled
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	return &model.AnalysisCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// UpdateProgress moves a job to the named step with the given overall
// progress and remaining-time estimate (called by worker). Earlier steps are
// marked completed, the named one processing.
func (s *AnalysisService) UpdateProgress(ctx context.Context, jobID string, progress int, step string, etaSeconds int) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == model.JobStatusCanceled {
		return fmt.Errorf("job canceled")
	}

	job.Progress = progress
	job.CurrentStep = step
	job.ETASeconds = &etaSeconds

	seen := false
	for i := range job.Steps {
		switch {
		case job.Steps[i].Name == step:
			job.Steps[i].Status = model.StepStatusProcessing
			seen = true
		case !seen:
			job.Steps[i].Status = model.StepStatusCompleted
			job.Steps[i].Progress = nil
		default:
			job.Steps[i].Status = model.StepStatusPending
		}
	}

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// Complete marks a job as succeeded and stores its result (called by worker)
func (s *AnalysisService) Complete(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = ""
	job.Result = resultBytes
	zero := 0
	job.ETASeconds = &zero
	for i := range job.Steps {
		job.Steps[i].Status = model.StepStatusCompleted
		job.Steps[i].Progress = nil
	}
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Fail marks a job as failed (called by worker)
func (s *AnalysisService) Fail(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	if step := currentStep(job); step != nil {
		step.Status = model.StepStatusFailed
	}
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *AnalysisService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *AnalysisService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func currentStep(job *model.Job) *model.Step {
	for i := range job.Steps {
		if job.Steps[i].Name == job.CurrentStep {
			return &job.Steps[i]
		}
	}
	return nil
}

func newAnalysisTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}{
		JobID:   jobID,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalysis, taskPayload), nil
}

func estimateDuration(profile model.AnalysisProfile) int {
	total := 0
	for _, st := range model.Pipeline(profile) {
		total += st.Weight
	}
	// roughly one second per weight point in the simulated pipeline
	return total
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipsight/api/internal/model"
	"github.com/clipsight/api/internal/service"
	"github.com/clipsight/api/internal/websocket"
)

// defaultPace paces the simulated pipeline: each progress point of a stage's
// weight costs this long.
const defaultPace = time.Second

// AnalysisWorker processes analysis jobs
type AnalysisWorker struct {
	service *service.AnalysisService
	hub     *websocket.Hub
	pace    time.Duration
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(svc *service.AnalysisService, hub *websocket.Hub) *AnalysisWorker {
	return &AnalysisWorker{
		service: svc,
		hub:     hub,
		pace:    defaultPace,
	}
}

// ProcessTask handles analysis task processing
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting analysis job: %s", jobID)

	var payload model.AnalysisJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal analysis payload: %w", err)
	}

	stages := model.Pipeline(payload.Profile)
	totalWeight := 0
	for _, st := range stages {
		totalWeight += st.Weight
	}

	done := 0
	for _, stage := range stages {
		select {
		case <-ctx.Done():
			log.Printf("Analysis job %s cancelled", jobID)
			return ctx.Err()
		default:
		}

		eta := int(time.Duration(totalWeight-done) * w.pace / time.Second)
		if err := w.service.UpdateProgress(ctx, jobID, done, stage.Name, eta); err != nil {
			// Cancel is signalled through the job record; stop processing.
			if err.Error() == "job canceled" {
				log.Printf("Analysis job %s canceled by caller", jobID)
				return nil
			}
			log.Printf("Failed to update progress: %v", err)
		}

		w.hub.BroadcastProgress(jobID, done, model.JobStatusRunning, stage.Name, stage.Detail)

		// Simulate stage work
		time.Sleep(time.Duration(stage.Weight) * w.pace)
		done += stage.Weight
	}

	result := w.generateMockResult(&payload)

	if err := w.service.Complete(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, result)

	log.Printf("Analysis job %s completed", jobID)
	return nil
}

func (w *AnalysisWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.service.Fail(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, errMsg)
}

var sceneLabels = []string{"interview", "outdoor", "crowd", "close-up", "title card", "action"}
var objectLabels = []string{"person", "car", "bicycle", "dog", "sign", "chair"}

func (w *AnalysisWorker) generateMockResult(payload *model.AnalysisJobPayload) *model.AnalysisResultResponse {
	duration := 90 + rand.Float64()*300

	sceneCount := 3 + rand.Intn(5)
	scenes := make([]model.SceneResult, 0, sceneCount)
	cursor := 0.0
	for i := 0; i < sceneCount; i++ {
		length := duration / float64(sceneCount)
		scenes = append(scenes, model.SceneResult{
			ID:           uuid.New().String(),
			StartSeconds: cursor,
			EndSeconds:   cursor + length,
			Label:        sceneLabels[rand.Intn(len(sceneLabels))],
			Confidence:   0.6 + rand.Float64()*0.4,
		})
		cursor += length
	}

	var objects []model.ObjectResult
	if payload.Profile != model.ProfileFast {
		for _, label := range objectLabels[:3+rand.Intn(3)] {
			objects = append(objects, model.ObjectResult{
				Label:      label,
				Count:      1 + rand.Intn(12),
				Confidence: 0.5 + rand.Float64()*0.5,
			})
		}
	}

	return &model.AnalysisResultResponse{
		ID:        uuid.New().String(),
		VideoID:   payload.VideoID,
		Duration:  duration,
		Scenes:    scenes,
		Objects:   objects,
		CreatedAt: time.Now(),
	}
}

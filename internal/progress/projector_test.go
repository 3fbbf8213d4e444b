package progress

import (
	"testing"

	"github.com/clipsight/api/internal/model"
)

func progressMsg(p int, step string) model.Message {
	return model.Message{
		Type:     model.MessageTypeProgress,
		Progress: &p,
		Status:   string(model.JobStatusRunning),
		Step:     step,
	}
}

func TestOverallProgressIsMonotonicAndClamped(t *testing.T) {
	p := NewProjector("job-1")

	sequence := []int{10, 50, 30, 50, 150, 90}
	var observed []int
	for _, v := range sequence {
		p.ApplyMessage(progressMsg(v, ""))
		observed = append(observed, p.Snapshot().OverallProgress)
	}

	want := []int{10, 50, 50, 50, 100, 100}
	for i := range want {
		if observed[i] != want[i] {
			t.Fatalf("after applying %v: got %v, want %v", sequence[:i+1], observed, want)
		}
	}

	neg := -5
	p2 := NewProjector("job-2")
	p2.ApplyMessage(model.Message{Type: model.MessageTypeProgress, Progress: &neg})
	if got := p2.Snapshot().OverallProgress; got != 0 {
		t.Errorf("negative progress clamped to %d, want 0", got)
	}
}

func TestStaleUpdateIsDiscardedWholesale(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(60, "track_objects"))

	stale := 20
	p.ApplyMessage(model.Message{
		Type:     model.MessageTypeProgress,
		Progress: &stale,
		Step:     "extract_frames",
		Message:  "replayed after reconnect",
	})

	s := p.Snapshot()
	if s.OverallProgress != 60 {
		t.Errorf("overall = %d, want 60", s.OverallProgress)
	}
	if s.CurrentStep != "track_objects" {
		t.Errorf("stale update moved current step to %q", s.CurrentStep)
	}
	if s.Message == "replayed after reconnect" {
		t.Error("stale update applied its message")
	}
}

func TestAbsentFieldsKeepPreviousValues(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(40, "detect_scenes"))

	// status-only update, no progress value
	p.ApplyMessage(model.Message{Type: model.MessageTypeProgress, Status: "running"})

	s := p.Snapshot()
	if s.OverallProgress != 40 {
		t.Errorf("overall = %d, want 40", s.OverallProgress)
	}
	if s.CurrentStep != "detect_scenes" {
		t.Errorf("current step = %q, want detect_scenes", s.CurrentStep)
	}
}

func TestStepListKeepsInsertionOrder(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(10, "extract_frames"))
	p.ApplyMessage(progressMsg(40, "detect_scenes"))
	p.ApplyMessage(progressMsg(70, "track_objects"))

	s := p.Snapshot()
	names := []string{"extract_frames", "detect_scenes", "track_objects"}
	if len(s.Steps) != len(names) {
		t.Fatalf("got %d steps, want %d", len(s.Steps), len(names))
	}
	for i, name := range names {
		if s.Steps[i].Name != name {
			t.Errorf("step %d = %q, want %q", i, s.Steps[i].Name, name)
		}
	}

	// superseded steps are completed, the current one processing
	if s.Steps[0].Status != model.StepStatusCompleted || s.Steps[1].Status != model.StepStatusCompleted {
		t.Errorf("earlier steps not completed: %+v", s.Steps)
	}
	if s.Steps[2].Status != model.StepStatusProcessing {
		t.Errorf("current step status = %q, want processing", s.Steps[2].Status)
	}
}

func TestCompleteAndErrorMessages(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(80, "aggregate_results"))
	p.ApplyMessage(model.Message{Type: model.MessageTypeComplete})

	s := p.Snapshot()
	if s.OverallProgress != 100 || s.Status != string(model.JobStatusSucceeded) {
		t.Errorf("complete not applied: %+v", s)
	}
	if !s.Terminal() {
		t.Error("completed state not terminal")
	}

	p2 := NewProjector("job-2")
	p2.ApplyMessage(progressMsg(30, "detect_scenes"))
	p2.ApplyMessage(model.Message{Type: model.MessageTypeError, Message: "decoder crashed"})

	s2 := p2.Snapshot()
	if s2.Status != string(model.JobStatusFailed) {
		t.Errorf("status = %q, want failed", s2.Status)
	}
	if !s2.Terminal() {
		t.Error("failed state not terminal")
	}
	if s2.Steps[0].Status != model.StepStatusFailed {
		t.Errorf("current step status = %q, want failed", s2.Steps[0].Status)
	}
}

func TestApplyStatusMergesThroughSameGuard(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(55, "track_objects"))

	// stale poll result loses
	p.ApplyStatus(model.StatusResponse{
		JobID:           "job-1",
		Status:          model.JobStatusRunning,
		OverallProgress: 40,
		CurrentStep:     "detect_scenes",
	})
	if got := p.Snapshot().OverallProgress; got != 55 {
		t.Errorf("stale poll applied: overall = %d, want 55", got)
	}

	// fresh poll result wins and its step list is authoritative
	eta := 12
	stepProg := 50
	p.ApplyStatus(model.StatusResponse{
		JobID:           "job-1",
		Status:          model.JobStatusRunning,
		OverallProgress: 70,
		CurrentStep:     "track_objects",
		Steps: []model.Step{
			{Name: "extract_frames", Status: model.StepStatusCompleted},
			{Name: "detect_scenes", Status: model.StepStatusCompleted},
			{Name: "track_objects", Status: model.StepStatusProcessing, Progress: &stepProg},
		},
		EstimatedTimeRemaining: &eta,
	})

	s := p.Snapshot()
	if s.OverallProgress != 70 {
		t.Errorf("overall = %d, want 70", s.OverallProgress)
	}
	if len(s.Steps) != 3 {
		t.Fatalf("steps not replaced: %+v", s.Steps)
	}
	if s.EstimatedTimeRemaining == nil || *s.EstimatedTimeRemaining != 12 {
		t.Errorf("eta not applied: %+v", s.EstimatedTimeRemaining)
	}
}

func TestPollErrorRetainedAndCleared(t *testing.T) {
	p := NewProjector("job-1")
	p.ApplyMessage(progressMsg(25, "extract_frames"))

	p.SetPollError(errFake)
	s := p.Snapshot()
	if s.PollErr == nil {
		t.Fatal("poll error not retained")
	}
	if s.OverallProgress != 25 {
		t.Errorf("poll error clobbered progress: %d", s.OverallProgress)
	}

	p.ApplyStatus(model.StatusResponse{Status: model.JobStatusRunning, OverallProgress: 30})
	if p.Snapshot().PollErr != nil {
		t.Error("poll error not cleared by successful poll")
	}
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "poll failed" }

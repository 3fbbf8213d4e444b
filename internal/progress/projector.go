// Package progress folds the two progress sources for a job, the status
// channel and the HTTP status poller, into one monotonic snapshot.
package progress

import (
	"sync"

	"github.com/clipsight/api/internal/model"
)

// State is the current progress snapshot for one job. Steps keep insertion
// order, which is the display order.
type State struct {
	JobID                  string
	OverallProgress        int
	Status                 string
	CurrentStep            string
	Message                string
	Steps                  []model.Step
	EstimatedTimeRemaining *int
	PollErr                error
}

// Terminal reports whether the job will make no further progress.
func (s State) Terminal() bool {
	if s.OverallProgress >= 100 {
		return true
	}
	return model.JobStatus(s.Status).Terminal()
}

// Projector folds progress updates into a State. Both the channel router and
// the status poller write through it, so every update passes the same
// monotonic guard: the channel has no sequence numbers, and a reconnect can
// replay messages or race the poller, so an update carrying an overall
// progress lower than the current one is discarded wholesale.
type Projector struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
}

// NewProjector creates an empty projector for one job id.
func NewProjector(jobID string) *Projector {
	return &Projector{state: State{JobID: jobID}}
}

// OnChange registers a callback invoked with a fresh snapshot after every
// applied update. Discarded (stale) updates do not fire it.
func (p *Projector) OnChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Snapshot returns a copy of the current state.
func (p *Projector) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// ApplyMessage folds one channel message into the snapshot. Absent fields
// keep their previous value.
func (p *Projector) ApplyMessage(msg model.Message) {
	p.mu.Lock()
	changed := p.applyMessageLocked(msg)
	p.mu.Unlock()
	if changed {
		p.notify()
	}
}

func (p *Projector) applyMessageLocked(msg model.Message) bool {
	switch msg.Type {
	case model.MessageTypeProgress:
		if msg.Progress != nil {
			next := clampProgress(*msg.Progress)
			if next < p.state.OverallProgress {
				return false // stale or out-of-order update
			}
			p.state.OverallProgress = next
		}
		if msg.Status != "" {
			p.state.Status = msg.Status
		}
		if msg.Message != "" {
			p.state.Message = msg.Message
		}
		if msg.Step != "" {
			p.advanceStep(msg.Step)
		}
		return true

	case model.MessageTypeComplete:
		p.state.OverallProgress = 100
		p.state.Status = string(model.JobStatusSucceeded)
		for i := range p.state.Steps {
			p.state.Steps[i].Status = model.StepStatusCompleted
		}
		return true

	case model.MessageTypeError:
		p.state.Status = string(model.JobStatusFailed)
		if msg.Message != "" {
			p.state.Message = msg.Message
		}
		if p.state.CurrentStep != "" {
			if step := p.findStep(p.state.CurrentStep); step != nil {
				step.Status = model.StepStatusFailed
			}
		}
		return true
	}
	return false
}

// ApplyStatus folds one poll result into the snapshot. The server's step
// list is authoritative and replaces the local one, but the whole update is
// discarded if its overall progress is behind the snapshot.
func (p *Projector) ApplyStatus(st model.StatusResponse) {
	p.mu.Lock()
	next := clampProgress(st.OverallProgress)
	if next < p.state.OverallProgress {
		p.mu.Unlock()
		return
	}
	p.state.OverallProgress = next
	p.state.Status = string(st.Status)
	if st.CurrentStep != "" {
		p.state.CurrentStep = st.CurrentStep
	}
	if st.Steps != nil {
		p.state.Steps = append([]model.Step(nil), st.Steps...)
	}
	if st.EstimatedTimeRemaining != nil {
		p.state.EstimatedTimeRemaining = st.EstimatedTimeRemaining
	}
	if st.Error != nil {
		p.state.Message = *st.Error
	}
	p.state.PollErr = nil
	p.mu.Unlock()
	p.notify()
}

// SetPollError records a non-fatal poll failure alongside the last known
// progress. It is cleared by the next successful poll.
func (p *Projector) SetPollError(err error) {
	p.mu.Lock()
	p.state.PollErr = err
	p.mu.Unlock()
	p.notify()
}

func (p *Projector) notify() {
	p.mu.Lock()
	s := p.snapshotLocked()
	subs := make([]func(State), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (p *Projector) snapshotLocked() State {
	s := p.state
	s.Steps = append([]model.Step(nil), p.state.Steps...)
	return s
}

// advanceStep marks the named step processing and completes the step it
// supersedes. Step names are unique; first sighting appends. Per-step
// progress values come from the poller only, the channel carries the
// overall figure.
func (p *Projector) advanceStep(name string) {
	if p.state.CurrentStep != "" && p.state.CurrentStep != name {
		if prev := p.findStep(p.state.CurrentStep); prev != nil && prev.Status == model.StepStatusProcessing {
			prev.Status = model.StepStatusCompleted
			prev.Progress = nil
		}
	}
	p.state.CurrentStep = name

	step := p.findStep(name)
	if step == nil {
		p.state.Steps = append(p.state.Steps, model.Step{Name: name})
		step = &p.state.Steps[len(p.state.Steps)-1]
	}
	step.Status = model.StepStatusProcessing
}

func (p *Projector) findStep(name string) *model.Step {
	for i := range p.state.Steps {
		if p.state.Steps[i].Name == name {
			return &p.state.Steps[i]
		}
	}
	return nil
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

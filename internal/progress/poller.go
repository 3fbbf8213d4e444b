package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clipsight/api/internal/model"
)

// DefaultPollInterval is how often the status endpoint is polled.
const DefaultPollInterval = 2 * time.Second

// Poller periodically fetches a job's status endpoint and folds the result
// into a projector. It runs independently of the channel so the snapshot has
// a value before the channel connects and while it is reconnecting. Poll
// failures are never fatal: the error is recorded on the snapshot and the
// next tick tries again.
type Poller struct {
	statusURL string
	interval  time.Duration
	client    *http.Client
	proj      *Projector
}

// NewPoller creates a poller against an absolute status URL. A nil client
// falls back to http.DefaultClient; a non-positive interval falls back to
// DefaultPollInterval.
func NewPoller(statusURL string, interval time.Duration, client *http.Client, proj *Projector) *Poller {
	if client == nil {
		client = http.DefaultClient
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		statusURL: statusURL,
		interval:  interval,
		client:    client,
		proj:      proj,
	}
}

// Run polls immediately and then on every tick until the job is terminal or
// the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		if p.proj.Snapshot().Terminal() {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statusURL, nil)
	if err != nil {
		p.proj.SetPollError(err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.proj.SetPollError(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.proj.SetPollError(fmt.Errorf("status endpoint returned %d", resp.StatusCode))
		return
	}

	var st model.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		p.proj.SetPollError(fmt.Errorf("decode status response: %w", err))
		return
	}
	p.proj.ApplyStatus(st)
}

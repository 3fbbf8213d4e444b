package progress

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clipsight/api/internal/channel"
)

// TrackerConfig configures a Tracker. BaseURL is the http(s) base of the
// analysis service (or the gateway fronting it); the channel endpoint and
// status URL for the job are derived from it.
type TrackerConfig struct {
	BaseURL      string
	JobID        string
	Channel      channel.Options
	PollInterval time.Duration

	// Transport and HTTPClient are overridable for tests; zero values use
	// the real websocket transport and http.DefaultClient.
	Transport  channel.Transport
	HTTPClient *http.Client
}

// Tracker follows one job through both progress sources. The channel client
// routes messages into the projector, the poller merges the status endpoint
// on its own cadence, and subscribers get a snapshot after every applied
// update. Done is closed once the snapshot turns terminal.
type Tracker struct {
	jobID  string
	client *channel.Client
	proj   *Projector
	poller *Poller

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewTracker wires a channel client, projector, and poller for one job.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	endpoint, err := channel.Endpoint(cfg.BaseURL, cfg.JobID)
	if err != nil {
		return nil, err
	}
	transport := cfg.Transport
	if transport == nil {
		transport = channel.NewWebsocketTransport()
	}

	proj := NewProjector(cfg.JobID)
	client := channel.New(endpoint, transport, cfg.Channel)
	statusURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v1/analysis/" + cfg.JobID + "/status"
	poller := NewPoller(statusURL, cfg.PollInterval, cfg.HTTPClient, proj)

	t := &Tracker{
		jobID:  cfg.JobID,
		client: client,
		proj:   proj,
		poller: poller,
		done:   make(chan struct{}),
	}
	client.OnMessage(proj.ApplyMessage)
	proj.OnChange(func(s State) {
		if s.Terminal() {
			t.doneOnce.Do(func() { close(t.done) })
		}
	})
	return t, nil
}

// Start connects the channel and begins polling. It is a no-op when already
// started.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.client.Connect(runCtx)
	go t.poller.Run(runCtx)
}

// Stop tears down the channel, the poller, and all timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.client.Close()
}

// Snapshot returns the current merged progress state.
func (t *Tracker) Snapshot() State {
	return t.proj.Snapshot()
}

// OnUpdate registers a callback invoked with a snapshot after every applied
// progress update, from either source.
func (t *Tracker) OnUpdate(fn func(State)) {
	t.proj.OnChange(fn)
}

// OnStateChange registers a callback for channel connection transitions.
func (t *Tracker) OnStateChange(fn func(channel.ConnState)) {
	t.client.OnStateChange(fn)
}

// ConnState returns the channel's connection state.
func (t *Tracker) ConnState() channel.ConnState {
	return t.client.State()
}

// Done is closed once the job is terminal (completed or failed).
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

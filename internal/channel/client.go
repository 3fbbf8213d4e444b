// Package channel implements the resilient status channel client: a single
// duplex connection per job with heartbeat keep-alive and bounded fixed-delay
// reconnection. Inbound frames are decoded and fanned out to subscribers;
// heartbeat replies never reach them.
package channel

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/clipsight/api/internal/model"
)

// ConnState is the connection lifecycle state of a Client.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Defaults for Options.
const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// Options tune the heartbeat and reconnection behavior. Zero values fall
// back to the defaults above.
type Options struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return o
}

// TransportError wraps a socket-level failure surfaced to error subscribers.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "channel transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Client owns one duplex connection to a job-scoped channel endpoint.
//
// All timer and routing work runs on a single owner goroutine started by
// Connect, so subscribers observe messages in arrival order and teardown
// cannot race a firing timer. Reconnection uses a fixed delay with a hard
// attempt cap: once the cap is exceeded the client parks in Failed until
// Connect is called again.
type Client struct {
	endpoint  string
	transport Transport
	opts      Options

	mu       sync.Mutex
	state    ConnState
	conn     Conn
	attempts int
	closed   bool
	running  bool
	cancel   context.CancelFunc

	subscribers []func(model.Message)
	stateSubs   []func(ConnState)
	errSubs     []func(error)
	lastMessage *model.Message
}

// New creates a client for one job's channel endpoint. Nothing happens until
// Connect is called.
func New(endpoint string, transport Transport, opts Options) *Client {
	return &Client{
		endpoint:  endpoint,
		transport: transport,
		opts:      opts.withDefaults(),
		state:     Disconnected,
	}
}

// OnMessage registers a subscriber invoked synchronously, in registration
// order, for every inbound message except heartbeat replies.
func (c *Client) OnMessage(fn func(model.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// OnStateChange registers a callback for connection state transitions.
func (c *Client) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, fn)
}

// OnError registers a callback for transport-level errors. Errors are
// informational: recovery is handled by the reconnect supervisor.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errSubs = append(c.errSubs, fn)
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastMessage returns the most recent subscriber-visible message, or nil.
func (c *Client) LastMessage() *model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

// Connect starts the connection supervisor. It is a no-op while a supervisor
// is already running or after Close. Calling Connect again after the client
// entered Failed restarts with a fresh attempt counter.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.running {
		return
	}
	c.running = true
	c.attempts = 0
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
}

// Send marshals and writes a message if the channel is currently connected.
// The return value reports whether the write was attempted and accepted by
// the transport, not whether it was delivered.
func (c *Client) Send(msg model.Message) bool {
	c.mu.Lock()
	conn := c.conn
	ok := c.state == Connected && conn != nil
	c.mu.Unlock()
	if !ok {
		return false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return conn.WriteMessage(data) == nil
}

// Close tears the subscription down: the supervisor context is cancelled,
// pending reconnect and heartbeat timers die with it, and the socket is
// closed. Close is idempotent and safe at any point of the lifecycle.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// run is the supervisor loop. It owns every state transition and timer.
func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.setState(Connecting)
	for {
		if ctx.Err() != nil || c.isClosed() {
			c.setState(Disconnected)
			return
		}
		conn, err := c.transport.Dial(ctx, c.endpoint)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				conn.Close()
				c.setState(Disconnected)
				return
			}
			c.conn = conn
			c.attempts = 0
			c.mu.Unlock()

			c.setState(Connected)
			c.serve(ctx, conn)

			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()

			if ctx.Err() != nil || c.isClosed() {
				c.setState(Disconnected)
				return
			}
		} else {
			c.notifyError(&TransportError{Err: err})
			if ctx.Err() != nil || c.isClosed() {
				c.setState(Disconnected)
				return
			}
		}

		c.mu.Lock()
		c.attempts++
		exhausted := c.attempts > c.opts.MaxReconnectAttempts
		if exhausted {
			// Clear running before publishing Failed so a caller reacting
			// to the transition can immediately re-invoke Connect.
			c.running = false
		}
		c.mu.Unlock()
		if exhausted {
			c.setState(Failed)
			return
		}

		c.setState(Reconnecting)
		select {
		case <-time.After(c.opts.ReconnectDelay):
		case <-ctx.Done():
			c.setState(Disconnected)
			return
		}
	}
}

// serve pumps one established connection: inbound frames are routed, a ping
// is written every heartbeat interval. It returns when the connection dies
// or the supervisor context is cancelled; the heartbeat ticker is released
// on the way out so a reconnect never stacks a second timer.
func (c *Client) serve(ctx context.Context, conn Conn) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case data := <-frames:
			c.route(data)
		case err := <-readErr:
			if ctx.Err() == nil && !c.isClosed() {
				c.notifyError(&TransportError{Err: err})
			}
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			ping, _ := json.Marshal(model.Ping())
			if err := conn.WriteMessage(ping); err != nil {
				c.notifyError(&TransportError{Err: err})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// route decodes one inbound frame and fans it out. Malformed frames are
// logged and dropped; pong frames are the heartbeat's own replies and are
// swallowed before subscribers see them.
func (c *Client) route(data []byte) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("channel: dropping malformed frame: %v", err)
		return
	}
	if msg.Type == model.MessageTypePong {
		return
	}

	c.mu.Lock()
	m := msg
	c.lastMessage = &m
	subs := make([]func(model.Message), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(ConnState), len(c.stateSubs))
	copy(subs, c.stateSubs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (c *Client) notifyError(err error) {
	c.mu.Lock()
	subs := make([]func(error), len(c.errSubs))
	copy(subs, c.errSubs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

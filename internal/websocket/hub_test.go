package websocket

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"

	"github.com/clipsight/api/internal/model"
)

func newTestClient(jobID string) *Client {
	return &Client{JobID: jobID, Send: make(chan []byte, 16)}
}

func receive(t *testing.T, c *Client) model.Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
		return model.Message{}
	}
}

func TestBroadcastProgressReachesJobSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newTestClient("job-a")
	b := newTestClient("job-a")
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastProgress("job-a", 35, model.JobStatusRunning, "detect_scenes", "scene pass")

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != model.MessageTypeProgress {
			t.Errorf("type = %q, want progress", msg.Type)
		}
		if msg.JobID != "job-a" {
			t.Errorf("jobId = %q, want job-a", msg.JobID)
		}
		if msg.Progress == nil || *msg.Progress != 35 {
			t.Errorf("progress = %v, want 35", msg.Progress)
		}
		if msg.Step != "detect_scenes" {
			t.Errorf("step = %q", msg.Step)
		}
	}
}

func TestBroadcastIsIsolatedPerJob(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newTestClient("job-a")
	b := newTestClient("job-b")
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastProgress("job-a", 50, model.JobStatusRunning, "track_objects", "")
	receive(t, a)

	select {
	case data := <-b.Send:
		t.Errorf("job-b subscriber received job-a broadcast: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastCompleteCarriesResultPayload(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient("job-a")
	hub.Register(c)

	hub.BroadcastComplete("job-a", map[string]int{"scenes": 4})

	msg := receive(t, c)
	if msg.Type != model.MessageTypeComplete {
		t.Fatalf("type = %q, want complete", msg.Type)
	}
	if msg.Progress == nil || *msg.Progress != 100 {
		t.Errorf("progress = %v, want 100", msg.Progress)
	}
	if msg.Status != string(model.JobStatusSucceeded) {
		t.Errorf("status = %q, want succeeded", msg.Status)
	}
	var payload map[string]int
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload["scenes"] != 4 {
		t.Errorf("payload = %v", payload)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient("job-a")
	hub.Register(c)
	hub.BroadcastProgress("job-a", 10, model.JobStatusRunning, "extract_frames", "")
	receive(t, c)

	hub.Unregister(c)

	// Send channel is closed by the hub on unregister.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.Send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel not closed after unregister")
		}
	}
}

// startChannelApp serves the hub's channel endpoint on a loopback listener,
// wired the way main.go mounts it.
func startChannelApp(t *testing.T, hub *Hub) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analysis/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String()
}

func dialChannel(t *testing.T, base, jobID string) *gws.Conn {
	t.Helper()

	var conn *gws.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = gws.DefaultDialer.Dial(base+"/ws/analysis/"+jobID, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial: %v", err)
	return nil
}

func TestPingAnsweredWithPongNotForwarded(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	base := startChannelApp(t, hub)

	c1 := dialChannel(t, base, "job-a")
	c2 := dialChannel(t, base, "job-a")

	ping, err := json.Marshal(model.Ping())
	if err != nil {
		t.Fatalf("marshal ping: %v", err)
	}
	if err := c1.WriteMessage(gws.TextMessage, ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	c1.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := c1.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var reply model.Message
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Type != model.MessageTypePong {
		t.Errorf("reply type = %q, want pong", reply.Type)
	}

	// The reply is private to the pinging connection; the other subscriber
	// of the same job sees nothing.
	c2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := c2.ReadMessage(); err == nil {
		t.Errorf("other subscriber received %s", data)
	}
}

func TestLatePingAfterEvictionIsDiscarded(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Undrained client: the broadcast evicts it and closes its send channel.
	c := &Client{JobID: "job-a", Send: make(chan []byte)}
	hub.Register(c)
	hub.BroadcastProgress("job-a", 10, model.JobStatusRunning, "extract_frames", "")

	waitForClosed(t, c)

	// The reader loop answers a client ping with this exact send. It must be
	// refused, not panic on the closed channel.
	reply, err := json.Marshal(model.Pong())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if c.trySend(reply) {
		t.Error("send accepted on evicted client")
	}
}

func waitForClosed(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("send channel never closed")
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := &Client{JobID: "job-a", Send: make(chan []byte)} // no buffer, never drained
	hub.Register(c)

	hub.BroadcastProgress("job-a", 10, model.JobStatusRunning, "extract_frames", "")

	// Nobody is draining Send, so the hub must close it instead of blocking.
	time.Sleep(50 * time.Millisecond)
	select {
	case _, ok := <-c.Send:
		if ok {
			t.Fatal("expected closed channel for slow subscriber")
		}
	case <-time.After(time.Second):
		t.Fatal("slow subscriber channel never closed")
	}
}

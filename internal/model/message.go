package model

import "encoding/json"

// Status channel message types
const (
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeProgress = "progress"
	MessageTypeComplete = "complete"
	MessageTypeError    = "error"
)

// Message is the envelope for every frame on the status channel, both
// directions. Type discriminates; all other fields are optional. Pointer
// fields distinguish "absent" from zero so receivers can fall back to the
// previous value.
type Message struct {
	Type     string          `json:"type"`
	JobID    string          `json:"jobId,omitempty"`
	Progress *int            `json:"progress,omitempty"`
	Status   string          `json:"status,omitempty"`
	Step     string          `json:"step,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Ping returns the client liveness probe frame.
func Ping() Message {
	return Message{Type: MessageTypePing}
}

// Pong returns the server reply to a liveness probe.
func Pong() Message {
	return Message{Type: MessageTypePong}
}

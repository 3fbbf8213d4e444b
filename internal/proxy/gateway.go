// Package proxy implements the edge gateway: a transparent streaming relay
// of any /api request to the internal analysis backend.
package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DefaultBackendURL is used when no backend address is configured.
const DefaultBackendURL = "http://localhost:8000"

// excludedHeaders are never forwarded to the backend. Matching is
// case-insensitive; everything else is relayed unchanged.
var excludedHeaders = map[string]bool{
	"host":       true,
	"connection": true,
	"origin":     true,
	"referer":    true,
}

// GatewayError is the structured body returned when the backend cannot be
// reached. Backend responses themselves, whatever their status, are relayed
// verbatim and never rewritten into this shape.
type GatewayError struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Config holds the gateway's only state: where the backend lives.
type Config struct {
	BackendURL string
}

// Gateway relays requests to the internal backend. It is stateless per
// request and safe for concurrent use; bodies are streamed in both
// directions so large multipart uploads are never buffered whole.
type Gateway struct {
	backendURL string
	client     *http.Client
}

// New creates a gateway for the configured backend base URL.
func New(cfg Config) *Gateway {
	base := strings.TrimSuffix(cfg.BackendURL, "/")
	if base == "" {
		base = DefaultBackendURL
	}
	return &Gateway{
		backendURL: base,
		// No client timeout: long-running uploads and analyses must not be
		// cut off at this layer. Deadlines belong to the caller.
		client: &http.Client{},
	}
}

// Register mounts the relay on every method under /api.
func (g *Gateway) Register(app *fiber.App) {
	app.All("/api/*", g.Forward)
}

// Forward relays one request: same method, same path and query against the
// backend base, filtered headers, streamed body, verbatim response.
func (g *Gateway) Forward(c *fiber.Ctx) error {
	target := g.backendURL + c.OriginalURL()

	var body io.Reader
	if c.Request().IsBodyStream() {
		body = c.Context().RequestBodyStream()
	} else if len(c.Body()) > 0 {
		body = bytes.NewReader(c.Body())
	}

	req, err := http.NewRequestWithContext(c.UserContext(), c.Method(), target, body)
	if err != nil {
		return badGateway(c, err)
	}

	c.Request().Header.VisitAll(func(k, v []byte) {
		key := string(k)
		lower := strings.ToLower(key)
		if excludedHeaders[lower] || lower == "content-length" || lower == "transfer-encoding" {
			return
		}
		req.Header.Add(key, string(v))
	})
	if cl := c.Request().Header.ContentLength(); cl > 0 {
		req.ContentLength = int64(cl)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return badGateway(c, err)
	}

	c.Status(resp.StatusCode)
	for k, vv := range resp.Header {
		if lower := strings.ToLower(k); lower == "content-length" || lower == "transfer-encoding" {
			continue
		}
		for _, v := range vv {
			c.Response().Header.Add(k, v)
		}
	}

	// fasthttp closes the stream when the response is done, so the backend
	// body is released even for aborted downloads.
	size := -1
	if resp.ContentLength >= 0 {
		size = int(resp.ContentLength)
	}
	c.Context().SetBodyStream(resp.Body, size)
	return nil
}

func badGateway(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadGateway).JSON(GatewayError{
		Detail:  err.Error(),
		Message: "Unable to reach the analysis backend",
	})
}

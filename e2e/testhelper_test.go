package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipsight/api/internal/handler"
	"github.com/clipsight/api/internal/middleware"
	"github.com/clipsight/api/internal/service"
)

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go but without the asynq
// worker server, so enqueued jobs stay queued for the duration of a test.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis on localhost, skipped below when unreachable
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available on localhost:6379: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	analysisService := service.NewAnalysisService(redisClient, asynqClient)
	uploadService := service.NewUploadService(t.TempDir())

	analysisHandler := handler.NewAnalysisHandler(analysisService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Use very high rate limits so tests don't get blocked
	analysis := api.Group("/analysis")
	analysis.Post("/", rateLimiter.AnalysisLimit(10000), analysisHandler.Start)
	analysis.Get("/:jobId/status", analysisHandler.Status)
	analysis.Get("/:jobId/result", analysisHandler.Result)
	analysis.Post("/:jobId/cancel", analysisHandler.Cancel)

	videos := api.Group("/videos", rateLimiter.UploadLimit(10000))
	videos.Post("/", uploadHandler.Video)
	videos.Delete("/:videoId", uploadHandler.DeleteVideo)

	return &testApp{app: app}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the code field of an error envelope.
func assertErrorCode(t *testing.T, body map[string]interface{}, expected string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("no error object in response: %v", body)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %s, got %v", expected, errObj["code"])
	}
}

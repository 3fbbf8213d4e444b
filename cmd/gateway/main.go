package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/clipsight/api/internal/config"
	"github.com/clipsight/api/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app := fiber.New(fiber.Config{
		// Request bodies are handed to the relay as a stream so multipart
		// uploads pass through without being buffered whole.
		StreamRequestBody:     true,
		BodyLimit:             4 * 1024 * 1024 * 1024, // 4GB
		DisableStartupMessage: false,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "backend": cfg.Gateway.BackendURL})
	})

	gateway := proxy.New(proxy.Config{BackendURL: cfg.Gateway.BackendURL})
	gateway.Register(app)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down gateway...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Gateway shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Gateway.Port
	log.Printf("Gateway starting on %s -> %s", addr, cfg.Gateway.BackendURL)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

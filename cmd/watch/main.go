package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/clipsight/api/internal/channel"
	"github.com/clipsight/api/internal/config"
	"github.com/clipsight/api/internal/progress"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	// Flag defaults come from the same config file the services read, so a
	// tuned reconnect_delay applies to the CLI as well.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	var jobID string

	cmd := &cli.Command{
		Name:  "watch",
		Usage: "Follow the progress of an analysis job until it finishes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Aliases: []string{"b"},
				Usage:   "Base URL of the analysis service or the gateway fronting it",
				Value:   "http://localhost:8000",
			},
			&cli.DurationFlag{
				Name:  "heartbeat",
				Usage: "Channel heartbeat interval",
				Value: cfg.Channel.HeartbeatInterval,
			},
			&cli.DurationFlag{
				Name:  "reconnect-delay",
				Usage: "Delay between reconnection attempts",
				Value: cfg.Channel.ReconnectDelay,
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Reconnection attempts before giving up",
				Value: int64(cfg.Channel.MaxReconnectAttempts),
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Status poll cadence",
				Value: cfg.Channel.PollInterval,
			},
		},
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "jobId", Max: 1, Destination: &jobID},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if jobID == "" {
				return cli.Exit("job id is required", 1)
			}

			tracker, err := progress.NewTracker(progress.TrackerConfig{
				BaseURL: cmd.String("base-url"),
				JobID:   jobID,
				Channel: channel.Options{
					HeartbeatInterval:    cmd.Duration("heartbeat"),
					ReconnectDelay:       cmd.Duration("reconnect-delay"),
					MaxReconnectAttempts: int(cmd.Int("max-attempts")),
				},
				PollInterval: cmd.Duration("poll-interval"),
			})
			if err != nil {
				return err
			}

			tracker.OnStateChange(func(s channel.ConnState) {
				logger.Debug("channel state", "state", s.String())
				if s == channel.Failed {
					logger.Warn("channel gave up reconnecting, progress continues via polling")
				}
			})
			tracker.OnUpdate(func(s progress.State) {
				if s.PollErr != nil {
					logger.Warn("status poll failed", "job", jobID, "err", s.PollErr)
					return
				}
				logger.Info("progress",
					"job", jobID,
					"overall", fmt.Sprintf("%d%%", s.OverallProgress),
					"step", s.CurrentStep,
					"status", s.Status,
				)
			})

			runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracker.Start(runCtx)
			defer tracker.Stop()

			select {
			case <-tracker.Done():
			case <-runCtx.Done():
				logger.Info("interrupted")
				return nil
			}

			final := tracker.Snapshot()
			if final.Status == "failed" {
				logger.Error("analysis failed", "job", jobID, "message", final.Message)
				return cli.Exit("", 1)
			}
			logger.Info("analysis complete", "job", jobID)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("watch error: %v", err)
	}
}

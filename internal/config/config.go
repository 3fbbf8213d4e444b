package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Analysis  AnalysisConfig
	Gateway   GatewayConfig
	Redis     RedisConfig
	Channel   ChannelConfig
	RateLimit RateLimitConfig
}

type AnalysisConfig struct {
	Port     string
	Env      string
	MediaDir string
}

type GatewayConfig struct {
	Port       string
	BackendURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChannelConfig carries the client-side channel and poller timings. The
// defaults match what the dashboard ships with.
type ChannelConfig struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
}

type RateLimitConfig struct {
	AnalysisPerHour int
	UploadPerHour   int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("analysis.port", "8000")
	viper.SetDefault("analysis.env", "development")
	viper.SetDefault("analysis.media_dir", "./media")
	viper.SetDefault("gateway.port", "3000")
	viper.SetDefault("gateway.backend_url", "http://localhost:8000")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("channel.heartbeat_interval", "30s")
	viper.SetDefault("channel.reconnect_delay", "3s")
	viper.SetDefault("channel.max_reconnect_attempts", 10)
	viper.SetDefault("channel.poll_interval", "2s")
	viper.SetDefault("ratelimit.analysis_per_hour", 20)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	// BACKEND_URL is the gateway's single deployment knob
	_ = viper.BindEnv("gateway.backend_url", "BACKEND_URL")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Analysis: AnalysisConfig{
			Port:     viper.GetString("analysis.port"),
			Env:      viper.GetString("analysis.env"),
			MediaDir: viper.GetString("analysis.media_dir"),
		},
		Gateway: GatewayConfig{
			Port:       viper.GetString("gateway.port"),
			BackendURL: viper.GetString("gateway.backend_url"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Channel: ChannelConfig{
			HeartbeatInterval:    viper.GetDuration("channel.heartbeat_interval"),
			ReconnectDelay:       viper.GetDuration("channel.reconnect_delay"),
			MaxReconnectAttempts: viper.GetInt("channel.max_reconnect_attempts"),
			PollInterval:         viper.GetDuration("channel.poll_interval"),
		},
		RateLimit: RateLimitConfig{
			AnalysisPerHour: viper.GetInt("ratelimit.analysis_per_hour"),
			UploadPerHour:   viper.GetInt("ratelimit.upload_per_hour"),
		},
	}

	return cfg, nil
}

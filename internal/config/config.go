package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the voice agent widget.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Path is the YAML file the config was read from, if any.
	Path string `yaml:"-"`
}

type AgentConfig struct {
	ClientKey string `yaml:"client_key"`
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	Name      string `yaml:"name"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkSize       int    `yaml:"chunk_size"`
}

type SessionConfig struct {
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
	StopTimeoutMS    int `yaml:"stop_timeout_ms"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func (s SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}

func (s SessionConfig) StopTimeout() time.Duration {
	return time.Duration(s.StopTimeoutMS) * time.Millisecond
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			URL: "wss://localhost:8443/v1/agent",
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			ChunkSize:       3200,
		},
		Session: SessionConfig{
			ConnectTimeoutMS: 30000,
			StopTimeoutMS:    10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file named by
// VOICEDESK_CONFIG_FILE, and environment variables, in increasing priority.
// A dotenv file (VOICEDESK_ENV_FILE, or ./.env when present) fills unset
// environment variables first. Missing credentials are not an error here;
// the permission gate reports them when a call is started.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("VOICEDESK_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = path
	}

	cfg.Agent.ClientKey = firstNonEmpty(os.Getenv("VOICEDESK_CLIENT_KEY"), os.Getenv("VITE_VAPI_CLIENT_KEY"), cfg.Agent.ClientKey)
	cfg.Agent.ID = firstNonEmpty(os.Getenv("VOICEDESK_AGENT_ID"), os.Getenv("VITE_VAPI_AGENT_ID"), cfg.Agent.ID)
	cfg.Agent.URL = envOrDefault("VOICEDESK_AGENT_URL", cfg.Agent.URL)
	cfg.Agent.Name = envOrDefault("VOICEDESK_AGENT_NAME", cfg.Agent.Name)

	cfg.Audio.RecorderCommand = envOrDefault("VOICEDESK_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VOICEDESK_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("VOICEDESK_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("VOICEDESK_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOICEDESK_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = envOrDefaultInt("VOICEDESK_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)

	cfg.Session.ConnectTimeoutMS = nonNegativeIntOrDefault("VOICEDESK_CONNECT_TIMEOUT_MS", cfg.Session.ConnectTimeoutMS)
	cfg.Session.StopTimeoutMS = nonNegativeIntOrDefault("VOICEDESK_STOP_TIMEOUT_MS", cfg.Session.StopTimeoutMS)

	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = envOrDefault("VOICEDESK_METRICS_ADDR", cfg.Metrics.Addr)

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 3200
	}
	if cfg.Session.ConnectTimeoutMS < 0 {
		cfg.Session.ConnectTimeoutMS = 0
	}
	if cfg.Session.StopTimeoutMS < 0 {
		cfg.Session.StopTimeoutMS = 0
	}

	return cfg, nil
}

func loadDotenv() error {
	path := strings.TrimSpace(os.Getenv("VOICEDESK_ENV_FILE"))
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func nonNegativeIntOrDefault(key string, fallback int) int {
	parsed := envOrDefaultInt(key, fallback)
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// Package config loads the meeting client configuration from YAML with
// environment overrides for the values that differ per machine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Signaling struct {
		BrokerURL    string        `yaml:"broker_url"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
	} `yaml:"signaling"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	ControlAPI struct {
		Address         string        `yaml:"address"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"control_api"`

	Media struct {
		// Local RTP ingest: a capture pipeline (ffmpeg, gstreamer) feeds
		// audio and video here; the screen feed has its own port.
		CameraAudioPort int `yaml:"camera_audio_port"`
		CameraVideoPort int `yaml:"camera_video_port"`
		ScreenVideoPort int `yaml:"screen_video_port"`
		// Remote streams are forwarded back out as RTP for rendering.
		ForwardBase int           `yaml:"forward_base_port"`
		CallTimeout time.Duration `yaml:"call_timeout"`
	} `yaml:"media"`

	Session struct {
		WaitingRoom    bool          `yaml:"waiting_room"`
		Mesh           bool          `yaml:"mesh"`
		RosterInterval time.Duration `yaml:"roster_interval"`
	} `yaml:"session"`

	Limits struct {
		JoinRequestsPerSecond float64 `yaml:"join_requests_per_second"`
		JoinBurst             int     `yaml:"join_burst"`
		ChatMessagesPerSecond float64 `yaml:"chat_messages_per_second"`
		ChatBurst             int     `yaml:"chat_burst"`
		APIRequestsPerSecond  float64 `yaml:"api_requests_per_second"`
		APIBurst              int     `yaml:"api_burst"`
	} `yaml:"limits"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads configPath, falling back to defaults when the file is absent.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Signaling.BrokerURL = "ws://localhost:9000/peers"
	cfg.Signaling.PingInterval = 30 * time.Second
	cfg.Signaling.PongTimeout = 60 * time.Second
	cfg.Signaling.DialTimeout = 10 * time.Second

	cfg.WebRTC.ICEServers = []struct {
		URLs       []string `yaml:"urls"`
		Username   string   `yaml:"username,omitempty"`
		Credential string   `yaml:"credential,omitempty"`
	}{
		{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
	}

	cfg.ControlAPI.Address = "127.0.0.1:7350"
	cfg.ControlAPI.ShutdownTimeout = 10 * time.Second

	cfg.Media.CameraAudioPort = 5004
	cfg.Media.CameraVideoPort = 5006
	cfg.Media.ScreenVideoPort = 5008
	cfg.Media.ForwardBase = 6000
	cfg.Media.CallTimeout = 30 * time.Second

	cfg.Session.WaitingRoom = true
	cfg.Session.RosterInterval = 3 * time.Second

	cfg.Limits.JoinRequestsPerSecond = 5
	cfg.Limits.JoinBurst = 10
	cfg.Limits.ChatMessagesPerSecond = 20
	cfg.Limits.ChatBurst = 40
	cfg.Limits.APIRequestsPerSecond = 50
	cfg.Limits.APIBurst = 100

	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PEERMEET_BROKER_URL"); v != "" {
		c.Signaling.BrokerURL = v
	}
	if v := os.Getenv("PEERMEET_CONTROL_ADDR"); v != "" {
		c.ControlAPI.Address = v
	}
	if v := os.Getenv("PEERMEET_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Signaling.BrokerURL == "" {
		return fmt.Errorf("signaling.broker_url must not be empty")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.PongTimeout <= c.Signaling.PingInterval {
		return fmt.Errorf("signaling.pong_timeout must be > ping_interval")
	}
	if c.ControlAPI.Address == "" {
		return fmt.Errorf("control_api.address must not be empty")
	}
	if c.Media.CallTimeout <= 0 {
		return fmt.Errorf("media.call_timeout must be > 0")
	}
	if c.Session.RosterInterval <= 0 {
		return fmt.Errorf("session.roster_interval must be > 0")
	}
	if c.Limits.JoinRequestsPerSecond <= 0 || c.Limits.JoinBurst <= 0 {
		return fmt.Errorf("limits.join_requests_per_second and join_burst must be > 0")
	}
	if c.Limits.ChatMessagesPerSecond <= 0 || c.Limits.ChatBurst <= 0 {
		return fmt.Errorf("limits.chat_messages_per_second and chat_burst must be > 0")
	}
	if c.Limits.APIRequestsPerSecond <= 0 || c.Limits.APIBurst <= 0 {
		return fmt.Errorf("limits.api_requests_per_second and api_burst must be > 0")
	}
	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	return nil
}

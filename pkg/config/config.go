// Package config loads layered configuration for the threat-map binaries:
// struct defaults, then an optional YAML file, then THREATMAP_* environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from override variables; "__" maps to the key
// separator, so THREATMAP_BACKEND__URL sets backend.url.
const envPrefix = "THREATMAP_"

// Config is the full configuration for both binaries; each reads the sections
// it cares about.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Viewer    ViewerConfig    `koanf:"viewer"`
	Simulator SimulatorConfig `koanf:"simulator"`
	Log       LogConfig       `koanf:"log"`
}

// BackendConfig points the viewer at the sensing backend.
type BackendConfig struct {
	// URL is the backend base URL, e.g. http://localhost:8080.
	URL string `koanf:"url"`
	// StreamTransport is "sse" or "websocket".
	StreamTransport string `koanf:"stream_transport"`
	// PollInterval is the snapshot reconciliation interval; 0 disables
	// polling.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// ViewerConfig shapes the headless frame renderer.
type ViewerConfig struct {
	Width         int           `koanf:"width"`
	Height        int           `koanf:"height"`
	FrameDir      string        `koanf:"frame_dir"`
	FrameInterval time.Duration `koanf:"frame_interval"`
	// SortKey orders the logged event list: "timestamp" or "risk".
	SortKey string `koanf:"sort_key"`
}

// SimulatorConfig shapes the feed-simulator dev backend.
type SimulatorConfig struct {
	Addr string `koanf:"addr"`
	// DataDir holds the badger event journal.
	DataDir string `koanf:"data_dir"`
	// Rate is generated events per minute.
	Rate float64 `koanf:"rate"`
	Seed int64   `koanf:"seed"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:             "http://localhost:8080",
			StreamTransport: "sse",
			PollInterval:    5 * time.Second,
		},
		Viewer: ViewerConfig{
			Width:         1920,
			Height:        1080,
			FrameDir:      "frames",
			FrameInterval: 2 * time.Second,
			SortKey:       "timestamp",
		},
		Simulator: SimulatorConfig{
			Addr:    ":8080",
			DataDir: "data/simulator",
			Rate:    30,
			Seed:    0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. path may be empty or name a file that does
// not exist; both fall back to defaults plus environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the binaries cannot start with.
func (c *Config) Validate() error {
	switch c.Backend.StreamTransport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("backend.stream_transport must be sse or websocket, got %q", c.Backend.StreamTransport)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must not be empty")
	}
	if c.Backend.PollInterval < 0 {
		return fmt.Errorf("backend.poll_interval must not be negative")
	}
	if c.Viewer.Width <= 0 || c.Viewer.Height <= 0 {
		return fmt.Errorf("viewer canvas must be positive, got %dx%d", c.Viewer.Width, c.Viewer.Height)
	}
	switch c.Viewer.SortKey {
	case "timestamp", "risk":
	default:
		return fmt.Errorf("viewer.sort_key must be timestamp or risk, got %q", c.Viewer.SortKey)
	}
	if c.Simulator.Rate <= 0 {
		return fmt.Errorf("simulator.rate must be positive, got %f", c.Simulator.Rate)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexusim/nexusim/internal/core/scheduler"
)

// Duration wraps time.Duration so YAML files can use "5s" style values;
// bare integers are taken as nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration value")
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full host configuration, loadable from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

type SimulationConfig struct {
	TickRate        int           `yaml:"tick_rate" json:"tick_rate"`
	MaxEntities     int           `yaml:"max_entities" json:"max_entities"`
	MaxRestarts     int           `yaml:"max_restarts" json:"max_restarts"`
	RestartWindow   Duration      `yaml:"restart_window" json:"restart_window"`
	MailboxSize     int           `yaml:"mailbox_size" json:"mailbox_size"`
	BudgetMargin    Duration      `yaml:"budget_margin" json:"budget_margin"`
	InitialEntities int           `yaml:"initial_entities" json:"initial_entities"`
	WorldBounds     float64       `yaml:"world_bounds" json:"world_bounds"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8090",
		},
		Simulation: SimulationConfig{
			TickRate:        scheduler.DefaultTickRate,
			MaxEntities:     50_000,
			MaxRestarts:     10,
			RestartWindow:   Duration(5 * time.Second),
			MailboxSize:     128,
			BudgetMargin:    Duration(2 * time.Millisecond),
			InitialEntities: 0,
			WorldBounds:     1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the host cannot run with.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}
	s := c.Simulation
	if s.TickRate < scheduler.MinTickRate || s.TickRate > scheduler.MaxTickRate {
		return fmt.Errorf("tick rate %d out of bounds %d-%d",
			s.TickRate, scheduler.MinTickRate, scheduler.MaxTickRate)
	}
	if s.MaxEntities <= 0 {
		return fmt.Errorf("max entities must be positive")
	}
	if s.MaxRestarts <= 0 {
		return fmt.Errorf("max restarts must be positive")
	}
	if s.RestartWindow <= 0 {
		return fmt.Errorf("restart window must be positive")
	}
	if s.InitialEntities < 0 || s.InitialEntities > s.MaxEntities {
		return fmt.Errorf("initial entities must be within 0-%d", s.MaxEntities)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mhollis/netatmo-publisher/internal/stationref"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// StationReferences is free-form text containing weather-map locators.
	StationReferences string
	NamingPolicy      stationref.NamingPolicy

	TokenURL     string
	MeasureURL   string
	TokenTimeout time.Duration
	FetchTimeout time.Duration

	PollInterval    time.Duration
	MaxInFlight     int
	FetchRatePerSec float64
	RetryDelay      time.Duration
	Epsilon         float64

	StateBackend string // "memory", "sqlite" or "memcached"
	SQLitePath   string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Stations struct {
		References string `yaml:"references"`
		Naming     string `yaml:"naming"`
	} `yaml:"stations"`

	Provider struct {
		TokenURL     string `yaml:"token_url"`
		MeasureURL   string `yaml:"measure_url"`
		TokenTimeout string `yaml:"token_timeout"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"provider"`

	Run struct {
		PollInterval    string  `yaml:"poll_interval"`
		MaxInFlight     int     `yaml:"max_in_flight"`
		FetchRatePerSec float64 `yaml:"fetch_rate_per_sec"`
		RetryDelay      string  `yaml:"retry_delay"`
		Epsilon         float64 `yaml:"epsilon"`
	} `yaml:"run"`

	State struct {
		Backend    string `yaml:"backend"`
		SQLitePath string `yaml:"sqlite_path"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"state"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with a
// .env overlay and env-var overrides. Call from project root.
func Load() (*Config, error) {
	// Optional .env; absence is normal in deployed environments.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.StationReferences = os.Getenv("STATION_REFERENCES")
	if cfg.StationReferences == "" {
		cfg.StationReferences = fc.Stations.References
	}

	naming := strings.TrimSpace(strings.ToLower(os.Getenv("STATION_NAMING")))
	if naming == "" {
		naming = strings.TrimSpace(strings.ToLower(fc.Stations.Naming))
	}
	if naming == "" {
		naming = string(stationref.NamingCounter)
	}
	policy, err := stationref.ParsePolicy(naming)
	if err != nil {
		return nil, err
	}
	cfg.NamingPolicy = policy

	cfg.TokenURL = fc.Provider.TokenURL
	cfg.MeasureURL = fc.Provider.MeasureURL
	cfg.TokenTimeout = parseDuration(fc.Provider.TokenTimeout, 10*time.Second)
	cfg.FetchTimeout = parseDuration(fc.Provider.FetchTimeout, 10*time.Second)

	cfg.PollInterval = parseDuration(fc.Run.PollInterval, 15*time.Minute)
	cfg.MaxInFlight = fc.Run.MaxInFlight
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	cfg.FetchRatePerSec = fc.Run.FetchRatePerSec
	if cfg.FetchRatePerSec < 0 {
		cfg.FetchRatePerSec = 0
	}
	cfg.RetryDelay = parseDuration(fc.Run.RetryDelay, 2*time.Second)
	cfg.Epsilon = fc.Run.Epsilon
	if cfg.Epsilon < 0 {
		cfg.Epsilon = 0
	}

	cfg.StateBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STATE_BACKEND")))
	if cfg.StateBackend == "" {
		cfg.StateBackend = strings.TrimSpace(strings.ToLower(fc.State.Backend))
	}
	if cfg.StateBackend == "" {
		cfg.StateBackend = "memory"
	}
	cfg.SQLitePath = fc.State.SQLitePath
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "netatmo-state.db"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.State.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.State.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.State.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.StationReferences) == "" {
		return fmt.Errorf("stations.references required (or STATION_REFERENCES env)")
	}
	if cfg.PollInterval < time.Minute {
		return fmt.Errorf("run.poll_interval must be at least 1m, got %s", cfg.PollInterval)
	}
	switch cfg.StateBackend {
	case "memory", "sqlite", "memcached":
		// valid
	default:
		return fmt.Errorf("state.backend must be memory, sqlite or memcached, got %q", cfg.StateBackend)
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(cfg.ServerPort, ":")); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", cfg.ServerPort)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PoolConfig describes one upstream pool entry in the coordinator's
// YAML config file.
type PoolConfig struct {
	URL      string `yaml:"url"`
	LPURL    string `yaml:"longpoll_url"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Priority int    `yaml:"priority"`
	Quota    int    `yaml:"quota"`
}

// DeviceProfile describes one device class the coordinator should
// spin up a minerloop for.
type DeviceProfile struct {
	DriverID     string        `yaml:"driver"`
	Count        int           `yaml:"count"`
	HashrateWindow time.Duration `yaml:"hashrate_window"`
}

// CoordinatorConfig is the top-level YAML config for cmd/coordinator.
type CoordinatorConfig struct {
	Strategy string          `yaml:"strategy"` // failover|round_robin|rotate|load_balance|balance
	Pools    []PoolConfig    `yaml:"pools"`
	Devices  []DeviceProfile `yaml:"devices"`

	StatusAddr string `yaml:"status_addr"`

	DatabaseURL      string `yaml:"database_url"`
	StatsLogInterval time.Duration `yaml:"stats_log_interval"`

	RedisURL string `yaml:"redis_url"` // optional, enables cross-process submit dedup
}

// LoadCoordinatorConfig reads and parses a YAML config file.
func LoadCoordinatorConfig(path string) (*CoordinatorConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg CoordinatorConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyCoordinatorDefaults(&cfg)
	return &cfg, nil
}

func applyCoordinatorDefaults(cfg *CoordinatorConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = "failover"
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = ":9090"
	}
	if cfg.StatsLogInterval <= 0 {
		cfg.StatsLogInterval = time.Minute
	}
	for i := range cfg.Devices {
		if cfg.Devices[i].HashrateWindow <= 0 {
			cfg.Devices[i].HashrateWindow = 5 * time.Minute
		}
		if cfg.Devices[i].Count <= 0 {
			cfg.Devices[i].Count = 1
		}
	}
}

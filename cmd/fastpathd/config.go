package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// PortConfig describes one virtual port to bring up at startup.
// bringUpConfiguredPorts attaches it directly, without going through
// a VPORT_NEW control request (spec.md §4.4.3).
type PortConfig struct {
	ID     uint32 `mapstructure:"id"`
	Worker uint32 `mapstructure:"worker"`
	Kind   string `mapstructure:"kind"` // "shared-mem", "tap", "null"
	Name   string `mapstructure:"name"`
	In     bool   `mapstructure:"in"`
	Out    bool   `mapstructure:"out"`
}

// Config is the layered (flag > env > file) configuration surface for
// the daemon: worker topology, physical portmask, ring sizing, and the
// initial port set. Grounded on nabbar-golib's viper-backed config
// struct pairing (config.go alongside a cobra command tree).
type Config struct {
	Workers      int          `mapstructure:"workers"`
	Portmask     uint64       `mapstructure:"portmask"`
	RingCapacity int          `mapstructure:"ring-capacity"`
	SharedRegion string       `mapstructure:"shared-region"`
	MetricsAddr  string       `mapstructure:"metrics-addr"`
	LogLevel     string       `mapstructure:"log-level"`
	Ports        []PortConfig `mapstructure:"ports"`
}

func defaultConfig() Config {
	return Config{
		Workers:      1,
		Portmask:     0,
		RingCapacity: 2048,
		SharedRegion: "",
		MetricsAddr:  "127.0.0.1:9120",
		LogLevel:     "info",
	}
}

// loadConfig reads the layered configuration from v, which has
// already had its flags bound by the cobra command tree.
func loadConfig(v *viper.Viper) (Config, error) {
	cfg := defaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("fastpathd: parse config: %w", err)
	}
	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("fastpathd: workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.RingCapacity <= 0 {
		return Config{}, fmt.Errorf("fastpathd: ring-capacity must be >= 1, got %d", cfg.RingCapacity)
	}
	return cfg, nil
}

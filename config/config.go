package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's startup configuration. Risk parameters live in a
// separate file referenced by RiskConfigFile so operators can redeploy curves
// without touching the service wiring.
type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	Environment          string `toml:"Environment"`
	RiskConfigFile       string `toml:"RiskConfigFile"`
	AuctionLengthSeconds uint64 `toml:"AuctionLengthSeconds"`
	DisputePeriodSeconds uint64 `toml:"DisputePeriodSeconds"`
	LockingPeriodSeconds uint64 `toml:"LockingPeriodSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %q", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./gammadb"
	}
	if cfg.AuctionLengthSeconds == 0 {
		cfg.AuctionLengthSeconds = 3600
	}
	if cfg.DisputePeriodSeconds == 0 {
		cfg.DisputePeriodSeconds = 7200
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

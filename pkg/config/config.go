// Package config holds the recognised driver configuration options
// (spec §6.4): a plain struct of tunables with a constructor supplying
// defaults, loadable from a YAML file for the boltprobe CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornic-bolt-go/pkg/packstream"
	"github.com/orneryd/nornic-bolt-go/pkg/pool"
)

// Config is the set of options spec §6.4 recognises.
type Config struct {
	// DisableLosslessIntegers converts received integers to native
	// float64, matching disable_lossless_integers. Mutually exclusive
	// with UseBigInt; UseBigInt wins if both are set.
	DisableLosslessIntegers bool `yaml:"disable_lossless_integers"`
	// UseBigInt converts received integers to *big.Int.
	UseBigInt bool `yaml:"use_big_int"`

	// MaxConnectionPoolSize bounds connections per address; default 100.
	MaxConnectionPoolSize int `yaml:"max_size"`
	// AcquisitionTimeoutMillis bounds a pool wait in milliseconds,
	// matching the wire option's own unit; default 60000.
	AcquisitionTimeoutMillis int64 `yaml:"acquisition_timeout_ms"`

	// FetchSize is the PULL/DISCARD batch size; stream.FetchAll's
	// wire value (-1) requests everything in one batch.
	FetchSize int64 `yaml:"fetch_size"`

	// UserAgent populates HELLO's user_agent field.
	UserAgent string `yaml:"user_agent"`
	// BoltAgent populates HELLO's structured bolt_agent field (>=V5.3);
	// a non-nil value makes HELLO fail with a capability error on
	// versions that don't support it.
	BoltAgent map[string]any `yaml:"bolt_agent"`
	// ServerSideRouting, when true, is inserted into HELLO on versions
	// that support it.
	ServerSideRouting bool `yaml:"serverside_routing"`
}

// DefaultConfig returns the spec's documented defaults: lossless
// integers, a 100-connection pool cap, and a 60 second acquisition
// timeout.
func DefaultConfig() *Config {
	return &Config{
		MaxConnectionPoolSize:    100,
		AcquisitionTimeoutMillis: 60_000,
		FetchSize:                1000,
		UserAgent:                "nornic-bolt-go",
	}
}

// AcquisitionTimeout returns AcquisitionTimeoutMillis as a
// time.Duration for pool.Config.
func (c *Config) AcquisitionTimeout() time.Duration {
	return time.Duration(c.AcquisitionTimeoutMillis) * time.Millisecond
}

// IntegerPolicy resolves DisableLosslessIntegers/UseBigInt into the
// packstream.IntegerPolicy the Unpacker needs. UseBigInt takes
// precedence when both are set.
func (c *Config) IntegerPolicy() packstream.IntegerPolicy {
	switch {
	case c.UseBigInt:
		return packstream.UseBigInt
	case c.DisableLosslessIntegers:
		return packstream.LossyFloat
	default:
		return packstream.PreservePrecision
	}
}

// PoolConfig projects the pool-relevant fields onto pool.Config.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		MaxSize:            c.MaxConnectionPoolSize,
		AcquisitionTimeout: c.AcquisitionTimeout(),
	}
}

// Load reads a YAML options file into a Config seeded with
// DefaultConfig, so a file that only overrides a few keys leaves the
// rest at their documented defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

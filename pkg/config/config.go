// Package config loads solver configuration from a YAML file and the
// environment, layered defaults first, then a config file if one is found,
// then environment overrides. Command-line flags are not read here.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/spf13/viper"

	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
)

// Variant selects which halo exchange design the driver runs.
type Variant string

const (
	VariantSync     Variant = "sync"     // Design A: exchange-then-compute
	VariantAsync    Variant = "async"    // Design B: overlap innies/outies (default)
	VariantTemporal Variant = "temporal" // Design C: time-skewed, wide halo
)

// RunConfig holds everything a single rank needs to run the solver.
type RunConfig struct {
	// Problem size.
	N             int  `mapstructure:"n"`             // grid side length
	TimeSteps     int  `mapstructure:"time_steps"`     // number of iterations
	OutputEnabled bool `mapstructure:"output_enabled"` // write dump files

	// Mesh and identity.
	Workers int     `mapstructure:"workers"` // total rank count, must be a perfect square
	Rank    int     `mapstructure:"rank"`    // this process's rank, 0..Workers-1
	Variant Variant `mapstructure:"variant"` // exchange design

	// Design C only: temporal blocking window. Ignored otherwise.
	Window int `mapstructure:"window"`

	// Dump policy.
	DumpEvery int    `mapstructure:"dump_every"` // dump every N iterations, 0 disables
	DumpDir   string `mapstructure:"dump_dir"`

	// Transport. PeerAddrs[i] is rank i's address; empty means the local
	// in-process transport is used instead of the grpc transport.
	PeerAddrs   []string `mapstructure:"peer_addrs"`
	BarrierAddr string   `mapstructure:"barrier_addr"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds run-history persistence configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for dump shards.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path, falling back to
// defaults when no file is found, then applies environment overrides.
func Load(configPath string) (*RunConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("stencil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/stencilmesh")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("config file %s not found, using defaults\n", configPath)
		} else {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}

	v.SetEnvPrefix("STENCIL")
	v.AutomaticEnv()

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from in-memory content, useful for tests.
func LoadFromReader(configType string, content []byte) (*RunConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("n", 40)
	v.SetDefault("time_steps", 400)
	v.SetDefault("output_enabled", false)

	v.SetDefault("workers", 1)
	v.SetDefault("rank", 0)
	v.SetDefault("variant", string(VariantAsync))
	v.SetDefault("window", 4)

	v.SetDefault("dump_every", 25)
	v.SetDefault("dump_dir", "./dumps")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.database", "stencilmesh.db")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./dumps")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks invariants the partitioner and CLI parser rely on: the
// worker count must be a perfect square and the grid must divide evenly
// across the resulting mesh side.
func (c *RunConfig) Validate() error {
	if c.N <= 0 {
		return apperrors.Wrap(apperrors.CodeConfigError, "grid size N must be positive", apperrors.ErrMalformedCLI)
	}
	if c.TimeSteps <= 0 {
		return apperrors.Wrap(apperrors.CodeConfigError, "time steps must be positive", apperrors.ErrMalformedCLI)
	}
	if c.Workers <= 0 {
		return apperrors.Wrap(apperrors.CodeConfigError, "worker count must be positive", apperrors.ErrMalformedCLI)
	}

	side := MeshSide(c.Workers)
	if side*side != c.Workers {
		return apperrors.ErrNonSquareWorkerCount
	}
	if c.N%side != 0 {
		return apperrors.ErrIndivisibleGrid
	}
	if c.Rank < 0 || c.Rank >= c.Workers {
		return apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("rank %d out of range [0,%d)", c.Rank, c.Workers), apperrors.ErrMalformedCLI)
	}

	switch c.Variant {
	case VariantSync, VariantAsync, VariantTemporal:
	default:
		return apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("unknown variant %q", c.Variant), apperrors.ErrMalformedCLI)
	}
	if c.Variant == VariantTemporal && c.Window <= 0 {
		return apperrors.Wrap(apperrors.CodeConfigError, "temporal window must be positive", apperrors.ErrMalformedCLI)
	}

	return nil
}

// MeshSide returns the integer square root of workers, or 0 if workers is
// not a perfect square.
func MeshSide(workers int) int {
	side := int(math.Sqrt(float64(workers)))
	for side*side > workers {
		side--
	}
	for (side+1)*(side+1) <= workers {
		side++
	}
	if side*side != workers {
		return 0
	}
	return side
}

// EnsureDumpDir creates the dump directory if it doesn't exist.
func (c *RunConfig) EnsureDumpDir() error {
	if c.DumpDir == "" {
		return nil
	}
	return os.MkdirAll(c.DumpDir, 0755)
}

/*
Package config loads server configuration from a TOML file with
environment variable overrides.

PRECEDENCE (lowest to highest):
 1. Built-in defaults
 2. TOML config file (optional)
 3. Environment variables (EXPENDITURE_*)

EXAMPLE FILE:

	[server]
	addr = "0.0.0.0"
	port = 8080

	[database]
	path = "expenditure.db"

	[engine]
	max_iterations = 200
	convergence_tolerance = 1e-4
	min_step_fraction = 1e-3

ENVIRONMENT VARIABLES:

	EXPENDITURE_ADDR     Server bind address
	EXPENDITURE_PORT     Server port
	EXPENDITURE_DB_PATH  SQLite database path
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/warp/expenditure-engine/allocation"
)

type Config struct {
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
	Engine   Engine   `toml:"engine"`
}

type Server struct {
	Addr string `toml:"addr"`
	Port int    `toml:"port"`
}

type Database struct {
	Path string `toml:"path"`
}

type Engine struct {
	MaxIterations        int     `toml:"max_iterations"`
	ConvergenceTolerance float64 `toml:"convergence_tolerance"`
	MinStepFraction      float64 `toml:"min_step_fraction"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   Server{Addr: "", Port: 8080},
		Database: Database{Path: "expenditure.db"},
		Engine: Engine{
			MaxIterations:        allocation.DefaultMaxIterations,
			ConvergenceTolerance: allocation.DefaultConvergenceTolerance,
			MinStepFraction:      allocation.DefaultMinStepFraction,
		},
	}
}

// Load reads path (if non-empty and present), then applies environment
// overrides. A missing file at an explicitly given path is an error; an
// empty path means no file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s: %w", path, err)
			}
			return Config{}, err
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("EXPENDITURE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("EXPENDITURE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EXPENDITURE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database path is empty")
	}
	if c.Engine.MaxIterations < 0 {
		return fmt.Errorf("config: max_iterations must not be negative")
	}
	if c.Engine.ConvergenceTolerance < 0 {
		return fmt.Errorf("config: convergence_tolerance must not be negative")
	}
	if c.Engine.MinStepFraction < 0 {
		return fmt.Errorf("config: min_step_fraction must not be negative")
	}
	return nil
}

// ListenAddr renders the host:port pair for http.Server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Addr, c.Server.Port)
}

// EngineConfig converts the engine section into solver options.
func (c Config) EngineConfig() allocation.Config {
	return allocation.Config{
		MaxIterations:        c.Engine.MaxIterations,
		ConvergenceTolerance: c.Engine.ConvergenceTolerance,
		MinStepFraction:      c.Engine.MinStepFraction,
	}
}

// Package config loads the lowflow application config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/lowflow/plugins/postgres"
	"github.com/BDNK1/lowflow/plugins/redis"
	"github.com/BDNK1/lowflow/plugins/rest"
	"github.com/BDNK1/lowflow/runtime"
)

const DefaultFile = "lowflow.yaml"

// AppConfig represents the lowflow.yaml structure
type AppConfig struct {
	Project string `yaml:"project" validate:"required"`
	Flows   string `yaml:"flows" default:"flows" validate:"required"`

	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`

	// Engine is validated when the engine is built.
	Engine runtime.Config `yaml:"engine" validate:"-"`
}

type ServerConfig struct {
	Port string `yaml:"port" default:"8080" validate:"required,numeric"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// StoreConfig selects the record store. Only the section matching Kind is
// used, and each store validates its own section.
type StoreConfig struct {
	Kind string `yaml:"kind" default:"memory" validate:"oneof=memory rest redis postgres"`
	// Seed is a JSON seed document. It is loaded into the memory store, or
	// copied into redis and postgres on startup.
	Seed string `yaml:"seed"`

	Rest     rest.Config     `yaml:"rest" validate:"-"`
	Redis    redis.Config    `yaml:"redis" validate:"-"`
	Postgres postgres.Config `yaml:"postgres" validate:"-"`
}

// Load reads the config file, expands environment references, applies
// defaults and validates. Relative paths are resolved against the file's
// directory.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Flows = resolvePath(dir, cfg.Flows)
	if cfg.Store.Seed != "" {
		cfg.Store.Seed = resolvePath(dir, cfg.Store.Seed)
	}
	return cfg, nil
}

// Parse decodes a config document.
func Parse(data []byte) (*AppConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := expandNode(&doc); err != nil {
		return nil, fmt.Errorf("failed to expand config: %w", err)
	}

	var cfg AppConfig
	if len(doc.Content) > 0 {
		if err := doc.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	if err := runtime.PrepareConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

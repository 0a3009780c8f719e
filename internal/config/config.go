// Package config loads application config files for the traverse CLI.
// YAML (.yaml, .yml) and TOML (.toml) are supported.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config describes an application: its routes, templates, database and
// settings.
type Config struct {
	Name      string          `yaml:"name" toml:"name"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Templates TemplatesConfig `yaml:"templates" toml:"templates"`
	Settings  map[string]any  `yaml:"settings" toml:"settings"`
	Routes    []RouteConfig   `yaml:"routes" toml:"routes"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// DatabaseConfig selects the sql driver and DSN. Both or neither are set.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// TemplatesConfig locates the HTML templates.
type TemplatesConfig struct {
	// Dir is resolved relative to the config file.
	Dir      string   `yaml:"dir" toml:"dir"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
}

// RouteConfig is a named route pattern.
type RouteConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Pattern string `yaml:"pattern" toml:"pattern"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Load reads, defaults and validates the config at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return Config{}, fmt.Errorf("config: %s: unsupported format %q", path, ext)
	}

	if cfg.Name == "" {
		cfg.Name = "app"
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]any{}
	}
	if cfg.Templates.Dir != "" && !filepath.IsAbs(cfg.Templates.Dir) {
		cfg.Templates.Dir = filepath.Join(filepath.Dir(path), cfg.Templates.Dir)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that route names are unique and patterns absolute, and
// that a database has both a driver and a DSN or neither.
func Validate(cfg Config) error {
	seen := map[string]bool{}
	for i, r := range cfg.Routes {
		if r.Name == "" {
			return fmt.Errorf("config: routes[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("config: routes[%d]: duplicate route name %q", i, r.Name)
		}
		seen[r.Name] = true
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("config: route %q: pattern %q must start with /", r.Name, r.Pattern)
		}
	}
	if (cfg.Database.Driver == "") != (cfg.Database.DSN == "") {
		return fmt.Errorf("config: database needs both driver and dsn")
	}
	return nil
}

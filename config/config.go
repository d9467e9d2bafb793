// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

type StartType int

const (
	// Tells simplegbm to start without anything beside the window
	START_NONE = StartType(iota)
	// Tells simplegbm to start a repl in parallel for inspecting it
	START_REPL
	// Tells simplegbm to execute a repl command once the first frame is committed
	START_SINGLE_COMMAND
)

// Prefix for environment overrides, e.g. SIMPLEGBM_WIDTH
const EnvPrefix = "simplegbm"

// Relative to the xdg config dirs
var DefaultFile = filepath.Join("simplegbm", "config.toml")

var ErrInvalid = errors.New("invalid config")

type Config struct {
	StartType StartType `envconfig:"START_TYPE" toml:"start_type,omitempty"`
	// What command to execute on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand *string `envconfig:"START_COMMAND" toml:"start_command,omitempty"`

	// Size of the buffer in pixels
	Width  uint32 `envconfig:"WIDTH" toml:"width"`
	Height uint32 `envconfig:"HEIGHT" toml:"height"`
	// Colour every pixel is painted with, as a native endian XRGB8888 word
	Color  uint32 `envconfig:"COLOR" toml:"color"`
	Format string `envconfig:"FORMAT" toml:"format"`
	// Name of the gbm backend, see gbm.Backends
	Backend string `envconfig:"BACKEND" toml:"backend"`
	Title   string `envconfig:"TITLE" toml:"title,omitempty"`

	LogLevel string `envconfig:"LOG_LEVEL" toml:"log_level"`
	// Address to serve prometheus metrics on. Empty disables it
	MetricsAddr string `envconfig:"METRICS_ADDR" toml:"metrics_addr,omitempty"`
}

func Default() *Config {
	return &Config{
		StartType: START_NONE,
		Width:     250,
		Height:    250,
		Color:     0x00770077,
		Format:    gbm.FormatXRGB8888.String(),
		Backend:   gbm.DumbBackendName,
		Title:     "simple-gbm",
		LogLevel:  logrus.InfoLevel.String(),
	}
}

// Load layers the config file and then the environment over the defaults.
// An empty path searches the xdg config dirs; not finding a file there is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if found, err := xdg.SearchConfigFile(DefaultFile); err == nil {
			path = found
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if _, err := c.PixelFormat(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !slices.Contains(gbm.Backends(), c.Backend) {
		return fmt.Errorf("%w: unknown backend %q, have %v", ErrInvalid, c.Backend, gbm.Backends())
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.StartType {
	case START_NONE, START_REPL:
	case START_SINGLE_COMMAND:
		if c.StartCommand == nil || *c.StartCommand == "" {
			return fmt.Errorf("%w: start type %d needs a start command", ErrInvalid, c.StartType)
		}
	default:
		return fmt.Errorf("%w: unknown start type %d", ErrInvalid, c.StartType)
	}
	return nil
}

func (c *Config) PixelFormat() (gbm.Format, error) {
	return gbm.ParseFormat(c.Format)
}

// Level is the parsed LogLevel. Validate first.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/PrincetonUniversity/flock"
)

// Config holds the various parameters required for running a simulation.
type Config struct {
	// Output is either a filename (path) for the HDF5 output file,
	// or the empty string for an interactive simulation.
	Output string

	// Listen is the address of the websocket server, used when Output is empty.
	// The empty string opens an OpenGL window instead.
	Listen string

	Steps   int     // number of ticks (hdf5 only)
	Width   float64 // host size, unit: pixel
	Height  float64 // host size, unit: pixel
	FPS     int     // ticks per second (websocket only)
	Verbose bool    // debug logging

	// flock parameters, at the top level of the file
	flock.Config
}

// DefaultConf are the default parameters.
var DefaultConf = &Config{
	Steps:  1000,
	Width:  1280,
	Height: 800,
	FPS:    60,
	Config: flock.DefaultConfig(),
}

// ParseConfig parses the TOML config file whose path is provided.
func ParseConfig(path string) (*Config, error) {
	// config file overwrites default parameters
	conf := *DefaultConf
	md, err := toml.DecodeFile(path, &conf)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys %s", path, strings.Join(names, ", "))
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &conf, nil
}

// Validate checks the driver parameters, then the flock ones.
func (c *Config) Validate() error {
	switch {
	case !(c.Width > 0 && c.Height > 0):
		return fmt.Errorf("bad size %vx%v", c.Width, c.Height)
	case c.Output != "" && c.Steps <= 0:
		return fmt.Errorf("bad number of steps %d", c.Steps)
	case c.FPS < 0:
		return fmt.Errorf("bad FPS %d", c.FPS)
	}
	return c.Config.Validate()
}

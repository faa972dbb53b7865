// Command boids runs boids flocking simulations.
//
// Usage
//
// The boids command takes one optional argument:
//
//	boids [config_file]
//
// It is the path to a TOML config file.
// If no config file is specified, an interactive simulation
// with default parameters will run in an OpenGL window.
// A few config files ship in the presets directory.
//
// Config file
//
// The config file is written in TOML. Flock parameters sit at the top level
// with the tables [Bounds], [Ranges], [Factors], [Caps] and [VectorField].
// Setting Output records a headless run to an HDF5 file, setting Listen
// streams the simulation to browsers over websockets.
//
// Interactive mode
//
// In interactive mode, the simulation can be paused/resumed with space.
// While in pause, pressing right arrow will perform a single step.
// A, V and N make the cursor attract, repel or be ignored by the boids.
// G toggles color grouping and R regenerates the flock.
// Pressing Esc or closing the window will quit.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/PrincetonUniversity/flock"
	"github.com/PrincetonUniversity/flock/hdf5"
	"github.com/PrincetonUniversity/flock/opengl"
	"github.com/PrincetonUniversity/flock/stream"
	"gonum.org/v1/gonum/spatial/r2"
)

const usage = `Usage: boids [config_file]

The first argument is optional and is the path to a TOML config file.
If no config file is specified, an interactive simulation
with default parameters will run in an OpenGL window.
`

func init() {
	// Most OpenGL functions have to run from the main thread.
	// This is needed to arrange that main() runs on main thread.
	// See https://github.com/golang/go/wiki/LockOSThread for more info.
	runtime.LockOSThread()
}

func main() {
	var conf *Config
	var err error
	switch len(os.Args) {
	case 1:
		conf = DefaultConf
	case 2:
		conf, err = ParseConfig(os.Args[1])
	default:
		err = fmt.Errorf("%d arguments provided (0 required, 1 optional)\n\n%s", len(os.Args)-1, usage)
	}
	if err != nil {
		Fatal(err)
	}

	level := slog.LevelInfo
	if conf.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sim := flock.New(conf.Config, conf.Width, conf.Height, flock.WithLogger(log))

	// run headless, served or interactively depending on config
	switch {
	case conf.Output != "":
		err = hdf5.Run(sim, &hdf5.Config{
			Output:   conf.Output,
			Steps:    conf.Steps,
			Pointer:  center(sim),
			Progress: os.Stdout,
			Log:      log,
		})
	case conf.Listen != "":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = stream.ListenAndServe(ctx, conf.Listen, sim, &stream.Config{FPS: conf.FPS, Log: log})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	default:
		err = opengl.Run(sim, &opengl.Config{
			Width:  int(conf.Width),
			Height: int(conf.Height),
			Log:    log,
		})
	}
	if err != nil {
		Fatal(err)
	}
}

// center returns the middle of the world, where headless runs keep the pointer.
func center(s *flock.Simulation) r2.Vec {
	b := s.Config().Bounds
	return r2.Vec{X: b.Width / 2, Y: b.Height / 2}
}

// Fatal prints an error on the standard error and exits with a non-zero status.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

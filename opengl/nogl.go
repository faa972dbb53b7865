//go:build nogl

package opengl

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/PrincetonUniversity/flock"
)

// Config holds the parameters of the OpenGL driver.
type Config struct {
	Width, Height int
	ForcePause    bool
	BoidSize      float64
	Log           *slog.Logger
}

// Run returns an error explaining that OpenGL support is disabled.
func Run(s *flock.Simulation, conf *Config) error {
	return fmt.Errorf("%s was built without OpenGL support", os.Args[0])
}

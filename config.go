package flock

import (
	"fmt"
	"math"
)

// ConfigVersion is the current version of the Config layout.
const ConfigVersion = 1

// A PointerMode tells how boids react to the pointer.
type PointerMode int

// Pointer modes.
const (
	PointerNone PointerMode = iota
	PointerAttract
	PointerAvoid
)

// String returns the name of the mode as used in config files.
func (m PointerMode) String() string {
	switch m {
	case PointerAttract:
		return "attract"
	case PointerAvoid:
		return "avoid"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m PointerMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PointerMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*m = PointerNone
	case "attract":
		*m = PointerAttract
	case "avoid":
		*m = PointerAvoid
	default:
		return fmt.Errorf("flock: bad pointer mode %q", text)
	}
	return nil
}

// sign returns the multiplier applied to the pointer force.
func (m PointerMode) sign() float64 {
	switch m {
	case PointerAttract:
		return 1
	case PointerAvoid:
		return -1
	}
	return 0
}

// Bounds is the simulation area.
type Bounds struct {
	Width  float64 // unit: simulation unit (set from host size times Scale)
	Height float64 // unit: simulation unit (set from host size times Scale)
	Margin float64 // width of the soft turn zone along each edge
	Scale  float64 // host size to world size ratio
}

// Ranges are the interaction distances.
type Ranges struct {
	Separation float64 // below this boids repel each other
	Visible    float64 // beyond this boids ignore each other
}

// Factors weight the individual steering rules.
type Factors struct {
	Separation float64
	Alignment  float64
	Cohesion   float64
	Drag       float64
	Pointer    float64
	Turn       float64
}

// Caps bound speed and acceleration magnitudes.
type Caps struct {
	MaxSpeed        float64
	MinSpeed        float64
	MaxAcceleration float64
	MinAcceleration float64
}

// VectorField is a user-defined force field given as a pair of expressions
// of the world position relative to the center of the world.
type VectorField struct {
	Factor float64
	X      string // x component, empty for none
	Y      string // y component, empty for none
}

// Config holds every parameter of a flock simulation.
// It is always passed by value: a Simulation never shares it with the host.
type Config struct {
	Version int // layout version, 0 reads as ConfigVersion

	BoidCount      int // number of boids
	NumColorGroups int // number of color groups, at least 1

	Bounds  Bounds
	Ranges  Ranges
	Factors Factors
	Caps    Caps

	ViewAngle     float64     // unit: degrees, in (0, 360]
	PointerMode   PointerMode // none, attract or avoid
	ColorGrouping bool        // align and cohere with own group only
	TrailLength   int         // number of past positions kept per boid

	VectorField VectorField

	Seed    int64 // seed of the random placement, groups and noise
	Workers int   // goroutines used per phase, 1 or less for sequential
}

// DefaultConfig returns the parameters of a classic looking flock.
func DefaultConfig() Config {
	return Config{
		Version:        ConfigVersion,
		BoidCount:      500,
		NumColorGroups: 1,
		Bounds:         Bounds{Margin: 1, Scale: 1},
		Ranges:         Ranges{Separation: 10, Visible: 50},
		Factors: Factors{
			Separation: 0.5,
			Alignment:  0.5,
			Cohesion:   0.1,
			Drag:       0.25,
			Pointer:    0.5,
			Turn:       5,
		},
		Caps: Caps{
			MaxSpeed:        2,
			MinSpeed:        0.5,
			MaxAcceleration: 0.1,
			MinAcceleration: 0.01,
		},
		ViewAngle:     360,
		ColorGrouping: true,
		TrailLength:   25,
		Seed:          1,
		Workers:       1,
	}
}

// A ConfigError reports an invalid configuration parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("flock: invalid %s: %s", e.Field, e.Reason)
}

// Validate returns a *ConfigError describing the first invalid parameter, if any.
// Loaders should call it; the engine itself sanitizes instead of failing.
func (c *Config) Validate() error {
	bad := func(field, reason string) error {
		return &ConfigError{Field: field, Reason: reason}
	}
	finite := func(v ...float64) bool {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
		return true
	}
	f := c.Factors
	switch {
	case c.Version < 0 || c.Version > ConfigVersion:
		return bad("Version", fmt.Sprintf("unsupported version %d", c.Version))
	case c.BoidCount < 0:
		return bad("BoidCount", "must not be negative")
	case c.NumColorGroups < 0:
		return bad("NumColorGroups", "must not be negative")
	case !finite(c.Bounds.Width, c.Bounds.Height, c.Bounds.Margin, c.Bounds.Scale):
		return bad("Bounds", "must be finite")
	case c.Bounds.Width < 0 || c.Bounds.Height < 0 || c.Bounds.Margin < 0 || c.Bounds.Scale < 0:
		return bad("Bounds", "must not be negative")
	case !finite(c.Ranges.Separation, c.Ranges.Visible):
		return bad("Ranges", "must be finite")
	case c.Ranges.Separation < 0 || c.Ranges.Visible < 0:
		return bad("Ranges", "must not be negative")
	case c.Ranges.Separation > c.Ranges.Visible:
		return bad("Ranges", "separation range exceeds visible range")
	case !finite(f.Separation, f.Alignment, f.Cohesion, f.Drag, f.Pointer, f.Turn):
		return bad("Factors", "must be finite")
	case f.Separation < 0 || f.Alignment < 0 || f.Cohesion < 0 || f.Drag < 0 || f.Pointer < 0 || f.Turn < 0:
		return bad("Factors", "must not be negative")
	case !finite(c.Caps.MinSpeed, c.Caps.MaxSpeed, c.Caps.MinAcceleration, c.Caps.MaxAcceleration):
		return bad("Caps", "must be finite")
	case c.Caps.MinSpeed < 0 || c.Caps.MaxSpeed < c.Caps.MinSpeed:
		return bad("Caps", "speeds must satisfy 0 <= MinSpeed <= MaxSpeed")
	case c.Caps.MinAcceleration < 0 || c.Caps.MaxAcceleration < c.Caps.MinAcceleration:
		return bad("Caps", "accelerations must satisfy 0 <= MinAcceleration <= MaxAcceleration")
	case !(c.ViewAngle > 0 && c.ViewAngle <= 360):
		return bad("ViewAngle", "must be in (0, 360]")
	case c.PointerMode < PointerNone || c.PointerMode > PointerAvoid:
		return bad("PointerMode", "unknown mode")
	case c.TrailLength < 0:
		return bad("TrailLength", "must not be negative")
	case !finite(c.VectorField.Factor):
		return bad("VectorField", "factor must be finite")
	}
	return nil
}

// Sanitized returns a copy of c clamped into a runnable state.
// It keeps the simulation going when a host hands over inconsistent values.
func (c Config) Sanitized() Config {
	nonneg := func(x float64) float64 {
		if !(x > 0) || math.IsInf(x, 0) {
			return 0
		}
		return x
	}
	if c.Version == 0 {
		c.Version = ConfigVersion
	}
	if c.BoidCount < 0 {
		c.BoidCount = 0
	}
	if c.NumColorGroups < 1 {
		c.NumColorGroups = 1
	}
	if c.TrailLength < 0 {
		c.TrailLength = 0
	}
	if !(c.Bounds.Scale > 0) || math.IsInf(c.Bounds.Scale, 0) {
		c.Bounds.Scale = 1
	}
	c.Bounds.Width = nonneg(c.Bounds.Width)
	c.Bounds.Height = nonneg(c.Bounds.Height)
	c.Bounds.Margin = nonneg(c.Bounds.Margin)

	c.Ranges.Visible = nonneg(c.Ranges.Visible)
	c.Ranges.Separation = math.Min(nonneg(c.Ranges.Separation), c.Ranges.Visible)

	c.Factors.Separation = nonneg(c.Factors.Separation)
	c.Factors.Alignment = nonneg(c.Factors.Alignment)
	c.Factors.Cohesion = nonneg(c.Factors.Cohesion)
	c.Factors.Drag = nonneg(c.Factors.Drag)
	c.Factors.Pointer = nonneg(c.Factors.Pointer)
	c.Factors.Turn = nonneg(c.Factors.Turn)

	c.Caps.MinSpeed = nonneg(c.Caps.MinSpeed)
	c.Caps.MaxSpeed = math.Max(nonneg(c.Caps.MaxSpeed), c.Caps.MinSpeed)
	c.Caps.MinAcceleration = nonneg(c.Caps.MinAcceleration)
	c.Caps.MaxAcceleration = math.Max(nonneg(c.Caps.MaxAcceleration), c.Caps.MinAcceleration)

	if !(c.ViewAngle > 0) || c.ViewAngle > 360 {
		c.ViewAngle = 360
	}
	if c.PointerMode < PointerNone || c.PointerMode > PointerAvoid {
		c.PointerMode = PointerNone
	}
	if math.IsNaN(c.VectorField.Factor) || math.IsInf(c.VectorField.Factor, 0) {
		c.VectorField.Factor = 0
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

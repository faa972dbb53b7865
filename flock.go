// Package flock runs boids flocking simulations.
//
// A flock of boids moves in a 2D world. Each boid follows local rules:
// separation from close neighbors, alignment with and cohesion towards visible
// ones, soft avoidance of the world edges, attraction or repulsion by a pointer,
// and an optional user-defined vector field.
//
// Every tick is performed in two phases: first every boid computes its
// acceleration from the state of the previous tick, then every boid moves.
// Neighbors are found with a uniform grid rebuilt at each tick.
package flock

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/PrincetonUniversity/flock/field"
	"github.com/PrincetonUniversity/flock/grid"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r2"
)

// Tick timing.
const (
	FrameMs = 16 // duration of a normalized tick in milliseconds
	MaxDt   = 4  // largest step, in normalized ticks, taken after a stall
)

// An Index is a spatial index over boids, rebuilt from scratch every tick.
type Index interface {
	Insert(b *Boid, x, y float64)
	AppendQuery(buf []*Boid, x, y, r float64) []*Boid
	Clear()
}

// A Frame is what the host hands over once per displayed frame.
type Frame struct {
	Time    float64 // elapsed time in milliseconds
	Pointer r2.Vec  // pointer position in world units
}

// An Agent is a read-only copy of the state of a boid.
type Agent struct {
	Pos     r2.Vec
	Vel     r2.Vec
	Acc     r2.Vec
	Group   int
	History []r2.Vec // oldest first
}

// A Simulation contains all the state and parameters of a flock.
// Its methods must not be called concurrently.
type Simulation struct {
	staged  Config // requested by the host, applied at the next tick
	applied Config // in effect

	width, height float64 // host size, scaled into the world bounds

	boids []Boid
	index Index
	field *field.Field
	rng   *rand.Rand

	last    float64 // time of the last Tick
	started bool
	ticks   int

	bufs [][]*Boid // query buffers, one per worker
	log  *slog.Logger
}

// An Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger used to report regenerations and bad expressions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a simulation of a flock in a host area of the given size.
// The world bounds are the host size multiplied by conf.Bounds.Scale.
func New(conf Config, width, height float64, opts ...Option) *Simulation {
	s := &Simulation{
		width:  width,
		height: height,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset(conf)
	return s
}

// Reset replaces the configuration and regenerates the flock right away.
// The random generator is reseeded so equal configurations give equal runs.
func (s *Simulation) Reset(conf Config) {
	s.staged = conf
	s.apply(true)
}

// SetConfig stages a new configuration. Changes are detected and applied
// at the beginning of the next tick.
func (s *Simulation) SetConfig(conf Config) {
	s.staged = conf
}

// Resize changes the host size. The flock is regenerated at the next tick.
func (s *Simulation) Resize(width, height float64) {
	s.width, s.height = width, height
}

// Config returns the configuration in effect.
func (s *Simulation) Config() Config { return s.applied }

// Len returns the number of boids.
func (s *Simulation) Len() int { return len(s.boids) }

// Ticks returns the number of ticks performed since the last regeneration.
func (s *Simulation) Ticks() int { return s.ticks }

// FieldValid reports whether the vector field expressions compiled.
func (s *Simulation) FieldValid() bool { return s.field.Valid() }

// FieldErr returns the vector field compile error, if any.
func (s *Simulation) FieldErr() error { return s.field.Err() }

// Boids gives direct read access to the flock for renderers.
// The slice is only valid until the next tick.
func (s *Simulation) Boids() []Boid { return s.boids }

// Agents returns a copy of the state of every boid.
func (s *Simulation) Agents() []Agent {
	out := make([]Agent, len(s.boids))
	for i := range s.boids {
		b := &s.boids[i]
		out[i] = Agent{
			Pos:     b.Pos,
			Vel:     b.Vel,
			Acc:     b.Acc,
			Group:   b.Group,
			History: b.Trail.Points(make([]r2.Vec, 0, b.Trail.Len())),
		}
	}
	return out
}

// apply makes the staged configuration effective, regenerating what its
// changes invalidate. force regenerates everything.
func (s *Simulation) apply(force bool) {
	prev := s.applied
	next := s.staged.Sanitized()
	next.Bounds.Width = math.Max(0, s.width) * next.Bounds.Scale
	next.Bounds.Height = math.Max(0, s.height) * next.Bounds.Scale
	s.applied = next

	reseed := force || next.Seed != prev.Seed
	resized := next.Bounds.Width != prev.Bounds.Width || next.Bounds.Height != prev.Bounds.Height
	regen := reseed || resized ||
		next.BoidCount != prev.BoidCount ||
		next.NumColorGroups != prev.NumColorGroups

	if reseed {
		s.rng = rand.New(rand.NewSource(uint64(next.Seed)))
		s.field = field.New(field.NewCompiler(next.Seed))
	}
	if changed, err := s.field.Update(next.VectorField.X, next.VectorField.Y); changed && err != nil {
		s.log.Warn("vector field disabled", "x", next.VectorField.X, "y", next.VectorField.Y, "err", err)
	}

	if regen || s.index == nil || next.Ranges.Visible != prev.Ranges.Visible {
		s.index = newIndex(&next)
	}

	if regen {
		s.populate()
		s.log.Debug("flock regenerated", "boids", next.BoidCount, "groups", next.NumColorGroups,
			"width", next.Bounds.Width, "height", next.Bounds.Height)
	} else if next.TrailLength != prev.TrailLength {
		for i := range s.boids {
			s.boids[i].Trail.Resize(next.TrailLength)
		}
	}
}

// maxGridSide bounds the number of cells along each side of the grid.
const maxGridSide = 512

// newIndex returns a grid whose cells are as large as the visible range,
// covering the world and as much again on every side.
func newIndex(conf *Config) Index {
	w, h := conf.Bounds.Width, conf.Bounds.Height
	cell := math.Max(conf.Ranges.Visible, 3*math.Max(w, h)/maxGridSide)
	return grid.New[*Boid](cell, w, h, 3*w, 3*h)
}

// populate creates a new flock at random positions within the margins,
// with random velocities within the speed caps.
func (s *Simulation) populate() {
	c := &s.applied
	s.boids = make([]Boid, c.BoidCount)
	for i := range s.bufs {
		s.bufs[i] = nil
	}
	s.ticks = 0

	m := c.Bounds.Margin
	speed := func() float64 {
		v := s.rng.Float64()*(c.Caps.MaxSpeed-c.Caps.MinSpeed) + c.Caps.MinSpeed
		if s.rng.Float64() > 0.5 {
			return v
		}
		return -v
	}
	for i := range s.boids {
		b := &s.boids[i]
		b.Pos = r2.Vec{
			X: m + s.rng.Float64()*(c.Bounds.Width-2*m),
			Y: m + s.rng.Float64()*(c.Bounds.Height-2*m),
		}
		b.Vel = clampMagnitude(r2.Vec{X: speed(), Y: speed()}, c.Caps.MinSpeed, c.Caps.MaxSpeed)
		b.Group = s.rng.Intn(c.NumColorGroups)
		b.Trail = NewTrail(c.TrailLength)
	}
}

// Tick advances the flock by the time elapsed since the previous call,
// measured in normalized ticks of FrameMs and capped to MaxDt.
// The first call advances by one tick.
func (s *Simulation) Tick(elapsedMs float64, pointer r2.Vec) {
	dt := 1.0
	if s.started {
		dt = (elapsedMs - s.last) / FrameMs
	}
	if !math.IsNaN(elapsedMs) {
		s.started = true
		s.last = elapsedMs
	}

	switch {
	case !(dt > 0): // clock going backwards, or NaN
		dt = 0
	case dt > MaxDt:
		dt = MaxDt
	}
	s.Step(dt, pointer)
}

// Step advances the flock by dt normalized ticks.
func (s *Simulation) Step(dt float64, pointer r2.Vec) {
	s.apply(false)
	conf := s.applied

	s.index.Clear()
	for i := range s.boids {
		b := &s.boids[i]
		s.index.Insert(b, b.Pos.X, b.Pos.Y)
	}

	// phase 1: read everyone, write own acceleration
	s.parallel(conf.Workers, func(w, lo, hi int) {
		buf := s.bufs[w]
		for i := lo; i < hi; i++ {
			b := &s.boids[i]
			buf = s.index.AppendQuery(buf[:0], b.Pos.X, b.Pos.Y, conf.Ranges.Visible)
			b.Steer(buf, pointer, &conf, s.field)
		}
		s.bufs[w] = buf
	})

	// phase 2: move
	s.parallel(conf.Workers, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			s.boids[i].Integrate(dt, &conf)
		}
	})

	s.ticks++
}

// parallel splits the flock into contiguous ranges processed by up to
// workers goroutines, and waits for all of them.
func (s *Simulation) parallel(workers int, fn func(w, lo, hi int)) {
	n := len(s.boids)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	for len(s.bufs) < workers {
		s.bufs = append(s.bufs, nil)
	}
	if workers == 1 {
		fn(0, 0, n)
		return
	}
	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}

// Start ticks the simulation once per frame received, calling render after
// each tick, until frames is closed or ctx is done. render may be nil.
func (s *Simulation) Start(ctx context.Context, frames <-chan Frame, render func(*Simulation)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.Tick(f.Time, f.Pointer)
			if render != nil {
				render(s)
			}
		}
	}
}

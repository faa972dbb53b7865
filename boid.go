package flock

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// A Boid is a single agent of the flock.
type Boid struct {
	Pos   r2.Vec // position in world units
	Vel   r2.Vec // velocity in world units per tick
	Acc   r2.Vec // acceleration computed by the last call to Steer
	Group int    // color group in [0, NumColorGroups)
	Trail Trail  // recent positions, oldest first
}

// A Sampler returns the vector field value at a position relative to the
// center of the world, with y pointing up.
type Sampler interface {
	Active() bool
	At(x, y float64) r2.Vec
}

// Steer computes the acceleration of b from its neighbors, the pointer and
// the environment. It only writes b.Acc: neighbors are read as they were at
// the end of the previous tick. neighbors may contain b itself.
func (b *Boid) Steer(neighbors []*Boid, pointer r2.Vec, conf *Config, vf Sampler) {
	// linear drag
	acc := r2.Scale(-conf.Factors.Drag, b.Vel)

	var sep, align, coh r2.Vec
	var visible int
	sep2 := conf.Ranges.Separation * conf.Ranges.Separation
	vis2 := conf.Ranges.Visible * conf.Ranges.Visible
	halfView := conf.ViewAngle / 2 * math.Pi / 180
	for _, n := range neighbors {
		if n == b {
			continue
		}
		d := r2.Sub(n.Pos, b.Pos)

		// boids do not see what is behind them
		if conf.ViewAngle < 360 && math.Abs(angle(b.Vel, d)) > halfView {
			continue
		}
		d2 := r2.Norm2(d)
		if d2 > vis2 {
			continue
		}

		if !conf.ColorGrouping || n.Group == b.Group {
			align = r2.Add(align, n.Vel)
			coh = r2.Add(coh, n.Pos)
			visible++
		}

		// closer neighbors repel more strongly
		if d2 > 0 && d2 < sep2 {
			sep = r2.Sub(sep, r2.Scale(1/d2, d))
		}
	}

	if visible == 0 {
		coh = b.Pos
	} else {
		align = r2.Scale(1/float64(visible), align)
		coh = r2.Scale(1/float64(visible), coh)
	}
	coh = r2.Sub(coh, b.Pos)

	align, sep, coh = unit(align), unit(sep), unit(coh)

	// pointer
	if s := conf.PointerMode.sign(); s != 0 {
		d := r2.Sub(pointer, b.Pos)
		if r2.Norm(d) < conf.Ranges.Visible {
			acc = r2.Add(acc, r2.Scale(s*conf.Factors.Pointer, unit(d)))
		}
	}

	acc = r2.Add(acc, r2.Scale(conf.Factors.Separation, sep))
	acc = r2.Add(acc, r2.Scale(conf.Factors.Alignment, align))
	acc = r2.Add(acc, r2.Scale(conf.Factors.Cohesion, coh))

	// soft bounds
	w, h, m := conf.Bounds.Width, conf.Bounds.Height, conf.Bounds.Margin
	turn := conf.Factors.Turn
	acc.X += edgeForce(b.Pos.X, m, turn) - edgeForce(w-b.Pos.X, m, turn)
	acc.Y += edgeForce(b.Pos.Y, m, turn) - edgeForce(h-b.Pos.Y, m, turn)

	// vector field, only within the margins
	if vf != nil && conf.VectorField.Factor != 0 && vf.Active() &&
		b.Pos.X >= m && b.Pos.X <= w-m && b.Pos.Y >= m && b.Pos.Y <= h-m {
		f := vf.At(b.Pos.X-w/2, h/2-b.Pos.Y)
		f.Y = -f.Y // back to screen orientation
		acc = r2.Add(acc, r2.Scale(conf.VectorField.Factor, f))
	}

	b.Acc = acc
}

// edgeForce returns the push away from an edge at distance d: turn inside
// the margin, decaying as turn/d beyond it.
func edgeForce(d, margin, turn float64) float64 {
	if d <= margin {
		return turn
	}
	return turn / d
}

// Integrate advances b by dt using its current acceleration.
func (b *Boid) Integrate(dt float64, conf *Config) {
	b.Acc = clampMagnitude(b.Acc, conf.Caps.MinAcceleration, conf.Caps.MaxAcceleration)

	// x += v dt + a dt²/2
	b.Pos = r2.Add(b.Pos, r2.Add(r2.Scale(dt, b.Vel), r2.Scale(0.5*dt*dt, b.Acc)))
	b.Vel = r2.Add(b.Vel, r2.Scale(dt, b.Acc))
	b.Vel = clampMagnitude(b.Vel, conf.Caps.MinSpeed, conf.Caps.MaxSpeed)

	b.Trail.Push(b.Pos)
}

// unit returns v scaled to unit length, or the zero vector if v is zero.
func unit(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n == 0 || math.IsNaN(n) {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// clampMagnitude scales v so that its norm lies in [lo, hi].
// A zero or non-finite vector becomes zero.
func clampMagnitude(v r2.Vec, lo, hi float64) r2.Vec {
	n := r2.Norm(v)
	switch {
	case n == 0 || math.IsNaN(n) || math.IsInf(n, 0):
		return r2.Vec{}
	case n < lo:
		return r2.Scale(lo/n, v)
	case n > hi:
		return r2.Scale(hi/n, v)
	}
	return v
}

// angle returns the signed angle in radians from u to v.
func angle(u, v r2.Vec) float64 {
	return math.Atan2(r2.Cross(u, v), r2.Dot(u, v))
}

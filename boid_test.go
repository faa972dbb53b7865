package flock

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

const eps = 1e-9

// quiet returns a configuration where only the rules a test enables act.
func quiet() Config {
	c := DefaultConfig()
	c.Factors = Factors{}
	c.Caps = Caps{MaxSpeed: 100, MaxAcceleration: 100}
	c.Bounds = Bounds{Width: 1000, Height: 1000, Scale: 1}
	c.Ranges = Ranges{Separation: 50, Visible: 50}
	c.ColorGrouping = false
	return c
}

func near(a, b r2.Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestUnitZeroGuard(t *testing.T) {
	if u := unit(r2.Vec{}); u != (r2.Vec{}) {
		t.Errorf("unit(0) = %v, want zero", u)
	}
	if u := unit(r2.Vec{X: 3, Y: 4}); !near(u, r2.Vec{X: 0.6, Y: 0.8}) {
		t.Errorf("unit(3, 4) = %v, want {0.6 0.8}", u)
	}
}

func TestClampMagnitude(t *testing.T) {
	tests := []struct {
		v, want r2.Vec
	}{
		{r2.Vec{}, r2.Vec{}},
		{r2.Vec{X: 3, Y: 4}, r2.Vec{X: 3, Y: 4}},
		{r2.Vec{X: 30, Y: 40}, r2.Vec{X: 6, Y: 8}},
		{r2.Vec{X: 0.3, Y: 0.4}, r2.Vec{X: 0.6, Y: 0.8}},
		{r2.Vec{X: math.NaN()}, r2.Vec{}},
		{r2.Vec{X: math.Inf(1)}, r2.Vec{}},
	}
	for _, tt := range tests {
		if got := clampMagnitude(tt.v, 1, 10); !near(got, tt.want) {
			t.Errorf("clampMagnitude(%v, 1, 10) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestAngle(t *testing.T) {
	tests := []struct {
		u, v r2.Vec
		want float64
	}{
		{r2.Vec{X: 1}, r2.Vec{X: 1}, 0},
		{r2.Vec{X: 1}, r2.Vec{Y: 1}, math.Pi / 2},
		{r2.Vec{X: 1}, r2.Vec{Y: -1}, -math.Pi / 2},
		{r2.Vec{X: 1}, r2.Vec{X: -1}, math.Pi},
	}
	for _, tt := range tests {
		if got := angle(tt.u, tt.v); math.Abs(got-tt.want) > eps {
			t.Errorf("angle(%v, %v) = %v, want %v", tt.u, tt.v, got, tt.want)
		}
	}
}

func TestSeparationPair(t *testing.T) {
	c := quiet()
	c.Factors.Separation = 0.5
	c.Caps.MaxAcceleration = 0.1
	a := &Boid{Pos: r2.Vec{X: 495, Y: 500}}
	b := &Boid{Pos: r2.Vec{X: 505, Y: 500}}
	ns := []*Boid{a, b}
	a.Steer(ns, r2.Vec{}, &c, nil)
	b.Steer(ns, r2.Vec{}, &c, nil)

	// separation is the only force, normalized then weighted
	if !near(a.Acc, r2.Vec{X: -0.5}) || !near(b.Acc, r2.Vec{X: 0.5}) {
		t.Fatalf("accelerations = %v, %v, want {-0.5 0}, {0.5 0}", a.Acc, b.Acc)
	}
	a.Integrate(1, &c)
	b.Integrate(1, &c)
	if !near(a.Acc, r2.Vec{X: -0.1}) || !near(b.Acc, r2.Vec{X: 0.1}) {
		t.Errorf("clamped accelerations = %v, %v, want {-0.1 0}, {0.1 0}", a.Acc, b.Acc)
	}
	if !(a.Vel.X < 0 && b.Vel.X > 0) || a.Vel.Y != 0 || b.Vel.Y != 0 {
		t.Errorf("velocities = %v, %v, want moving apart along x", a.Vel, b.Vel)
	}
	if !(a.Pos.X < 495 && b.Pos.X > 505) {
		t.Errorf("positions = %v, %v, want moving apart", a.Pos, b.Pos)
	}
}

func TestSeparationInverseSquare(t *testing.T) {
	c := quiet()
	c.Factors.Separation = 1
	// a close neighbor on the right outweighs a far one on the left
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}}
	closeBy := &Boid{Pos: r2.Vec{X: 510, Y: 500}}
	far := &Boid{Pos: r2.Vec{X: 480, Y: 500}}
	b.Steer([]*Boid{b, closeBy, far}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{X: -1}) {
		t.Errorf("acceleration = %v, want {-1 0}", b.Acc)
	}
}

func TestIsolatedBoid(t *testing.T) {
	c := quiet()
	c.Factors.Alignment = 1
	c.Factors.Cohesion = 1
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}, Vel: r2.Vec{X: 1}}
	other := &Boid{Pos: r2.Vec{X: 600, Y: 500}, Vel: r2.Vec{Y: 1}}
	b.Steer([]*Boid{b, other}, r2.Vec{}, &c, nil)
	if b.Acc != (r2.Vec{}) {
		t.Errorf("isolated boid acceleration = %v, want zero", b.Acc)
	}
}

func TestAlignmentCohesion(t *testing.T) {
	c := quiet()
	c.Ranges.Separation = 0
	c.Factors.Alignment = 1
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}}
	n := &Boid{Pos: r2.Vec{X: 520, Y: 500}, Vel: r2.Vec{Y: 2}}
	b.Steer([]*Boid{n}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{Y: 1}) {
		t.Errorf("alignment = %v, want {0 1}", b.Acc)
	}

	c.Factors.Alignment = 0
	c.Factors.Cohesion = 2
	b.Steer([]*Boid{n}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{X: 2}) {
		t.Errorf("cohesion = %v, want {2 0}", b.Acc)
	}
}

func TestColorGrouping(t *testing.T) {
	c := quiet()
	c.Ranges.Separation = 15
	c.Factors.Cohesion = 1
	c.Factors.Separation = 1
	c.ColorGrouping = true
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}, Group: 0}
	n := &Boid{Pos: r2.Vec{X: 510, Y: 500}, Group: 1}
	b.Steer([]*Boid{n}, r2.Vec{}, &c, nil)
	// no cohesion towards another group, separation still applies
	if !near(b.Acc, r2.Vec{X: -1}) {
		t.Errorf("acceleration with grouping = %v, want {-1 0}", b.Acc)
	}

	c.ColorGrouping = false
	b.Steer([]*Boid{n}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{}) {
		t.Errorf("acceleration without grouping = %v, want zero", b.Acc)
	}
}

func TestViewAngle(t *testing.T) {
	c := quiet()
	c.Factors.Cohesion = 1
	c.ViewAngle = 200
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}, Vel: r2.Vec{X: 1}}
	behind := &Boid{Pos: r2.Vec{X: 480, Y: 500}}
	front := &Boid{Pos: r2.Vec{X: 500, Y: 470}} // 90° off

	b.Steer([]*Boid{behind}, r2.Vec{}, &c, nil)
	if b.Acc != (r2.Vec{}) {
		t.Errorf("boid behind is seen: acceleration = %v", b.Acc)
	}
	b.Steer([]*Boid{front}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{Y: -1}) {
		t.Errorf("boid on the side: acceleration = %v, want {0 -1}", b.Acc)
	}

	// cone is symmetric
	mirror := &Boid{Pos: r2.Vec{X: 499, Y: 530}}
	b.Steer([]*Boid{mirror}, r2.Vec{}, &c, nil)
	if b.Acc.Y <= 0 {
		t.Errorf("boid on the other side not seen: acceleration = %v", b.Acc)
	}

	c.ViewAngle = 360
	b.Steer([]*Boid{behind}, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{X: -1}) {
		t.Errorf("full view: acceleration = %v, want {-1 0}", b.Acc)
	}
}

func TestPointer(t *testing.T) {
	c := quiet()
	c.Factors.Pointer = 0.5
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}}
	p := r2.Vec{X: 500, Y: 530}

	c.PointerMode = PointerAttract
	b.Steer(nil, p, &c, nil)
	if !near(b.Acc, r2.Vec{Y: 0.5}) {
		t.Errorf("attract = %v, want {0 0.5}", b.Acc)
	}
	c.PointerMode = PointerAvoid
	b.Steer(nil, p, &c, nil)
	if !near(b.Acc, r2.Vec{Y: -0.5}) {
		t.Errorf("avoid = %v, want {0 -0.5}", b.Acc)
	}
	c.PointerMode = PointerNone
	b.Steer(nil, p, &c, nil)
	if b.Acc != (r2.Vec{}) {
		t.Errorf("none = %v, want zero", b.Acc)
	}
	c.PointerMode = PointerAttract
	b.Steer(nil, r2.Vec{X: 900, Y: 900}, &c, nil)
	if b.Acc != (r2.Vec{}) {
		t.Errorf("out of range pointer = %v, want zero", b.Acc)
	}
}

func TestBounds(t *testing.T) {
	c := quiet()
	c.Factors.Turn = 5
	c.Bounds.Margin = 50

	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}}
	b.Steer(nil, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{}) {
		t.Errorf("center = %v, want zero", b.Acc)
	}

	b.Pos = r2.Vec{X: 10, Y: 990}
	b.Steer(nil, r2.Vec{}, &c, nil)
	want := r2.Vec{X: 5 - 5.0/990, Y: 5.0/990 - 5}
	if !near(b.Acc, want) {
		t.Errorf("corner = %v, want %v", b.Acc, want)
	}

	b.Pos = r2.Vec{X: -20, Y: 500}
	b.Steer(nil, r2.Vec{}, &c, nil)
	if !(b.Acc.X > 4.99) || math.IsInf(b.Acc.X, 0) {
		t.Errorf("outside = %v, want pushed back", b.Acc)
	}

	c.Bounds.Margin = 0
	b.Pos = r2.Vec{X: 0, Y: 500}
	b.Steer(nil, r2.Vec{}, &c, nil)
	if math.IsInf(b.Acc.X, 0) || math.IsNaN(b.Acc.X) {
		t.Errorf("on the edge = %v, want finite", b.Acc)
	}
}

type constField r2.Vec

func (f constField) Active() bool           { return true }
func (f constField) At(x, y float64) r2.Vec { return r2.Vec(f) }

type probeField struct{ x, y float64 }

func (f *probeField) Active() bool { return true }
func (f *probeField) At(x, y float64) r2.Vec {
	f.x, f.y = x, y
	return r2.Vec{Y: 1}
}

func TestVectorField(t *testing.T) {
	c := quiet()
	c.Bounds.Margin = 100
	c.VectorField.Factor = 2
	b := &Boid{Pos: r2.Vec{X: 600, Y: 300}}

	b.Steer(nil, r2.Vec{}, &c, constField{X: 1, Y: 1})
	if !near(b.Acc, r2.Vec{X: 2, Y: -2}) {
		t.Errorf("field = %v, want {2 -2}", b.Acc)
	}

	// evaluated relative to the center with y up
	p := new(probeField)
	b.Steer(nil, r2.Vec{}, &c, p)
	if p.x != 100 || p.y != 200 {
		t.Errorf("field evaluated at (%v, %v), want (100, 200)", p.x, p.y)
	}
	if !near(b.Acc, r2.Vec{Y: -2}) {
		t.Errorf("field = %v, want {0 -2}", b.Acc)
	}

	b.Pos = r2.Vec{X: 50, Y: 500}
	b.Steer(nil, r2.Vec{}, &c, constField{X: 1, Y: 1})
	if b.Acc != (r2.Vec{}) {
		t.Errorf("field inside the margin = %v, want zero", b.Acc)
	}
}

func TestDrag(t *testing.T) {
	c := quiet()
	c.Factors.Drag = 0.25
	b := &Boid{Pos: r2.Vec{X: 500, Y: 500}, Vel: r2.Vec{X: 2, Y: -4}}
	b.Steer(nil, r2.Vec{}, &c, nil)
	if !near(b.Acc, r2.Vec{X: -0.5, Y: 1}) {
		t.Errorf("drag = %v, want {-0.5 1}", b.Acc)
	}
}

func TestIntegrate(t *testing.T) {
	c := quiet()
	c.Caps = Caps{MinSpeed: 0.5, MaxSpeed: 2, MinAcceleration: 0.01, MaxAcceleration: 1}
	c.TrailLength = 2
	b := &Boid{Pos: r2.Vec{X: 10, Y: 10}, Vel: r2.Vec{X: 1}, Acc: r2.Vec{Y: 0.5}, Trail: NewTrail(2)}

	b.Integrate(2, &c)
	if !near(b.Pos, r2.Vec{X: 12, Y: 11}) {
		t.Errorf("position = %v, want {12 11}", b.Pos)
	}
	if !near(b.Vel, r2.Vec{X: 1, Y: 1}) {
		t.Errorf("velocity = %v, want {1 1}", b.Vel)
	}

	b.Acc = r2.Vec{X: 10}
	b.Integrate(1, &c)
	if s := r2.Norm(b.Vel); math.Abs(s-2) > eps {
		t.Errorf("speed = %v, want clamped to 2", s)
	}
	b.Acc = r2.Vec{X: 10}
	b.Integrate(1, &c)
	if b.Trail.Len() != 2 || !near(b.Trail.At(1), b.Pos) {
		t.Errorf("trail = %v, want last 2 positions", b.Trail.Points(nil))
	}
}

func TestIntegrateAtRest(t *testing.T) {
	c := quiet()
	c.Caps = Caps{MinSpeed: 0.5, MaxSpeed: 2, MinAcceleration: 0.01, MaxAcceleration: 1}
	b := &Boid{Pos: r2.Vec{X: 10, Y: 10}}
	b.Steer(nil, r2.Vec{}, &c, nil)
	b.Integrate(1, &c)
	if b.Vel != (r2.Vec{}) || b.Acc != (r2.Vec{}) {
		t.Errorf("boid at rest: vel %v acc %v, want zero", b.Vel, b.Acc)
	}
	if b.Pos != (r2.Vec{X: 10, Y: 10}) {
		t.Errorf("boid at rest moved to %v", b.Pos)
	}
}

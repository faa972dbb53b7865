//go:build !nogl

// Package opengl runs interactive flock simulations in an OpenGL window.
package opengl

import (
	"embed"
	"fmt"
	"io"
	"log/slog"

	"github.com/PrincetonUniversity/flock"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.1/glfw"
	"gonum.org/v1/gonum/spatial/r2"
)

//go:embed shaders
var shaders embed.FS

// Config holds the parameters of the OpenGL driver.
type Config struct {
	Width, Height int  // initial window size in screen coordinates
	ForcePause    bool // step manually only?
	BoidSize      float64
	Log           *slog.Logger
}

// Run runs an interactive simulation in an OpenGL window.
// The window size is the host size of s, the cursor is the pointer.
//
// Space pauses, right arrow steps while paused, A, V and N set the pointer
// mode to attract, avoid and none, G toggles color grouping, R regenerates
// the flock and Esc quits.
func Run(s *flock.Simulation, conf *Config) error {
	log := conf.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// init GLFW and OpenGL
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Samples, 4)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	const title = "Boids"
	w, err := glfw.CreateWindow(conf.Width, conf.Height, title, nil, nil)
	if err != nil {
		return err
	}
	w.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		return err
	}

	// set background color and enable alpha blending
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0.05, 0.05, 0.08, 1)

	d, err := newDisplay()
	if err != nil {
		return err
	}
	size := conf.BoidSize
	if size <= 0 {
		size = 3
	}

	// the host size is the window size, the framebuffer may be larger
	ww, wh := w.GetSize()
	s.Resize(float64(ww), float64(wh))
	fw, fh := w.GetFramebufferSize()
	gl.Viewport(0, 0, int32(fw), int32(fh))
	w.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		s.Resize(float64(width), float64(height))
		log.Debug("window resized", "width", width, "height", height)
	})
	w.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		gl.Viewport(0, 0, int32(width), int32(height))
	})

	pointer := func() r2.Vec {
		x, y := w.GetCursorPos()
		scale := s.Config().Bounds.Scale
		return r2.Vec{X: x * scale, Y: y * scale}
	}
	setMode := func(m flock.PointerMode) {
		c := s.Config()
		c.PointerMode = m
		s.SetConfig(c)
		log.Info("pointer mode", "mode", m)
	}

	var quit, step bool
	pause := conf.ForcePause
	var offset, pausedAt float64 // paused time is not simulated
	now := func() float64 { return glfw.GetTime() * 1000 }
	if pause {
		pausedAt = now()
	}
	w.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, mod glfw.ModifierKey) {
		if action != glfw.Press && !(key == glfw.KeyRight && action == glfw.Repeat) {
			return
		}
		switch key {
		case glfw.KeyEscape:
			quit = true
		case glfw.KeySpace:
			if conf.ForcePause {
				break
			}
			if pause {
				offset += now() - pausedAt
			} else {
				pausedAt = now()
			}
			pause = !pause
		case glfw.KeyRight:
			step = pause
		case glfw.KeyA:
			setMode(flock.PointerAttract)
		case glfw.KeyV:
			setMode(flock.PointerAvoid)
		case glfw.KeyN:
			setMode(flock.PointerNone)
		case glfw.KeyG:
			c := s.Config()
			c.ColorGrouping = !c.ColorGrouping
			s.SetConfig(c)
		case glfw.KeyR:
			s.Reset(s.Config())
			log.Info("flock reset")
		}
	})

	var fieldErr error
	for !(quit || w.ShouldClose()) {
		switch {
		case step:
			step = false
			s.Step(1, pointer())
		case !pause:
			s.Tick(now()-offset, pointer())
		}

		// show vector field errors in the title bar
		if err := s.FieldErr(); err != fieldErr {
			fieldErr = err
			if err != nil {
				w.SetTitle(fmt.Sprintf("%s (vector field disabled: %v)", title, err))
			} else {
				w.SetTitle(title)
			}
		}

		d.draw(s, float32(size))
		w.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}

// display contains all the OpenGL objects required to display the flock.
type display struct {
	prog struct {
		boid  uint32
		trail uint32
	}
	vao struct {
		boid  uint32
		trail uint32
	}
	buf struct {
		boid  uint32
		trail uint32
	}
	uni struct {
		boid  uniforms
		trail uniforms
	}

	// vertex data rebuilt every frame
	boids  []float32 // x, y, vx, vy, group
	trails []float32 // x, y, group, age
	first  []int32
	count  []int32
}

// uniforms are the uniform locations of a program.
type uniforms struct {
	world  int32
	groups int32
	size   int32
}

func locate(prog uint32) uniforms {
	return uniforms{
		world:  gl.GetUniformLocation(prog, gl.Str("world\x00")),
		groups: gl.GetUniformLocation(prog, gl.Str("groups\x00")),
		size:   gl.GetUniformLocation(prog, gl.Str("size\x00")),
	}
}

// draw updates the OpenGL buffers and draws the flock on screen.
func (d *display) draw(s *flock.Simulation, size float32) {
	c := s.Config()
	world := [2]float32{float32(c.Bounds.Width), float32(c.Bounds.Height)}
	groups := float32(c.NumColorGroups)

	d.boids, d.trails = d.boids[:0], d.trails[:0]
	d.first, d.count = d.first[:0], d.count[:0]
	for _, b := range s.Boids() {
		g := float32(b.Group)
		d.boids = append(d.boids, float32(b.Pos.X), float32(b.Pos.Y), float32(b.Vel.X), float32(b.Vel.Y), g)

		n := b.Trail.Len()
		if n < 2 {
			continue
		}
		d.first = append(d.first, int32(len(d.trails)/4))
		d.count = append(d.count, int32(n))
		for i := 0; i < n; i++ {
			p := b.Trail.At(i)
			d.trails = append(d.trails, float32(p.X), float32(p.Y), g, float32(i+1)/float32(n))
		}
	}

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if len(d.count) > 0 {
		gl.UseProgram(d.prog.trail)
		gl.Uniform2f(d.uni.trail.world, world[0], world[1])
		gl.Uniform1f(d.uni.trail.groups, groups)
		gl.BindVertexArray(d.vao.trail)
		gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.trail)
		gl.BufferData(gl.ARRAY_BUFFER, 4*len(d.trails), gl.Ptr(d.trails), gl.STREAM_DRAW)
		gl.MultiDrawArrays(gl.LINE_STRIP, &d.first[0], &d.count[0], int32(len(d.count)))
	}

	if len(d.boids) > 0 {
		gl.UseProgram(d.prog.boid)
		gl.Uniform2f(d.uni.boid.world, world[0], world[1])
		gl.Uniform1f(d.uni.boid.groups, groups)
		gl.Uniform1f(d.uni.boid.size, size)
		gl.BindVertexArray(d.vao.boid)
		gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.boid)
		gl.BufferData(gl.ARRAY_BUFFER, 4*len(d.boids), gl.Ptr(d.boids), gl.STREAM_DRAW)
		gl.DrawArrays(gl.POINTS, 0, int32(len(d.boids)/5))
	}

	gl.BindVertexArray(0)
}

// newDisplay compiles shaders and initializes a display.
func newDisplay() (*display, error) {
	d := new(display)

	// compile and link shaders
	var err error
	d.prog.boid, err = makeProg([]shader{
		{"Vertex", "boid.vert", gl.CreateShader(gl.VERTEX_SHADER)},
		{"Geometry", "boid.geom", gl.CreateShader(gl.GEOMETRY_SHADER)},
		{"Fragment", "boid.frag", gl.CreateShader(gl.FRAGMENT_SHADER)},
	})
	if err != nil {
		return nil, err
	}
	d.prog.trail, err = makeProg([]shader{
		{"Vertex", "trail.vert", gl.CreateShader(gl.VERTEX_SHADER)},
		{"Fragment", "trail.frag", gl.CreateShader(gl.FRAGMENT_SHADER)},
	})
	if err != nil {
		return nil, err
	}

	// uniform location cannot be specified in the shaders in OpenGL 3.3 core
	d.uni.boid = locate(d.prog.boid)
	d.uni.trail = locate(d.prog.trail)

	// attribute locations are specified in the shaders with layout(location=n)
	const f = 4 // sizeof(float32)
	gl.GenVertexArrays(1, &d.vao.boid)
	gl.BindVertexArray(d.vao.boid)
	gl.GenBuffers(1, &d.buf.boid)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.boid)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 5*f, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, 5*f, gl.PtrOffset(2*f))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 1, gl.FLOAT, false, 5*f, gl.PtrOffset(4*f))

	gl.GenVertexArrays(1, &d.vao.trail)
	gl.BindVertexArray(d.vao.trail)
	gl.GenBuffers(1, &d.buf.trail)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.trail)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 4*f, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 1, gl.FLOAT, false, 4*f, gl.PtrOffset(2*f))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 1, gl.FLOAT, false, 4*f, gl.PtrOffset(3*f))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	return d, nil
}

// A shader wraps an OpenGL shader.
type shader struct {
	name   string
	path   string
	shader uint32
}

// makeProg builds OpenGL programs.
func makeProg(shaders []shader) (uint32, error) {
	var fail bool
	for _, s := range shaders {
		src, err := readShader(s.path)
		if err != nil {
			return 0, err
		}
		str, free := gl.Strs(src + "\x00")
		gl.ShaderSource(s.shader, 1, str, nil)
		free()
		gl.CompileShader(s.shader)
		var status int32
		gl.GetShaderiv(s.shader, gl.COMPILE_STATUS, &status)
		if status != gl.TRUE {
			var n int32
			gl.GetShaderiv(s.shader, gl.INFO_LOG_LENGTH, &n)
			log := make([]uint8, n+1)
			gl.GetShaderInfoLog(s.shader, n, &n, &log[0])
			fmt.Printf("### %s shader compilation error: %s ###\n\n%s\n\n", s.name, s.path, gl.GoStr(&log[0]))
			fail = true
			gl.DeleteShader(s.shader)
		}
	}
	if fail {
		return 0, fmt.Errorf("opengl: GLSL errors")
	}
	prog := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(prog, s.shader)
	}
	gl.LinkProgram(prog)

	return prog, nil
}

// readShader returns the source of an embedded shader.
func readShader(name string) (string, error) {
	src, err := shaders.ReadFile("shaders/" + name)
	return string(src), err
}

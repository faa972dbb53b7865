// Package stream serves flock simulations to browsers over websockets.
//
// The server owns the simulation and ticks it at a fixed rate. Every tick it
// broadcasts a frame to all connected clients. Clients can move the pointer
// and change the pointer mode; they never send boid state.
//
// Server to client:
//
//	{"type":"config","width":W,"height":H,"config":{...}}
//	{"type":"frame","tick":n,"boids":[{"x":..,"y":..,"vx":..,"vy":..,"g":..}]}
//
// Client to server:
//
//	{"type":"pointer","x":..,"y":..}
//	{"type":"mode","mode":"attract"}
package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/PrincetonUniversity/flock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r2"
)

// Config holds the parameters of the websocket driver.
type Config struct {
	FPS          int           // ticks per second, 60 when zero
	WriteTimeout time.Duration // per frame and client, 1s when zero
	Log          *slog.Logger
}

type configMsg struct {
	Type   string       `json:"type"`
	Width  float64      `json:"width"`
	Height float64      `json:"height"`
	Config flock.Config `json:"config"`
}

type boidMsg struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	G  int     `json:"g"`
}

type frameMsg struct {
	Type  string    `json:"type"`
	Tick  int       `json:"tick"`
	Boids []boidMsg `json:"boids"`
}

type inMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Mode string  `json:"mode"`
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// A Server streams a simulation to websocket clients.
type Server struct {
	sim      *flock.Simulation
	conf     Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex // guards the fields below
	clients map[*client]struct{}
	pointer r2.Vec
	mode    *flock.PointerMode // requested by a client, applied at the next tick
	config  configMsg          // sent to new clients

	frame frameMsg // reused between ticks
}

// New returns a server for s. Only the server may call s from now on.
func New(s *flock.Simulation, conf *Config) *Server {
	sv := &Server{
		sim:      s,
		conf:     *conf,
		log:      conf.Log,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
	if sv.conf.FPS <= 0 {
		sv.conf.FPS = 60
	}
	if sv.conf.WriteTimeout <= 0 {
		sv.conf.WriteTimeout = time.Second
	}
	if sv.log == nil {
		sv.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sv.config = sv.configMsg()
	return sv
}

func (sv *Server) configMsg() configMsg {
	c := sv.sim.Config()
	return configMsg{
		Type:   "config",
		Width:  c.Bounds.Width,
		Height: c.Bounds.Height,
		Config: c,
	}
}

// Handler returns the HTTP handler serving the websocket endpoint at /ws.
func (sv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", sv.serveWS)
	return mux
}

func (sv *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sv.log.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}

	sv.mu.Lock()
	hello, err := json.Marshal(sv.config)
	sv.clients[c] = struct{}{}
	n := len(sv.clients)
	sv.mu.Unlock()
	sv.log.Info("client connected", "client", c.id, "remote", r.RemoteAddr, "clients", n)

	if err == nil {
		err = c.send(hello, sv.conf.WriteTimeout)
	}
	for err == nil {
		var msg inMsg
		if err = conn.ReadJSON(&msg); err != nil {
			break
		}
		sv.handle(c, &msg)
	}

	sv.drop(c)
	sv.log.Info("client disconnected", "client", c.id, "reason", err)
}

// handle applies a client message.
func (sv *Server) handle(c *client, msg *inMsg) {
	switch msg.Type {
	case "pointer":
		sv.mu.Lock()
		sv.pointer = r2.Vec{X: msg.X, Y: msg.Y}
		sv.mu.Unlock()
	case "mode":
		var m flock.PointerMode
		if err := m.UnmarshalText([]byte(msg.Mode)); err != nil {
			sv.log.Warn("bad message", "client", c.id, "err", err)
			return
		}
		sv.mu.Lock()
		sv.mode = &m
		sv.mu.Unlock()
	default:
		sv.log.Warn("unknown message", "client", c.id, "type", msg.Type)
	}
}

func (sv *Server) drop(c *client) {
	sv.mu.Lock()
	delete(sv.clients, c)
	sv.mu.Unlock()
	c.conn.Close()
}

// Tick advances the simulation to elapsedMs and broadcasts the new frame.
func (sv *Server) Tick(elapsedMs float64) {
	sv.mu.Lock()
	pointer, mode := sv.pointer, sv.mode
	sv.mode = nil
	sv.mu.Unlock()

	if mode != nil {
		c := sv.sim.Config()
		c.PointerMode = *mode
		sv.sim.SetConfig(c)
	}
	sv.sim.Tick(elapsedMs, pointer)

	f := &sv.frame
	f.Type = "frame"
	f.Tick = sv.sim.Ticks()
	f.Boids = f.Boids[:0]
	for _, b := range sv.sim.Boids() {
		f.Boids = append(f.Boids, boidMsg{X: b.Pos.X, Y: b.Pos.Y, VX: b.Vel.X, VY: b.Vel.Y, G: b.Group})
	}
	data, err := json.Marshal(f)
	if err != nil {
		sv.log.Error("encoding frame", "err", err)
		return
	}

	sv.mu.Lock()
	sv.config = sv.configMsg()
	list := make([]*client, 0, len(sv.clients))
	for c := range sv.clients {
		list = append(list, c)
	}
	sv.mu.Unlock()

	for _, c := range list {
		if err := c.send(data, sv.conf.WriteTimeout); err != nil {
			sv.log.Warn("client send error", "client", c.id, "err", err)
			sv.drop(c)
		}
	}
}

// Run ticks the simulation at the configured rate until ctx is done.
func (sv *Server) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second / time.Duration(sv.conf.FPS))
	defer t.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			sv.Tick(float64(now.Sub(start)) / float64(time.Millisecond))
		}
	}
}

// Clients returns the number of connected clients.
func (sv *Server) Clients() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.clients)
}

// close disconnects every client.
func (sv *Server) close() {
	sv.mu.Lock()
	list := make([]*client, 0, len(sv.clients))
	for c := range sv.clients {
		list = append(list, c)
	}
	sv.mu.Unlock()
	for _, c := range list {
		sv.drop(c)
	}
}

// ListenAndServe serves s on addr until ctx is done or the listener fails.
func ListenAndServe(ctx context.Context, addr string, s *flock.Simulation, conf *Config) error {
	sv := New(s, conf)
	hs := &http.Server{Addr: addr, Handler: sv.Handler()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serve := make(chan error, 1)
	go func() { serve <- hs.ListenAndServe() }()
	run := make(chan error, 1)
	go func() { run <- sv.Run(ctx) }()
	sv.log.Info("serving", "addr", addr)

	select {
	case err := <-serve:
		cancel()
		<-run
		sv.close()
		return err
	case err := <-run:
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		serr := hs.Shutdown(shutdown)
		sv.close()
		if serr != nil {
			return serr
		}
		return err
	}
}

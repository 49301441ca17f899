package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// ListenerOptions configures the host side of the relay.
type ListenerOptions struct {
	Path          string  // websocket path (default "/relay")
	RatePerSecond float64 // inbound frames allowed per peer per second
	Burst         int
}

// DefaultListenerOptions returns sensible defaults.
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		Path:          "/relay",
		RatePerSecond: 5,
		Burst:         10,
	}
}

// Reading is the latest heart rate received from any peer.
type Reading struct {
	HeartRate sensor.HeartRate
	Peer      string
	At        time.Time
}

// Listener accepts companion connections and hands decoded readings to a
// callback. It implements http.Handler so it can be mounted on any mux.
type Listener struct {
	codec *Codec
	opts  ListenerOptions

	mu          sync.Mutex
	onHeartRate func(hr sensor.HeartRate, peer string)
	onPeer      func(peer string, connected bool)
	peers       map[string]*websocket.Conn
	latest      Reading
	hasLatest   bool
	closed      bool
	srv         *http.Server
	addr        string

	wg sync.WaitGroup
}

// NewListener creates a relay listener decoding frames with codec.
func NewListener(codec *Codec, opts ListenerOptions) *Listener {
	def := DefaultListenerOptions()
	if opts.Path == "" {
		opts.Path = def.Path
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = def.RatePerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	return &Listener{
		codec: codec,
		opts:  opts,
		peers: make(map[string]*websocket.Conn),
	}
}

// OnHeartRate registers the callback for decoded readings.
func (l *Listener) OnHeartRate(fn func(hr sensor.HeartRate, peer string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onHeartRate = fn
}

// OnPeer registers the callback for peer connects and disconnects.
func (l *Listener) OnPeer(fn func(peer string, connected bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPeer = fn
}

// Start binds addr and serves the relay path in the background.
func (l *Listener) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(l.opts.Path, l)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		ln.Close()
		return errors.New("relay: listener closed")
	}
	l.srv = srv
	l.addr = ln.Addr().String()
	l.mu.Unlock()

	slog.Info("[RELAY] listening", "addr", l.addr, "path", l.opts.Path, "sealed", l.codec.Sealed())

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[RELAY] serve failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address. Only valid after Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Peers returns the number of connected companions.
func (l *Listener) Peers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}

// Latest returns the most recent reading from any peer.
func (l *Listener) Latest() (Reading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.hasLatest
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("[RELAY] websocket accept failed", "error", err)
		return
	}

	id := newPeerID()
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		ws.Close(websocket.StatusGoingAway, "relay shutting down")
		return
	}
	l.peers[id] = ws
	onPeer := l.onPeer
	l.mu.Unlock()

	slog.Info("[RELAY] peer connected", "peer", id, "remote", r.RemoteAddr)
	if onPeer != nil {
		onPeer(id, true)
	}

	l.readLoop(r.Context(), id, ws)

	l.mu.Lock()
	delete(l.peers, id)
	onPeer = l.onPeer
	l.mu.Unlock()

	ws.Close(websocket.StatusNormalClosure, "")
	slog.Info("[RELAY] peer disconnected", "peer", id)
	if onPeer != nil {
		onPeer(id, false)
	}
}

func (l *Listener) readLoop(ctx context.Context, id string, ws *websocket.Conn) {
	limiter := rate.NewLimiter(rate.Limit(l.opts.RatePerSecond), l.opts.Burst)
	for {
		// A frame that does not decode is dropped; the peer stays connected.
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return // connection closed or error
		}
		if !limiter.Allow() {
			slog.Debug("[RELAY] rate limited, dropping frame", "peer", id)
			continue
		}
		if typ != websocket.MessageText {
			slog.Warn("[RELAY] binary frame dropped", "peer", id, "bytes", len(data))
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("[RELAY] malformed frame", "peer", id, "error", err)
			continue
		}
		hr, err := l.codec.Decode(f)
		if err != nil {
			slog.Warn("[RELAY] bad frame", "peer", id, "error", err)
			continue
		}

		l.mu.Lock()
		l.latest = Reading{HeartRate: hr, Peer: id, At: time.Now()}
		l.hasLatest = true
		onHeartRate := l.onHeartRate
		l.mu.Unlock()

		if onHeartRate != nil {
			onHeartRate(hr, id)
		}
	}
}

// Close disconnects every peer and stops the server started by Start.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	srv := l.srv
	peers := make([]*websocket.Conn, 0, len(l.peers))
	for _, ws := range l.peers {
		peers = append(peers, ws)
	}
	l.mu.Unlock()

	for _, ws := range peers {
		ws.Close(websocket.StatusGoingAway, "relay shutting down")
	}

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(ctx)
	}
	l.wg.Wait()
	return err
}

func newPeerID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

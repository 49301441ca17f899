// Package wearable is the transport for a wrist-worn companion. The
// companion counts as discovered once it is installed and reachable, and
// its heart rate reaches the host through exactly one of two paths chosen
// at construction: readings pushed over the relay, or a biometric session
// polled by the host.
package wearable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
)

// companionNative is the fixed identity of "the wearable".
const companionNative = "5f8e3c2a-1d4b-4a6e-9c7f-0b2e8d6a4f13"

// CompanionID is the sensor ID every wearable event is tagged with.
var CompanionID = sensor.NewID(sensor.TransportWearable, companionNative)

// Mode selects the heart-rate path.
type Mode int

const (
	// ModeRelay takes readings the companion pushes over the relay.
	ModeRelay Mode = iota
	// ModeSession polls a biometric session on the companion.
	ModeSession
)

func (m Mode) String() string {
	if m == ModeSession {
		return "session"
	}
	return "relay"
}

// ParseMode parses "relay" or "session".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "relay", "":
		return ModeRelay, nil
	case "session":
		return ModeSession, nil
	default:
		return ModeRelay, fmt.Errorf("wearable: unknown mode %q (expected relay or session)", s)
	}
}

// RelaySource pushes companion readings and peer changes; *relay.Listener
// is one.
type RelaySource interface {
	OnHeartRate(fn func(hr sensor.HeartRate, peer string))
	OnPeer(fn func(peer string, connected bool))
}

// Options configures the adapter.
type Options struct {
	Mode              Mode
	DiscoveryInterval time.Duration // how often the locator is asked (default 10s)
	PollInterval      time.Duration // session mode sampling period (default 1s)
}

// Adapter is the wearable transport.
type Adapter struct {
	opts    Options
	locator Locator
	session BiometricSession
	emitter transport.Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	closed         bool
	discovering    bool
	discoverCancel context.CancelFunc
	discovered     bool
	sensor         sensor.Sensor
	peers          map[string]struct{}
	pollCancel     context.CancelFunc
}

// New creates the adapter. locator may be nil, in which case only a relay
// peer connecting makes the companion discoverable. Relay mode needs relay;
// session mode needs session and never hooks relay.
func New(opts Options, locator Locator, relay RelaySource, session BiometricSession) (*Adapter, error) {
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	switch opts.Mode {
	case ModeRelay:
		if relay == nil {
			return nil, errors.New("wearable: relay mode needs a relay source")
		}
	case ModeSession:
		if session == nil {
			return nil, errors.New("wearable: session mode needs a biometric session")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		opts:    opts,
		locator: locator,
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[string]struct{}),
		sensor: sensor.Sensor{
			ID:        CompanionID,
			Kind:      sensor.KindWristWearable,
			State:     sensor.StateNone,
			Name:      "Companion watch",
			Transport: sensor.TransportWearable,
		},
	}

	if opts.Mode == ModeRelay {
		relay.OnHeartRate(a.handleRelayHeartRate)
		relay.OnPeer(a.handlePeer)
	}
	return a, nil
}

// Compile-time check that Adapter implements transport.Adapter.
var _ transport.Adapter = (*Adapter)(nil)

func (a *Adapter) Transport() sensor.Transport { return sensor.TransportWearable }

func (a *Adapter) SetDelegate(d transport.Delegate) { a.emitter.Set(d) }

func (a *Adapter) StartDiscovering() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.discovering {
		return
	}
	a.discovering = true
	if len(a.peers) > 0 {
		// A companion already pushing to us is reachable by definition.
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.markDiscovered()
		}()
	}
	if a.locator == nil {
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.discoverCancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.discover(ctx)
	}()
}

func (a *Adapter) StopDiscovering() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discovering = false
	if a.discoverCancel != nil {
		a.discoverCancel()
		a.discoverCancel = nil
	}
}

// discover asks the locator now and then on every tick until the companion
// is found.
func (a *Adapter) discover(ctx context.Context) {
	ticker := time.NewTicker(a.opts.DiscoveryInterval)
	defer ticker.Stop()
	for {
		found, err := a.locator.Locate(ctx)
		if err != nil {
			slog.Debug("[WEARABLE] companion lookup failed", "error", err)
		}
		if found && ctx.Err() == nil {
			a.markDiscovered()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// markDiscovered announces the companion once, if discovery is active.
func (a *Adapter) markDiscovered() {
	a.mu.Lock()
	if a.closed || !a.discovering || a.discovered {
		a.mu.Unlock()
		return
	}
	a.discovered = true
	s := a.sensor
	a.emitter.Emit(func(d transport.Delegate) { d.Discovered(s) })
	a.mu.Unlock()

	slog.Info("[WEARABLE] companion discovered", "id", s.ID, "mode", a.opts.Mode)
}

// handlePeer maps relay peers to the companion's connection state: the
// first peer connects it, the last one leaving disconnects it. Events are
// emitted under mu so concurrent peers cannot reorder them.
func (a *Adapter) handlePeer(peer string, connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	before := len(a.peers)
	if connected {
		a.peers[peer] = struct{}{}
	} else {
		delete(a.peers, peer)
	}
	after := len(a.peers)

	if connected && a.discovering && !a.discovered {
		a.discovered = true
		s := a.sensor
		slog.Info("[WEARABLE] companion discovered via relay", "id", s.ID, "peer", peer)
		a.emitter.Emit(func(d transport.Delegate) { d.Discovered(s) })
	}

	switch {
	case before == 0 && after > 0:
		a.sensor.State = sensor.StateConnected
	case before > 0 && after == 0:
		a.sensor.State = sensor.StateNotConnected
	default:
		return
	}
	if !a.discovered {
		return
	}
	s := a.sensor
	if s.State == sensor.StateConnected {
		a.emitter.Emit(func(d transport.Delegate) { d.Connected(s) })
	} else {
		a.emitter.Emit(func(d transport.Delegate) { d.Disconnected(s) })
	}
}

func (a *Adapter) handleRelayHeartRate(hr sensor.HeartRate, peer string) {
	a.mu.Lock()
	ok := !a.closed && a.discovered
	s := a.sensor
	a.mu.Unlock()
	if !ok {
		slog.Debug("[WEARABLE] reading before discovery dropped", "peer", peer, "bpm", hr)
		return
	}
	a.emitter.Emit(func(d transport.Delegate) { d.ReceivedHeartRate(hr, s) })
}

// StartReceiving begins the heart-rate stream. In relay mode readings are
// already pushed, so only the session mode starts anything.
func (a *Adapter) StartReceiving(id sensor.ID) {
	if id != CompanionID {
		slog.Warn("[WEARABLE] start receiving from unknown sensor", "id", id)
		return
	}
	a.StopReceiving()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.discovered {
		return
	}
	if a.opts.Mode == ModeRelay {
		slog.Debug("[WEARABLE] relay mode, readings are pushed by the companion")
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.pollCancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runSession(ctx)
	}()
}

func (a *Adapter) StopReceiving() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pollCancel != nil {
		a.pollCancel()
		a.pollCancel = nil
	}
}

// runSession authorizes and starts the biometric session, then samples it
// every PollInterval until ctx ends.
func (a *Adapter) runSession(ctx context.Context) {
	granted, err := a.session.Authorize(ctx)
	if err != nil || !granted {
		slog.Warn("[WEARABLE] heart rate access not granted", "error", err)
		return
	}
	if err := a.session.Start(ctx); err != nil {
		slog.Warn("[WEARABLE] start session failed", "error", err)
		return
	}

	a.mu.Lock()
	a.sensor.State = sensor.StateConnected
	s := a.sensor
	a.emitter.Emit(func(d transport.Delegate) { d.Connected(s) })
	a.mu.Unlock()

	defer func() {
		if err := a.session.Stop(); err != nil {
			slog.Debug("[WEARABLE] stop session failed", "error", err)
		}
		a.mu.Lock()
		a.sensor.State = sensor.StateNotConnected
		s := a.sensor
		a.emitter.Emit(func(d transport.Delegate) { d.Disconnected(s) })
		a.mu.Unlock()
	}()

	var last time.Time
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, ok, err := a.session.MostRecent(ctx)
		if err != nil {
			slog.Debug("[WEARABLE] session read failed", "error", err)
			continue
		}
		if !ok || !sample.At.After(last) || ctx.Err() != nil {
			continue
		}
		last = sample.At
		a.emitter.Emit(func(d transport.Delegate) { d.ReceivedHeartRate(sample.BPM, s) })
	}
}

// Close stops discovery and any session and waits for background work.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.emitter.Close()
	a.cancel()
	a.wg.Wait()
	return nil
}

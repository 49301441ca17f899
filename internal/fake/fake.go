// Package fake provides a simulated heart-rate sensor for demos and tests.
// It is discovered as soon as discovery starts, always reports itself
// connected and, while selected, emits a random BPM on a fixed interval.
package fake

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
)

const sensorNative = "0d6f8b2e-7a41-4c39-8e15-3b9a6c2d1f07"

// SensorID is the fixed ID of the simulated sensor.
var SensorID = sensor.NewID(sensor.TransportSimulated, sensorNative)

// Options configures the simulated sensor.
type Options struct {
	Interval time.Duration    // emission period (default 5s)
	MinBPM   sensor.HeartRate // inclusive (default 40)
	MaxBPM   sensor.HeartRate // exclusive (default 200)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Interval: 5 * time.Second, MinBPM: 40, MaxBPM: 200}
}

// Adapter is the simulated transport.
type Adapter struct {
	opts    Options
	sensor  sensor.Sensor
	emitter transport.Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	discovering bool
	announced   bool
	stream      context.CancelFunc
}

// New creates the simulated adapter.
func New(opts Options) *Adapter {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.MinBPM == 0 && opts.MaxBPM == 0 {
		opts.MinBPM, opts.MaxBPM = def.MinBPM, def.MaxBPM
	}
	if opts.MaxBPM <= opts.MinBPM {
		opts.MaxBPM = opts.MinBPM + 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		opts: opts,
		sensor: sensor.Sensor{
			ID:        SensorID,
			Kind:      sensor.KindFake,
			State:     sensor.StateConnected,
			Name:      "Fake Sensor",
			Transport: sensor.TransportSimulated,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Compile-time check that Adapter implements transport.Adapter.
var _ transport.Adapter = (*Adapter)(nil)

func (a *Adapter) Transport() sensor.Transport { return sensor.TransportSimulated }

func (a *Adapter) SetDelegate(d transport.Delegate) { a.emitter.Set(d) }

// StartDiscovering announces the sensor the first time it is called.
func (a *Adapter) StartDiscovering() {
	a.mu.Lock()
	if a.closed || a.discovering {
		a.mu.Unlock()
		return
	}
	a.discovering = true
	if a.announced {
		a.mu.Unlock()
		return
	}
	a.announced = true
	s := a.sensor
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		slog.Debug("[FAKE] sensor discovered", "id", s.ID)
		a.emitter.Emit(func(d transport.Delegate) { d.Discovered(s) })
	}()
}

func (a *Adapter) StopDiscovering() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discovering = false
}

func (a *Adapter) StartReceiving(id sensor.ID) {
	if id != SensorID {
		slog.Warn("[FAKE] start receiving from unknown sensor", "id", id)
		return
	}
	a.StopReceiving()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.stream = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx)
	}()
}

func (a *Adapter) StopReceiving() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream != nil {
		a.stream()
		a.stream = nil
	}
}

func (a *Adapter) run(ctx context.Context) {
	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()
	span := int(a.opts.MaxBPM - a.opts.MinBPM)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hr := a.opts.MinBPM + sensor.HeartRate(rand.IntN(span))
			s := a.sensor
			a.emitter.Emit(func(d transport.Delegate) { d.ReceivedHeartRate(hr, s) })
		}
	}
}

// Close stops the emission timer and waits for it.
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

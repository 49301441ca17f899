package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/relay"
	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
)

const sendTimeout = 5 * time.Second

// forwarder is the delegate of the companion's local heart-rate source. It
// picks the first matching sensor and queues its readings for the relay.
type forwarder struct {
	match    func(sensor.Sensor) bool
	found    chan sensor.ID
	readings chan sensor.HeartRate
	once     sync.Once
}

var _ transport.Delegate = (*forwarder)(nil)

func newForwarder(match func(sensor.Sensor) bool) *forwarder {
	return &forwarder{
		match:    match,
		found:    make(chan sensor.ID, 1),
		readings: make(chan sensor.HeartRate, 8),
	}
}

// matchDevice accepts any sensor when device is empty, otherwise one whose
// native ID equals device or whose advertised name contains it.
func matchDevice(device string) func(sensor.Sensor) bool {
	want := strings.ToUpper(device)
	return func(s sensor.Sensor) bool {
		if want == "" {
			return true
		}
		return strings.ToUpper(s.ID.Native()) == want || strings.Contains(strings.ToUpper(s.DeviceName), want)
	}
}

func (f *forwarder) Discovered(s sensor.Sensor) {
	if !f.match(s) {
		slog.Debug("skipping sensor", "id", s.ID, "name", s.Name)
		return
	}
	f.once.Do(func() {
		slog.Info("using sensor", "id", s.ID, "name", s.Name)
		f.found <- s.ID
	})
}

func (f *forwarder) Connected(s sensor.Sensor) { slog.Info("sensor connected", "name", s.Name) }

func (f *forwarder) Disconnected(s sensor.Sensor) { slog.Warn("sensor disconnected", "name", s.Name) }

func (f *forwarder) ReceivedHeartRate(hr sensor.HeartRate, from sensor.Sensor) {
	select {
	case f.readings <- hr:
	default:
		slog.Debug("reading dropped, relay backlog full", "bpm", hr)
	}
}

// sender is the part of *relay.Client the pump needs.
type sender interface {
	Reachable() bool
	Send(ctx context.Context, hr sensor.HeartRate) error
}

// pump sends queued readings while the host is reachable and drops them
// otherwise.
func pump(ctx context.Context, s sender, readings <-chan sensor.HeartRate) {
	for {
		select {
		case <-ctx.Done():
			return
		case hr := <-readings:
			if !s.Reachable() {
				slog.Debug("host unreachable, reading dropped", "bpm", hr)
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := s.Send(sendCtx, hr)
			cancel()
			switch {
			case errors.Is(err, relay.ErrUnreachable):
				slog.Debug("host unreachable, reading dropped", "bpm", hr)
			case err != nil:
				slog.Warn("send failed", "bpm", hr, "error", err)
			default:
				slog.Debug("reading sent", "bpm", hr)
			}
		}
	}
}

// connector is the part of *relay.Client that keepConnected needs.
type connector interface {
	Reachable() bool
	Connect(ctx context.Context) error
}

// keepConnected dials the host now and again on every tick while the link
// is down.
func keepConnected(ctx context.Context, c connector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if !c.Reachable() {
			if err := c.Connect(ctx); err != nil && ctx.Err() == nil {
				slog.Debug("host not reachable", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package wearable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/relay"
	"github.com/chaz8081/hrkit/internal/sensor"
)

// Sample is one biometric reading.
type Sample struct {
	BPM sensor.HeartRate
	At  time.Time
}

// BiometricSession is a live workout session on the companion device.
type BiometricSession interface {
	// Authorize asks for access to heart-rate data. Denial is reported as
	// false without detail.
	Authorize(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop() error
	// MostRecent returns the newest reading, if the session has one.
	MostRecent(ctx context.Context) (Sample, bool, error)
}

// ErrSessionStopped is returned by MostRecent outside Start/Stop.
var ErrSessionStopped = errors.New("wearable: session not started")

// LatestSource is what ListenerSession reads from; *relay.Listener is one.
type LatestSource interface {
	Latest() (relay.Reading, bool)
	Peers() int
}

// ListenerSession implements BiometricSession by polling the newest value
// a relay listener holds, instead of having readings pushed through.
// Access is granted while a companion is connected.
type ListenerSession struct {
	src LatestSource

	mu      sync.Mutex
	started bool
}

func NewListenerSession(src LatestSource) *ListenerSession {
	return &ListenerSession{src: src}
}

func (s *ListenerSession) Authorize(ctx context.Context) (bool, error) {
	return s.src.Peers() > 0, nil
}

func (s *ListenerSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *ListenerSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *ListenerSession) MostRecent(ctx context.Context) (Sample, bool, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return Sample{}, false, ErrSessionStopped
	}
	r, ok := s.src.Latest()
	if !ok {
		return Sample{}, false, nil
	}
	return Sample{BPM: r.HeartRate, At: r.At}, true, nil
}

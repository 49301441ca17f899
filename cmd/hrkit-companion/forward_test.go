package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/hrkit/internal/relay"
	"github.com/chaz8081/hrkit/internal/sensor"
)

func strap(native, name string) sensor.Sensor {
	return sensor.Sensor{
		ID:         sensor.NewID(sensor.TransportBluetooth, native),
		Kind:       sensor.KindChestStrap,
		Name:       name,
		DeviceName: name,
		Transport:  sensor.TransportBluetooth,
	}
}

func TestMatchDevice(t *testing.T) {
	polar := strap("AA:BB", "Polar H7 1234")
	tests := []struct {
		device string
		want   bool
	}{
		{"", true},
		{"aa:bb", true},
		{"polar", true},
		{"CC:DD", false},
		{"wahoo", false},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := matchDevice(tt.device)(polar); got != tt.want {
				t.Errorf("matchDevice(%q) = %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}

func TestForwarderPicksFirstMatch(t *testing.T) {
	f := newForwarder(matchDevice("polar"))
	f.Discovered(strap("01", "Wahoo TICKR"))
	f.Discovered(strap("02", "Polar H7"))
	f.Discovered(strap("03", "Polar H10"))

	select {
	case id := <-f.found:
		if id != strap("02", "").ID {
			t.Errorf("found = %s, want ble:02", id)
		}
	default:
		t.Fatal("no sensor picked")
	}
	select {
	case id := <-f.found:
		t.Errorf("second sensor picked: %s", id)
	default:
	}
}

func TestForwarderDropsWhenBacklogFull(t *testing.T) {
	f := newForwarder(matchDevice(""))
	s := strap("01", "x")
	for i := 0; i < cap(f.readings)+3; i++ {
		f.ReceivedHeartRate(sensor.HeartRate(60+i), s)
	}
	if len(f.readings) != cap(f.readings) {
		t.Errorf("queued = %d, want %d", len(f.readings), cap(f.readings))
	}
}

// mockSender records sends. It reports unreachable for the first
// unreachableFor checks and fails the first failSends sends.
type mockSender struct {
	mu             sync.Mutex
	reachable      bool
	unreachableFor int
	failSends      int
	sent           []sensor.HeartRate
	connects       int
}

func (m *mockSender) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachableFor > 0 {
		m.unreachableFor--
		return false
	}
	return m.reachable
}

func (m *mockSender) Send(ctx context.Context, hr sensor.HeartRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSends > 0 {
		m.failSends--
		return relay.ErrUnreachable
	}
	m.sent = append(m.sent, hr)
	return nil
}

func (m *mockSender) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connects >= 3 {
		m.reachable = true
		return nil
	}
	return errors.New("dial refused")
}

func (m *mockSender) sentCopy() []sensor.HeartRate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sensor.HeartRate(nil), m.sent...)
}

func waitSent(t *testing.T, s *mockSender, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.sentCopy()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("sent %d readings, want %d", len(s.sentCopy()), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPumpDropsWhileUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &mockSender{reachable: true, unreachableFor: 1}
	readings := make(chan sensor.HeartRate, 3)
	readings <- 70 // dropped
	readings <- 71
	readings <- 72

	done := make(chan struct{})
	go func() {
		pump(ctx, s, readings)
		close(done)
	}()
	waitSent(t, s, 2)
	cancel()
	<-done

	got := s.sentCopy()
	if len(got) != 2 || got[0] != 71 || got[1] != 72 {
		t.Errorf("sent = %v, want [71 72]", got)
	}
}

func TestPumpSurvivesSendErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &mockSender{reachable: true, failSends: 1}
	readings := make(chan sensor.HeartRate, 2)
	readings <- 80
	readings <- 81

	done := make(chan struct{})
	go func() {
		pump(ctx, s, readings)
		close(done)
	}()
	waitSent(t, s, 1)
	cancel()
	<-done
	if got := s.sentCopy(); len(got) != 1 || got[0] != 81 {
		t.Errorf("sent = %v, want [81]", got)
	}
}

func TestKeepConnectedRetriesUntilReachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &mockSender{}
	done := make(chan struct{})
	go func() {
		keepConnected(ctx, s, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Reachable() {
		if time.Now().After(deadline) {
			t.Fatal("never became reachable")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)

	cancel()
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connects != 3 {
		t.Errorf("connects = %d, want 3 (no dialing once reachable)", s.connects)
	}
}

func TestPumpDeliversToListener(t *testing.T) {
	codec, err := relay.NewCodec("shared")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	listener := relay.NewListener(codec, relay.DefaultListenerOptions())
	defer listener.Close()

	got := make(chan sensor.HeartRate, 4)
	listener.OnHeartRate(func(hr sensor.HeartRate, peer string) { got <- hr })

	srv := httptest.NewServer(listener)
	defer srv.Close()

	client := relay.NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), codec)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	readings := make(chan sensor.HeartRate, 1)
	go pump(ctx, client, readings)
	readings <- 88

	select {
	case hr := <-got:
		if hr != 88 {
			t.Errorf("listener got %d, want 88", hr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener never received the reading")
	}
}

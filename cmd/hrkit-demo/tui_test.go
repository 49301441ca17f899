package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chaz8081/hrkit/internal/coordinator"
	"github.com/chaz8081/hrkit/internal/sensor"
)

// mockService records calls and serves a fixed sensor list.
type mockService struct {
	mu       sync.Mutex
	sensors  []sensor.Sensor
	selected []sensor.ID
	deselect int
	starts   int
	stops    int
}

func (s *mockService) AddObserver(coordinator.Observer)    {}
func (s *mockService) RemoveObserver(coordinator.Observer) {}

func (s *mockService) DiscoveredSensors() []sensor.Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sensor.Sensor(nil), s.sensors...)
}

func (s *mockService) SelectedSensor() (sensor.Sensor, bool)           { return sensor.Sensor{}, false }
func (s *mockService) LastReceivedHeartRate() (sensor.HeartRate, bool) { return 0, false }

func (s *mockService) StartDiscovering() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *mockService) StopDiscovering() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *mockService) Select(sn sensor.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append(s.selected, sn.ID)
}

func (s *mockService) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deselect++
}

var _ coordinator.Service = (*mockService)(nil)

func testSensors() []sensor.Sensor {
	return []sensor.Sensor{
		{ID: sensor.NewID(sensor.TransportBluetooth, "AA"), Kind: sensor.KindPolarH7, Name: "Polar H7", State: sensor.StateNotConnected, Transport: sensor.TransportBluetooth},
		{ID: sensor.NewID(sensor.TransportSimulated, "1"), Kind: sensor.KindFake, Name: "Fake Sensor", State: sensor.StateConnected, Transport: sensor.TransportSimulated},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key through Update and runs any resulting command.
func press(t *testing.T, m model, k string) model {
	t.Helper()
	next, cmd := m.Update(key(k))
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = next.Update(msg)
		}
	}
	return next.(model)
}

func TestModelSelectsSensorUnderCursor(t *testing.T) {
	svc := &mockService{sensors: testSensors()}
	m := newModel(svc)
	m.apply(coordMsg{event: "discovered", sensor: svc.sensors[0]})

	m = press(t, m, "down")
	m = press(t, m, "enter")

	if len(svc.selected) != 1 || svc.selected[0] != svc.sensors[1].ID {
		t.Errorf("selected = %v, want [%s]", svc.selected, svc.sensors[1].ID)
	}
}

func TestModelCursorStaysInRange(t *testing.T) {
	svc := &mockService{sensors: testSensors()}
	m := newModel(svc)
	m.apply(coordMsg{event: "discovered", sensor: svc.sensors[0]})

	for i := 0; i < 5; i++ {
		m = press(t, m, "j")
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	for i := 0; i < 5; i++ {
		m = press(t, m, "k")
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}

func TestModelDeselectOnlyWhenSelected(t *testing.T) {
	svc := &mockService{sensors: testSensors()}
	m := newModel(svc)

	m = press(t, m, "d")
	if svc.deselect != 0 {
		t.Fatalf("deselect called with nothing selected")
	}

	m.apply(coordMsg{event: "selected", sensor: svc.sensors[1]})
	m = press(t, m, "d")
	if svc.deselect != 1 {
		t.Errorf("deselect calls = %d, want 1", svc.deselect)
	}

	m.apply(coordMsg{event: "deselected", sensor: svc.sensors[1]})
	if m.hasSelected {
		t.Error("selection should be cleared after deselected event")
	}
}

func TestModelToggleDiscovery(t *testing.T) {
	svc := &mockService{}
	m := newModel(svc)

	if msg := m.Init()(); msg != nil {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	if !m.discovering || svc.starts != 1 {
		t.Fatalf("after Init: discovering=%v starts=%d", m.discovering, svc.starts)
	}

	m = press(t, m, "s")
	if m.discovering || svc.stops != 1 {
		t.Errorf("after toggle: discovering=%v stops=%d", m.discovering, svc.stops)
	}
}

func TestModelShowsHeartRate(t *testing.T) {
	svc := &mockService{sensors: testSensors()}
	m := newModel(svc)
	m.apply(coordMsg{event: "selected", sensor: svc.sensors[1]})

	if !strings.Contains(m.View(), "waiting for data") {
		t.Error("view should wait for data before the first reading")
	}

	m.apply(coordMsg{event: "hr", sensor: svc.sensors[1], hr: 72})
	view := m.View()
	if !strings.Contains(view, "72 bpm") {
		t.Errorf("view missing BPM:\n%s", view)
	}
	if !strings.Contains(view, "Polar H7") {
		t.Errorf("view missing discovered sensor:\n%s", view)
	}
}

func TestModelEventLogBounded(t *testing.T) {
	svc := &mockService{sensors: testSensors()}
	m := newModel(svc)
	for i := 0; i < maxEventLines+5; i++ {
		m.apply(coordMsg{event: "connected", sensor: svc.sensors[0]})
	}
	if len(m.events) != maxEventLines {
		t.Errorf("events = %d, want %d", len(m.events), maxEventLines)
	}
}

func TestLogObserverSelectsFirstSensorOnce(t *testing.T) {
	svc := &mockService{}
	var out strings.Builder
	obs := &logObserver{out: &out, svc: svc}

	obs.SensorDiscovered(testSensors()[0])
	obs.SensorDiscovered(testSensors()[1])

	for i := 0; i < 200; i++ {
		svc.mu.Lock()
		n := len(svc.selected)
		svc.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.selected) != 1 || svc.selected[0] != testSensors()[0].ID {
		t.Errorf("selected = %v, want first sensor only", svc.selected)
	}
	if !strings.Contains(out.String(), "Polar H7") {
		t.Errorf("output missing sensor name: %q", out.String())
	}
}

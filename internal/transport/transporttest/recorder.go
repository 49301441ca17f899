// Package transporttest provides a recording transport.Delegate for adapter
// tests.
package transporttest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// Recorder records delegate callbacks as short strings such as
// "discovered sim:x", "connected sim:x" or "hr 72 sim:x".
type Recorder struct {
	mu      sync.Mutex
	events  []string
	sensors []sensor.Sensor
}

func (r *Recorder) add(e string, s sensor.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.sensors = append(r.sensors, s)
}

func (r *Recorder) Discovered(s sensor.Sensor)   { r.add("discovered "+string(s.ID), s) }
func (r *Recorder) Connected(s sensor.Sensor)    { r.add("connected "+string(s.ID), s) }
func (r *Recorder) Disconnected(s sensor.Sensor) { r.add("disconnected "+string(s.ID), s) }
func (r *Recorder) ReceivedHeartRate(hr sensor.HeartRate, s sensor.Sensor) {
	r.add(fmt.Sprintf("hr %d %s", hr, s.ID), s)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Last returns the sensor passed with the most recent event.
func (r *Recorder) Last() (sensor.Sensor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sensors) == 0 {
		return sensor.Sensor{}, false
	}
	return r.sensors[len(r.sensors)-1], true
}

// Count returns how many times event was recorded.
func (r *Recorder) Count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// WaitFor blocks until event has been recorded n times or fails the test
// after two seconds.
func (r *Recorder) WaitFor(t testing.TB, event string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Count(event) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d x %q, got %v", n, event, r.Events())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

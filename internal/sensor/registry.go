package sensor

import (
	"slices"
	"strings"
)

// Registry holds the discovered sensors, the selected sensor and the last
// heart rate seen. The selected sensor is stored by ID and always resolved
// through the discovered set, so it can never drift from its registry entry.
//
// Registry is not safe for concurrent use; the owner serializes access.
type Registry struct {
	sensors  map[ID]Sensor
	selected ID

	lastHR    HeartRate
	hasLastHR bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sensors: make(map[ID]Sensor)}
}

// Discover inserts s. It returns false, leaving the registry untouched, if a
// sensor with the same ID is already present.
func (r *Registry) Discover(s Sensor) bool {
	if s.ID == "" {
		return false
	}
	if _, ok := r.sensors[s.ID]; ok {
		return false
	}
	r.sensors[s.ID] = s
	return true
}

// Contains reports whether id has been discovered.
func (r *Registry) Contains(id ID) bool {
	_, ok := r.sensors[id]
	return ok
}

// Get returns the registry entry for id.
func (r *Registry) Get(id ID) (Sensor, bool) {
	s, ok := r.sensors[id]
	return s, ok
}

// SetState updates the connection state of a discovered sensor and returns
// the updated entry. Unknown IDs are ignored.
func (r *Registry) SetState(id ID, state State) (Sensor, bool) {
	s, ok := r.sensors[id]
	if !ok {
		return Sensor{}, false
	}
	s.State = state
	r.sensors[id] = s
	return s, true
}

// Select marks id as the selected sensor. It returns false if id has not
// been discovered.
func (r *Registry) Select(id ID) bool {
	if !r.Contains(id) {
		return false
	}
	r.selected = id
	return true
}

// ClearSelection clears the selected sensor and returns the one that was
// selected, if any.
func (r *Registry) ClearSelection() (Sensor, bool) {
	prev, ok := r.Selected()
	r.selected = ""
	return prev, ok
}

// Selected returns the selected sensor.
func (r *Registry) Selected() (Sensor, bool) {
	if r.selected == "" {
		return Sensor{}, false
	}
	return r.Get(r.selected)
}

// Sensors returns a snapshot of every discovered sensor ordered by ID.
func (r *Registry) Sensors() []Sensor {
	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Sensor) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// Len returns the number of discovered sensors.
func (r *Registry) Len() int {
	return len(r.sensors)
}

// RecordHeartRate stores hr as the last received heart rate.
func (r *Registry) RecordHeartRate(hr HeartRate) {
	r.lastHR = hr
	r.hasLastHR = true
}

// LastHeartRate returns the last received heart rate.
func (r *Registry) LastHeartRate() (HeartRate, bool) {
	return r.lastHR, r.hasLastHR
}

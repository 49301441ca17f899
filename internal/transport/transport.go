// Package transport defines the contract between the session coordinator and
// the per-transport adapters (BLE, wearable, simulated).
//
// An adapter translates its native asynchronous events into four callbacks on
// a single Delegate. Adapter methods never block on I/O. Callbacks may arrive
// on any goroutine, including the one calling StartReceiving or
// StopReceiving, so a Delegate must never call back into the adapter from a
// callback. Adapters emit state changes of one sensor in the order they
// applied them, typically while holding their own lock.
package transport

import "github.com/chaz8081/hrkit/internal/sensor"

// Delegate receives normalized sensor events from an adapter.
type Delegate interface {
	Discovered(s sensor.Sensor)
	Connected(s sensor.Sensor)
	Disconnected(s sensor.Sensor)
	ReceivedHeartRate(hr sensor.HeartRate, from sensor.Sensor)
}

// Adapter is a per-transport source of sensors.
type Adapter interface {
	// Transport reports which sensor.Transport this adapter owns.
	Transport() sensor.Transport
	// SetDelegate installs the single event receiver. It must be called
	// before any other method.
	SetDelegate(d Delegate)
	// StartDiscovering begins emitting Discovered events. Idempotent.
	StartDiscovering()
	// StopDiscovering halts discovery without touching an active stream.
	StopDiscovering()
	// StartReceiving begins the heart-rate stream of the sensor with the
	// given ID, replacing any stream this adapter already runs. Unknown IDs
	// are ignored.
	StartReceiving(id sensor.ID)
	// StopReceiving ends the active stream, if any.
	StopReceiving()
	// Close halts discovery, streams, timers and in-flight work. No delegate
	// callbacks fire after Close returns.
	Close() error
}

// Nop is a Delegate that drops every event. Adapters start with it so a
// missing SetDelegate never panics.
type Nop struct{}

func (Nop) Discovered(sensor.Sensor)                          {}
func (Nop) Connected(sensor.Sensor)                           {}
func (Nop) Disconnected(sensor.Sensor)                        {}
func (Nop) ReceivedHeartRate(sensor.HeartRate, sensor.Sensor) {}

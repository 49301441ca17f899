// Package coordinator is the hub between the transport adapters and the
// application. It owns the sensor registry, arbitrates which sensor is
// selected so at most one heart-rate stream is active, and fans events out
// to weakly held observers on a single notification goroutine.
package coordinator

import "github.com/chaz8081/hrkit/internal/sensor"

// Observer receives coordinator events. Callbacks run one at a time on the
// coordinator's notification goroutine and must not block for long.
type Observer interface {
	SensorDiscovered(s sensor.Sensor)
	SensorConnected(s sensor.Sensor)
	SensorDisconnected(s sensor.Sensor)
	SensorSelected(s sensor.Sensor)
	HeartRateReceived(hr sensor.HeartRate, from sensor.Sensor)
}

// DeselectObserver is implemented by observers that also want to know when
// the selection is cleared.
type DeselectObserver interface {
	SensorDeselected(s sensor.Sensor)
}

// Service is the application-facing API.
type Service interface {
	AddObserver(o Observer)
	RemoveObserver(o Observer)
	DiscoveredSensors() []sensor.Sensor
	SelectedSensor() (sensor.Sensor, bool)
	LastReceivedHeartRate() (sensor.HeartRate, bool)
	StartDiscovering()
	StopDiscovering()
	Select(s sensor.Sensor)
	Deselect()
}

// NopObserver implements Observer with empty methods. Embed it in an
// observer that only cares about a few events; the embedding struct still
// needs at least one field of its own to be weakly referenced.
type NopObserver struct{}

func (NopObserver) SensorDiscovered(sensor.Sensor)                    {}
func (NopObserver) SensorConnected(sensor.Sensor)                     {}
func (NopObserver) SensorDisconnected(sensor.Sensor)                  {}
func (NopObserver) SensorSelected(sensor.Sensor)                      {}
func (NopObserver) HeartRateReceived(sensor.HeartRate, sensor.Sensor) {}

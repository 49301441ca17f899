package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaz8081/hrkit/internal/observer"
	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
)

// Coordinator implements Service over a fixed set of transport adapters,
// at most one per transport.
//
// Locking: selMu serializes the operations that call into adapters
// (discovery, selection, Close) and is held across those calls. mu guards
// the registry and is never held across an adapter call, so adapters may
// deliver events from any goroutine, including synchronously from
// StartReceiving or StopReceiving.
type Coordinator struct {
	adapters  map[sensor.Transport]transport.Adapter
	order     []transport.Adapter
	observers *observer.Container[Observer]
	notify    *notifier

	selMu       sync.Mutex
	discovering bool

	mu       sync.Mutex
	closed   bool
	registry *sensor.Registry
}

// Compile-time check that Coordinator implements Service.
var _ Service = (*Coordinator)(nil)

// New wires the given adapters to a new coordinator. Each adapter must own
// a distinct transport.
func New(adapters ...transport.Adapter) (*Coordinator, error) {
	c := &Coordinator{
		adapters:  make(map[sensor.Transport]transport.Adapter, len(adapters)),
		observers: observer.New[Observer](),
		registry:  sensor.NewRegistry(),
	}
	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("coordinator: nil adapter")
		}
		t := a.Transport()
		if t == sensor.TransportUnknown {
			return nil, errors.New("coordinator: adapter has no transport")
		}
		if _, dup := c.adapters[t]; dup {
			return nil, fmt.Errorf("coordinator: two adapters for transport %s", t)
		}
		c.adapters[t] = a
		c.order = append(c.order, a)
	}

	c.notify = newNotifier()
	for _, a := range c.order {
		a.SetDelegate(&delegate{c: c, transport: a.Transport()})
	}
	return c, nil
}

// AddObserver registers o without keeping it alive. o must be a non-nil
// pointer to a value that contains a pointer or is at least 16 bytes;
// anything else is ignored.
func (c *Coordinator) AddObserver(o Observer) {
	if !c.observers.Add(o) {
		slog.Warn("[COORD] observer ignored, it cannot be weakly referenced", "type", fmt.Sprintf("%T", o))
	}
}

func (c *Coordinator) RemoveObserver(o Observer) { c.observers.Remove(o) }

// Observers returns the number of live registered observers.
func (c *Coordinator) Observers() int { return c.observers.Len() }

func (c *Coordinator) DiscoveredSensors() []sensor.Sensor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Sensors()
}

func (c *Coordinator) SelectedSensor() (sensor.Sensor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Selected()
}

func (c *Coordinator) LastReceivedHeartRate() (sensor.HeartRate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.LastHeartRate()
}

// StartDiscovering starts discovery on every adapter. Idempotent.
func (c *Coordinator) StartDiscovering() {
	c.selMu.Lock()
	defer c.selMu.Unlock()
	if c.discovering || c.isClosed() {
		return
	}
	c.discovering = true
	slog.Debug("[COORD] discovery started", "adapters", len(c.order))
	for _, a := range c.order {
		a.StartDiscovering()
	}
}

// StopDiscovering halts discovery everywhere. The selected sensor keeps
// streaming.
func (c *Coordinator) StopDiscovering() {
	c.selMu.Lock()
	defer c.selMu.Unlock()
	if !c.discovering || c.isClosed() {
		return
	}
	c.discovering = false
	slog.Debug("[COORD] discovery stopped")
	for _, a := range c.order {
		a.StopDiscovering()
	}
}

// Select makes s the active sensor. Sensors that were never discovered are
// ignored, as is re-selecting the current sensor. The previous sensor's
// stream is stopped before the new one starts.
func (c *Coordinator) Select(s sensor.Sensor) {
	c.selMu.Lock()
	defer c.selMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	target, ok := c.registry.Get(s.ID)
	if !ok {
		c.mu.Unlock()
		slog.Debug("[COORD] select ignored, sensor not discovered", "id", s.ID)
		return
	}
	current, hasCurrent := c.registry.Selected()
	c.mu.Unlock()

	if hasCurrent && current.Is(target) {
		return
	}
	if hasCurrent {
		c.adapterFor(current).StopReceiving()
	}

	c.mu.Lock()
	c.registry.Select(target.ID)
	selected, _ := c.registry.Selected()
	c.dispatchLocked(func(o Observer) { o.SensorSelected(selected) })
	c.mu.Unlock()

	slog.Info("[COORD] sensor selected", "id", selected.ID, "name", selected.Name)
	c.adapterFor(selected).StartReceiving(selected.ID)
}

// Deselect stops the active stream and clears the selection. Only observers
// implementing DeselectObserver hear about it.
func (c *Coordinator) Deselect() {
	c.selMu.Lock()
	defer c.selMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	current, ok := c.registry.Selected()
	c.mu.Unlock()
	if !ok {
		return
	}

	c.adapterFor(current).StopReceiving()

	c.mu.Lock()
	c.registry.ClearSelection()
	c.dispatchLocked(func(o Observer) {
		if d, ok := o.(DeselectObserver); ok {
			d.SensorDeselected(current)
		}
	})
	c.mu.Unlock()
	slog.Info("[COORD] sensor deselected", "id", current.ID)
}

// Close tears down every adapter, waits for their timers and in-flight work
// and stops notifications. It must not be called from an observer callback.
func (c *Coordinator) Close() error {
	c.selMu.Lock()
	defer c.selMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, a := range c.order {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("coordinator: close %s adapter: %w", a.Transport(), err))
		}
	}
	c.notify.close()
	return errors.Join(errs...)
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// adapterFor returns the adapter owning s. Registry sensors always have one
// because delegates only accept sensors of their own transport.
func (c *Coordinator) adapterFor(s sensor.Sensor) transport.Adapter {
	return c.adapters[s.Transport]
}

// dispatchLocked queues fn for every observer. Holding mu while queueing
// keeps notifications in the order the registry changed.
func (c *Coordinator) dispatchLocked(fn func(Observer)) {
	c.notify.push(func() { c.observers.Each(fn) })
}

// flush waits until every queued notification has been delivered.
func (c *Coordinator) flush() { c.notify.flush() }

func (c *Coordinator) handleDiscovered(s sensor.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.registry.Discover(s) {
		return
	}
	slog.Info("[COORD] sensor discovered", "id", s.ID, "kind", s.Kind, "name", s.Name)
	c.dispatchLocked(func(o Observer) { o.SensorDiscovered(s) })
}

func (c *Coordinator) handleState(s sensor.Sensor, state sensor.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	updated, ok := c.registry.SetState(s.ID, state)
	if !ok {
		slog.Debug("[COORD] state change for unknown sensor dropped", "id", s.ID, "state", state)
		return
	}
	if state == sensor.StateConnected {
		c.dispatchLocked(func(o Observer) { o.SensorConnected(updated) })
	} else {
		c.dispatchLocked(func(o Observer) { o.SensorDisconnected(updated) })
	}
}

func (c *Coordinator) handleHeartRate(hr sensor.HeartRate, from sensor.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	known, ok := c.registry.Get(from.ID)
	if !ok {
		slog.Debug("[COORD] heart rate from unknown sensor dropped", "id", from.ID)
		return
	}
	c.registry.RecordHeartRate(hr)
	c.dispatchLocked(func(o Observer) { o.HeartRateReceived(hr, known) })
}

// delegate receives one adapter's events and rejects sensors outside that
// adapter's transport namespace.
type delegate struct {
	c         *Coordinator
	transport sensor.Transport
}

func (d *delegate) owns(s sensor.Sensor) bool {
	if s.Transport != d.transport || !strings.HasPrefix(string(s.ID), d.transport.String()+":") {
		slog.Warn("[COORD] event outside adapter namespace dropped", "adapter", d.transport, "id", s.ID)
		return false
	}
	return true
}

func (d *delegate) Discovered(s sensor.Sensor) {
	if d.owns(s) {
		d.c.handleDiscovered(s)
	}
}

func (d *delegate) Connected(s sensor.Sensor) {
	if d.owns(s) {
		d.c.handleState(s, sensor.StateConnected)
	}
}

func (d *delegate) Disconnected(s sensor.Sensor) {
	if d.owns(s) {
		d.c.handleState(s, sensor.StateNotConnected)
	}
}

func (d *delegate) ReceivedHeartRate(hr sensor.HeartRate, from sensor.Sensor) {
	if d.owns(from) {
		d.c.handleHeartRate(hr, from)
	}
}

package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/chaz8081/hrkit/internal/ble/protocol"
	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
)

// ManagerOptions configures the BLE transport.
type ManagerOptions struct {
	ServiceUUID        string        // service filter for scans
	ReconnectInterval  time.Duration // fixed period of the reconnect check (default 5s)
	ConnectTimeout     time.Duration // per-attempt connect deadline (default 10s)
	BreakerMaxFailures uint32        // consecutive failures before connects are skipped
	BreakerTimeout     time.Duration // how long connects are skipped once tripped
}

// DefaultManagerOptions returns sensible defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		ServiceUUID:        HeartRateServiceUUID,
		ReconnectInterval:  5 * time.Second,
		ConnectTimeout:     10 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
}

type device struct {
	address string
	sensor  sensor.Sensor
}

// Manager is the BLE transport adapter. It tracks every heart-rate
// peripheral seen while discovering and keeps at most one of them, the
// selected device, connected.
type Manager struct {
	radio   Radio
	power   PowerMonitor
	opts    ManagerOptions
	breaker *gobreaker.CircuitBreaker[Connection]
	emitter transport.Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enableMu sync.Mutex
	enabled  bool

	mu          sync.Mutex
	closed      bool
	powered     bool
	discovering bool
	scanCancel  context.CancelFunc
	scanGen     uint64
	devices     map[string]*device // keyed by address
	selected    *device
	streamGen   uint64 // bumped whenever the selected stream changes
	stream      context.CancelFunc
	conn        Connection
	char        Characteristic
}

// NewManager creates a BLE adapter over radio. power may be nil, in which
// case the radio is assumed to stay powered.
func NewManager(radio Radio, power PowerMonitor, opts ManagerOptions) *Manager {
	def := DefaultManagerOptions()
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = def.ReconnectInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = def.BreakerMaxFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = def.BreakerTimeout
	}

	maxFailures := opts.BreakerMaxFailures
	breaker := gobreaker.NewCircuitBreaker[Connection](gobreaker.Settings{
		Name:    "ble-connect",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Attempts abandoned by StopReceiving or Close say nothing about the
		// peripheral.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("[BLE] connect breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		radio:   radio,
		power:   power,
		opts:    opts,
		breaker: breaker,
		ctx:     ctx,
		cancel:  cancel,
		powered: true,
		devices: make(map[string]*device),
	}

	if power != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := power.Watch(ctx, m.handlePower); err != nil {
				slog.Warn("[BLE] power monitor stopped", "error", err)
			}
		}()
	}

	return m
}

// Compile-time check that Manager implements transport.Adapter.
var _ transport.Adapter = (*Manager)(nil)

func (m *Manager) Transport() sensor.Transport { return sensor.TransportBluetooth }

func (m *Manager) SetDelegate(d transport.Delegate) { m.emitter.Set(d) }

func (m *Manager) StartDiscovering() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.discovering {
		return
	}
	m.discovering = true
	m.startScanLocked()
}

func (m *Manager) StopDiscovering() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovering = false
	m.stopScanLocked()
}

// startScanLocked launches a scan unless one is running or the radio is off.
func (m *Manager) startScanLocked() {
	if m.scanCancel != nil || !m.powered {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.scanCancel = cancel
	m.scanGen++
	gen := m.scanGen

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runScan(ctx, gen)
	}()
}

func (m *Manager) stopScanLocked() {
	if m.scanCancel == nil {
		return
	}
	m.scanCancel()
	m.scanCancel = nil
	m.scanGen++
}

func (m *Manager) runScan(ctx context.Context, gen uint64) {
	defer func() {
		m.mu.Lock()
		if m.scanGen == gen {
			m.scanCancel = nil
		}
		m.mu.Unlock()
	}()

	if err := m.ensureEnabled(); err != nil {
		slog.Error("[BLE] cannot scan", "error", err)
		return
	}
	slog.Debug("[BLE] scanning", "service", m.opts.ServiceUUID)
	err := m.radio.Scan(ctx, m.opts.ServiceUUID, func(adv Advertisement) {
		m.handleAdvertisement(gen, adv)
	})
	if err != nil {
		slog.Warn("[BLE] scan ended", "error", err)
	}
}

// handleAdvertisement records a peripheral the first time it is seen.
// Nameless advertisements are ignored.
func (m *Manager) handleAdvertisement(gen uint64, adv Advertisement) {
	if adv.Name == "" || adv.Address == "" {
		return
	}

	m.mu.Lock()
	if m.closed || !m.discovering || m.scanGen != gen {
		m.mu.Unlock()
		return
	}
	if _, ok := m.devices[adv.Address]; ok {
		m.mu.Unlock()
		return
	}
	dev := &device{address: adv.Address, sensor: sensorFor(adv)}
	m.devices[adv.Address] = dev
	s := dev.sensor
	m.mu.Unlock()

	slog.Info("[BLE] discovered", "id", s.ID, "name", s.Name, "rssi", adv.RSSI)
	m.emitter.Emit(func(d transport.Delegate) { d.Discovered(s) })
}

func (m *Manager) ensureEnabled() error {
	m.enableMu.Lock()
	defer m.enableMu.Unlock()
	if m.enabled {
		return nil
	}
	if err := m.radio.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	m.enabled = true
	return nil
}

// StartReceiving connects to the device behind id and keeps it connected,
// re-checking every ReconnectInterval, until StopReceiving or Close.
func (m *Manager) StartReceiving(id sensor.ID) {
	m.StopReceiving()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	dev, ok := m.devices[id.Native()]
	if !ok || dev.sensor.ID != id {
		slog.Warn("[BLE] start receiving from unknown device", "id", id)
		return
	}

	m.selected = dev
	m.streamGen++
	gen := m.streamGen
	ctx, cancel := context.WithCancel(m.ctx)
	m.stream = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.maintain(ctx, gen, dev)
	}()
}

// StopReceiving drops the selected device. If it was connected, it is
// reported disconnected and the link is torn down in the background.
func (m *Manager) StopReceiving() {
	m.mu.Lock()
	dev := m.selected
	if dev == nil {
		m.mu.Unlock()
		return
	}
	m.selected = nil
	m.streamGen++
	if m.stream != nil {
		m.stream()
		m.stream = nil
	}
	conn, char := m.conn, m.char
	m.conn, m.char = nil, nil
	if conn == nil {
		m.mu.Unlock()
		return
	}
	dev.sensor.State = sensor.StateNotConnected
	s := dev.sensor
	m.emitter.Emit(func(d transport.Delegate) { d.Disconnected(s) })
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		release(conn, char)
	}()
}

func release(conn Connection, char Characteristic) {
	if char != nil {
		if err := char.Unsubscribe(); err != nil {
			slog.Debug("[BLE] unsubscribe failed", "error", err)
		}
	}
	if err := conn.Disconnect(); err != nil {
		slog.Debug("[BLE] disconnect failed", "error", err)
	}
}

// maintain connects immediately and then checks the link on a fixed timer.
// Attempts are skipped while the radio is powered off.
func (m *Manager) maintain(ctx context.Context, gen uint64, dev *device) {
	if m.needsConnect(gen) {
		m.connect(ctx, gen, dev)
	}

	ticker := time.NewTicker(m.opts.ReconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.needsConnect(gen) {
				slog.Debug("[BLE] reconnecting", "id", dev.sensor.ID)
				m.connect(ctx, gen, dev)
			}
		}
	}
}

func (m *Manager) needsConnect(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamGen == gen && m.powered && m.conn == nil
}

func (m *Manager) connect(ctx context.Context, gen uint64, dev *device) {
	if err := m.ensureEnabled(); err != nil {
		slog.Error("[BLE] cannot connect", "error", err)
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	conn, err := m.breaker.Execute(func() (Connection, error) {
		return m.radio.Connect(connectCtx, dev.address)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Debug("[BLE] connect skipped, breaker open", "address", dev.address)
		} else if ctx.Err() == nil {
			slog.Warn("[BLE] connect failed", "address", dev.address, "error", err)
		}
		return
	}

	conn.OnDisconnect(func() { m.handleDisconnect(conn) })

	m.mu.Lock()
	if m.closed || m.streamGen != gen {
		m.mu.Unlock()
		release(conn, nil)
		return
	}
	m.conn = conn
	dev.sensor.State = sensor.StateConnected
	s := dev.sensor
	// State events are emitted under mu so a concurrent StopReceiving
	// cannot report the disconnect first.
	m.emitter.Emit(func(d transport.Delegate) { d.Connected(s) })
	m.mu.Unlock()

	slog.Info("[BLE] connected", "id", s.ID, "name", s.Name)

	char, err := conn.DiscoverCharacteristic(HeartRateServiceUUID, HeartRateMeasurementUUID)
	if err != nil {
		slog.Warn("[BLE] no heart rate measurement characteristic", "id", s.ID, "error", err)
		return
	}
	if err := char.Subscribe(func(data []byte) { m.handleNotification(gen, dev, data) }); err != nil {
		slog.Warn("[BLE] subscribe failed", "id", s.ID, "error", err)
		return
	}

	m.mu.Lock()
	if m.conn == conn {
		m.char = char
	}
	m.mu.Unlock()
}

// handleDisconnect runs when the radio reports a dropped link. Links the
// manager already let go of are ignored.
func (m *Manager) handleDisconnect(conn Connection) {
	m.mu.Lock()
	if m.conn != conn || m.selected == nil {
		m.mu.Unlock()
		return
	}
	m.conn, m.char = nil, nil
	dev := m.selected
	dev.sensor.State = sensor.StateNotConnected
	s := dev.sensor
	m.emitter.Emit(func(d transport.Delegate) { d.Disconnected(s) })
	m.mu.Unlock()

	slog.Warn("[BLE] disconnected, will retry", "id", s.ID, "interval", m.opts.ReconnectInterval)
}

func (m *Manager) handleNotification(gen uint64, dev *device, data []byte) {
	m.mu.Lock()
	current := m.streamGen == gen && m.selected == dev
	s := dev.sensor
	m.mu.Unlock()
	if !current {
		return
	}

	hr, err := protocol.DecodeHeartRate(data)
	if err != nil {
		slog.Debug("[BLE] bad heart rate notification", "id", s.ID, "error", err)
		return
	}
	if hr > sensor.MaxHeartRate {
		slog.Debug("[BLE] implausible heart rate dropped", "id", s.ID, "bpm", hr)
		return
	}
	m.emitter.Emit(func(d transport.Delegate) { d.ReceivedHeartRate(hr, s) })
}

// handlePower reacts to radio power changes. Powering off marks every
// tracked device not connected and reports the ones that were connected;
// powering on resumes scanning if discovery is active. The reconnect timer
// brings the selected device back.
func (m *Manager) handlePower(powered bool) {
	m.mu.Lock()
	if m.closed || m.powered == powered {
		m.mu.Unlock()
		return
	}
	m.powered = powered
	slog.Info("[BLE] radio power changed", "powered", powered)

	if powered {
		if m.discovering {
			m.startScanLocked()
		}
		m.mu.Unlock()
		return
	}

	m.stopScanLocked()
	m.conn, m.char = nil, nil
	var lost []sensor.Sensor
	for _, dev := range m.devices {
		if dev.sensor.State == sensor.StateConnected {
			lost = append(lost, dev.sensor)
		}
		dev.sensor.State = sensor.StateNotConnected
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].ID < lost[j].ID })
	for _, s := range lost {
		s.State = sensor.StateNotConnected
		m.emitter.Emit(func(d transport.Delegate) { d.Disconnected(s) })
	}
	m.mu.Unlock()
}

// Close halts scanning, the reconnect timer and the power monitor, drops
// the active link and waits for background work to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.discovering = false
	m.stopScanLocked()
	m.selected = nil
	m.streamGen++
	if m.stream != nil {
		m.stream()
		m.stream = nil
	}
	conn, char := m.conn, m.char
	m.conn, m.char = nil, nil
	m.mu.Unlock()

	m.emitter.Close()
	m.cancel()
	if conn != nil {
		release(conn, char)
	}
	m.wg.Wait()
	return nil
}

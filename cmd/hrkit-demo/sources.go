package main

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/hrkit/internal/ble"
	"github.com/chaz8081/hrkit/internal/config"
	"github.com/chaz8081/hrkit/internal/coordinator"
	"github.com/chaz8081/hrkit/internal/fake"
	"github.com/chaz8081/hrkit/internal/relay"
	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
	"github.com/chaz8081/hrkit/internal/wearable"
)

// buildCoordinator creates one adapter per enabled transport and hands them
// to a new coordinator. The returned shutdown closes everything in reverse.
func buildCoordinator(cfg *config.Config) (*coordinator.Coordinator, func(), error) {
	var (
		adapters []transport.Adapter
		closers  []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("shutdown", "error", err)
			}
		}
	}

	if cfg.BLE.Enabled {
		var power ble.PowerMonitor
		if cfg.BLE.PowerMonitor {
			power = ble.NewPowerMonitor()
		}
		opts := ble.ManagerOptions{
			ServiceUUID:        cfg.BLE.ServiceUUID,
			ReconnectInterval:  cfg.BLE.ReconnectInterval,
			ConnectTimeout:     cfg.BLE.ConnectTimeout,
			BreakerMaxFailures: cfg.BLE.Breaker.MaxFailures,
			BreakerTimeout:     cfg.BLE.Breaker.Timeout,
		}
		adapters = append(adapters, ble.NewManager(ble.NewTinyGoRadio(), power, opts))
	}

	if cfg.Wearable.Enabled {
		w, listener, err := buildWearable(cfg)
		if err != nil {
			closeAdapters(adapters)
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, listener.Close)
		adapters = append(adapters, w)
	}

	if cfg.Fake.Enabled {
		adapters = append(adapters, fake.New(fake.Options{
			Interval: cfg.Fake.Interval,
			MinBPM:   sensor.HeartRate(cfg.Fake.MinBPM),
			MaxBPM:   sensor.HeartRate(cfg.Fake.MaxBPM),
		}))
	}

	coord, err := coordinator.New(adapters...)
	if err != nil {
		closeAdapters(adapters)
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, coord.Close)

	slog.Info("coordinator ready", "adapters", len(adapters))
	return coord, closeAll, nil
}

// closeAdapters closes adapters the coordinator never took ownership of,
// newest first.
func closeAdapters(adapters []transport.Adapter) {
	for i := len(adapters) - 1; i >= 0; i-- {
		if err := adapters[i].Close(); err != nil {
			slog.Warn("shutdown", "transport", adapters[i].Transport(), "error", err)
		}
	}
}

// buildWearable starts the relay listener and wraps it in the wearable
// adapter, pushing readings in relay mode or polled in session mode.
func buildWearable(cfg *config.Config) (*wearable.Adapter, *relay.Listener, error) {
	mode, err := wearable.ParseMode(cfg.Wearable.Mode)
	if err != nil {
		return nil, nil, err
	}
	codec, err := relay.NewCodec(cfg.Relay.SharedSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("relay codec: %w", err)
	}

	listener := relay.NewListener(codec, relay.ListenerOptions{
		Path:          cfg.Relay.Path,
		RatePerSecond: cfg.Relay.RatePerSecond,
		Burst:         cfg.Relay.Burst,
	})
	if err := listener.Start(cfg.Relay.Listen); err != nil {
		return nil, nil, err
	}

	var session wearable.BiometricSession
	if mode == wearable.ModeSession {
		session = wearable.NewListenerSession(listener)
	}
	w, err := wearable.New(wearable.Options{
		Mode:              mode,
		DiscoveryInterval: cfg.Wearable.DiscoveryInterval,
		PollInterval:      cfg.Wearable.PollInterval,
	}, wearable.NewMDNSLocator(cfg.Wearable.MDNSService, 0), listener, session)
	if err != nil {
		listener.Close()
		return nil, nil, err
	}
	return w, listener, nil
}

// Command hrkit-companion runs next to a heart-rate source, advertises
// itself over mDNS and pushes readings to the host's relay while it is
// reachable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/hrkit/internal/ble"
	"github.com/chaz8081/hrkit/internal/config"
	"github.com/chaz8081/hrkit/internal/fake"
	"github.com/chaz8081/hrkit/internal/logger"
	"github.com/chaz8081/hrkit/internal/relay"
	"github.com/chaz8081/hrkit/internal/sensor"
	"github.com/chaz8081/hrkit/internal/transport"
	"github.com/chaz8081/hrkit/internal/wearable"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/hrkit/config.yaml)")
	source := flag.String("source", "sim", "heart-rate source: sim or ble")
	device := flag.String("device", "", "BLE address or name fragment (default: first strap found)")
	host := flag.String("host", "", "relay URL, overrides companion.host_url")
	retry := flag.Duration("retry", 5*time.Second, "reconnect interval while the host is unreachable")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if *host != "" {
		cfg.Companion.HostURL = *host
	}

	l, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	slog.SetDefault(l)

	src, err := newSource(*source, cfg)
	if err != nil {
		log.Fatalf("source: %v", err)
	}
	defer src.Close()

	codec, err := relay.NewCodec(cfg.Relay.SharedSecret)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}
	client := relay.NewClient(cfg.Companion.HostURL, codec)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		txt := []string{"relay=" + cfg.Companion.HostURL}
		if err := wearable.Advertise(ctx, cfg.Companion.Instance, cfg.Wearable.MDNSService, cfg.Companion.Port, txt); err != nil {
			slog.Warn("mdns advertisement failed", "error", err)
		}
	}()
	go keepConnected(ctx, client, *retry)

	fwd := newForwarder(matchDevice(*device))
	src.SetDelegate(fwd)
	go pump(ctx, client, fwd.readings)

	fmt.Printf("Looking for a %s heart-rate source. Ctrl+C to quit.\n", *source)
	src.StartDiscovering()
	select {
	case id := <-fwd.found:
		src.StopDiscovering()
		src.StartReceiving(id)
	case <-ctx.Done():
		return
	}

	<-ctx.Done()
	slog.Info("shutting down")
	src.StopReceiving()
}

// newSource builds the local heart-rate source.
func newSource(name string, cfg *config.Config) (transport.Adapter, error) {
	switch name {
	case "sim":
		return fake.New(fake.Options{
			Interval: cfg.Fake.Interval,
			MinBPM:   sensor.HeartRate(cfg.Fake.MinBPM),
			MaxBPM:   sensor.HeartRate(cfg.Fake.MaxBPM),
		}), nil
	case "ble":
		var power ble.PowerMonitor
		if cfg.BLE.PowerMonitor {
			power = ble.NewPowerMonitor()
		}
		return ble.NewManager(ble.NewTinyGoRadio(), power, ble.ManagerOptions{
			ServiceUUID:        cfg.BLE.ServiceUUID,
			ReconnectInterval:  cfg.BLE.ReconnectInterval,
			ConnectTimeout:     cfg.BLE.ConnectTimeout,
			BreakerMaxFailures: cfg.BLE.Breaker.MaxFailures,
			BreakerTimeout:     cfg.BLE.Breaker.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source %q (expected sim or ble)", name)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
		return config.Load(config.DefaultConfigPath())
	}
	return config.Default(), nil
}

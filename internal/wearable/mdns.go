package wearable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service the companion app advertises.
	ServiceType = "_hrkit-companion._tcp"
	mdnsDomain  = "local."
)

// Locator reports whether the companion app is installed and reachable.
type Locator interface {
	Locate(ctx context.Context) (bool, error)
}

// MDNSLocator finds the companion by browsing for its DNS-SD service.
type MDNSLocator struct {
	Service string
	Timeout time.Duration
}

// NewMDNSLocator returns a locator for service, or ServiceType if empty.
func NewMDNSLocator(service string, timeout time.Duration) *MDNSLocator {
	if service == "" {
		service = ServiceType
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MDNSLocator{Service: service, Timeout: timeout}
}

// Locate browses until the first matching entry or the timeout.
func (l *MDNSLocator) Locate(ctx context.Context) (bool, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return false, fmt.Errorf("wearable: mdns resolver: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(scanCtx, l.Service, mdnsDomain, entries); err != nil {
		return false, fmt.Errorf("wearable: mdns browse: %w", err)
	}

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return false, nil
		}
		slog.Debug("[WEARABLE] companion found", "instance", entry.Instance, "port", entry.Port)
		return true, nil
	case <-scanCtx.Done():
		return false, nil
	}
}

// Advertise registers the companion on the local network and blocks until
// ctx is cancelled.
func Advertise(ctx context.Context, instance, service string, port int, txt []string) error {
	if service == "" {
		service = ServiceType
	}
	server, err := zeroconf.Register(instance, service, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("wearable: mdns register: %w", err)
	}
	defer server.Shutdown()

	slog.Info("[WEARABLE] advertising companion", "instance", instance, "service", service, "port", port)
	<-ctx.Done()
	return nil
}

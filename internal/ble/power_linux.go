//go:build linux

package ble

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService   = "org.bluez"
	bluezAdapter   = "org.bluez.Adapter1"
	propsInterface = "org.freedesktop.DBus.Properties"
)

// BlueZPowerMonitor follows the Powered property of a BlueZ adapter over
// the system bus.
type BlueZPowerMonitor struct {
	path dbus.ObjectPath
}

// NewPowerMonitor returns a monitor for the default adapter (hci0).
func NewPowerMonitor() PowerMonitor {
	return &BlueZPowerMonitor{path: "/org/bluez/hci0"}
}

func (p *BlueZPowerMonitor) Watch(ctx context.Context, fn func(powered bool)) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("ble: connect system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(p.path),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("ble: watch %s: %w", p.path, err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	v, err := conn.Object(bluezService, p.path).GetProperty(bluezAdapter + ".Powered")
	if err != nil {
		return fmt.Errorf("ble: read %s powered: %w", p.path, err)
	}
	if powered, ok := v.Value().(bool); ok {
		fn(powered)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if powered, ok := poweredChange(sig); ok {
				fn(powered)
			}
		}
	}
}

// poweredChange extracts Adapter1.Powered from a PropertiesChanged signal.
func poweredChange(sig *dbus.Signal) (bool, bool) {
	if sig == nil || len(sig.Body) < 2 {
		return false, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != bluezAdapter {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed["Powered"]
	if !ok {
		return false, false
	}
	powered, ok := v.Value().(bool)
	return powered, ok
}

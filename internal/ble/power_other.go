//go:build !linux

package ble

// NewPowerMonitor returns nil outside Linux. CoreBluetooth and WinRT do not
// expose adapter power changes through tinygo-org/bluetooth, so the radio is
// assumed to stay powered.
func NewPowerMonitor() PowerMonitor {
	return nil
}

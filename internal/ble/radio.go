// Package ble implements the Bluetooth Low Energy heart-rate transport: it
// scans for peripherals advertising the Heart Rate service, classifies them
// by advertised name, keeps the selected strap connected and decodes its
// Heart Rate Measurement notifications.
package ble

import "context"

// Standard Heart Rate service and Heart Rate Measurement characteristic.
const (
	HeartRateServiceUUID     = "0000180d-0000-1000-8000-00805f9b34fb"
	HeartRateMeasurementUUID = "00002a37-0000-1000-8000-00805f9b34fb"
)

// Advertisement is a peripheral seen during a scan.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe disables notifications.
	Unsubscribe() error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Radio abstracts the BLE hardware adapter for testing.
type Radio interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports peripherals advertising serviceUUID to found until ctx is
	// cancelled. The same peripheral may be reported many times.
	Scan(ctx context.Context, serviceUUID string, found func(Advertisement)) error
	// Connect establishes a connection to the peripheral with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}

// PowerMonitor reports radio power transitions.
type PowerMonitor interface {
	// Watch calls fn with the current power state and every change after
	// it, until ctx is cancelled.
	Watch(ctx context.Context, fn func(powered bool)) error
}

// Package sensor defines the heart-rate sensor data model shared by every
// transport: identity, kind, connection state and the registry of sensors a
// coordinator has discovered.
package sensor

import (
	"fmt"
	"strings"
)

// HeartRate is a heart rate in beats per minute. Zero means the sensor is
// worn without skin contact (chest straps report this).
type HeartRate uint16

// MaxHeartRate bounds values accepted from untrusted sources such as the relay.
const MaxHeartRate HeartRate = 300

// ID identifies a sensor. IDs are namespaced by transport ("ble:AA:BB:..."),
// so two transports can never produce the same ID for different devices.
type ID string

// NewID builds a transport-namespaced ID from a transport-native identifier.
func NewID(t Transport, native string) ID {
	return ID(t.String() + ":" + native)
}

// Native returns the transport-native part of the ID.
func (id ID) Native() string {
	_, native, ok := strings.Cut(string(id), ":")
	if !ok {
		return string(id)
	}
	return native
}

// Kind classifies the hardware behind a sensor.
type Kind int

const (
	KindUnknown Kind = iota
	KindChestStrap
	KindArmStrap
	KindWristWearable
	KindPolarH7
	KindMiBand2
	KindHealthApp
	KindFake
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindChestStrap:    "chest-strap",
	KindArmStrap:      "arm-strap",
	KindWristWearable: "wrist-wearable",
	KindPolarH7:       "polar-h7",
	KindMiBand2:       "mi-band-2",
	KindHealthApp:     "health-app",
	KindFake:          "fake",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised names
// decode to KindUnknown.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = KindUnknown
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			break
		}
	}
	return nil
}

// State is the connection state of a sensor.
type State int

const (
	StateNone State = iota
	StateConnected
	StateNotConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateNotConnected:
		return "not-connected"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised names
// decode to StateNone.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connected":
		*s = StateConnected
	case "not-connected":
		*s = StateNotConnected
	default:
		*s = StateNone
	}
	return nil
}

// Transport is the channel class a sensor is reached through.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportBluetooth
	TransportWearable
	TransportSimulated
)

func (t Transport) String() string {
	switch t {
	case TransportBluetooth:
		return "ble"
	case TransportWearable:
		return "wearable"
	case TransportSimulated:
		return "sim"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Transport) MarshalText() ([]byte, error) {
	if t == TransportUnknown {
		return nil, fmt.Errorf("sensor: cannot marshal unknown transport")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised names
// decode to TransportBluetooth.
func (t *Transport) UnmarshalText(b []byte) error {
	switch string(b) {
	case "wearable":
		*t = TransportWearable
	case "sim":
		*t = TransportSimulated
	default:
		*t = TransportBluetooth
	}
	return nil
}

// Sensor is a discoverable heart-rate source. Two Sensor values describe the
// same sensor if and only if their IDs are equal; use Is rather than ==.
type Sensor struct {
	ID         ID        `json:"id"`
	Kind       Kind      `json:"type"`
	State      State     `json:"state"`
	Name       string    `json:"description"`
	DeviceName string    `json:"nameOfDevice,omitempty"`
	Transport  Transport `json:"source"`
}

// Is reports whether s and other refer to the same sensor.
func (s Sensor) Is(other Sensor) bool {
	return s.ID == other.ID
}

func (s Sensor) String() string {
	if s.Name == "" {
		return string(s.ID)
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}

package sensor

import (
	"encoding/json"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID(TransportBluetooth, "AA:BB:CC:DD:EE:FF")
	if id != "ble:AA:BB:CC:DD:EE:FF" {
		t.Errorf("NewID() = %q, want %q", id, "ble:AA:BB:CC:DD:EE:FF")
	}
	if id.Native() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Native() = %q, want %q", id.Native(), "AA:BB:CC:DD:EE:FF")
	}
	if NewID(TransportWearable, "x") == NewID(TransportSimulated, "x") {
		t.Error("IDs from different transports must not collide")
	}
}

func TestSensorIsComparesIDOnly(t *testing.T) {
	a := Sensor{ID: "ble:1", Name: "Strap", State: StateConnected}
	b := Sensor{ID: "ble:1", Name: "Renamed", State: StateNotConnected, Kind: KindPolarH7}
	c := Sensor{ID: "ble:2", Name: "Strap", State: StateConnected}

	if !a.Is(b) {
		t.Error("sensors with equal IDs should be the same sensor")
	}
	if a.Is(c) {
		t.Error("sensors with different IDs should differ")
	}
}

func TestSensorJSONUnknownValuesFallBack(t *testing.T) {
	data := []byte(`{"id":"ble:1","type":"smartwatch-9000","state":"flapping","description":"X","source":"carrier-pigeon"}`)

	var s Sensor
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.Kind != KindUnknown {
		t.Errorf("Kind = %v, want %v", s.Kind, KindUnknown)
	}
	if s.State != StateNone {
		t.Errorf("State = %v, want %v", s.State, StateNone)
	}
	if s.Transport != TransportBluetooth {
		t.Errorf("Transport = %v, want %v", s.Transport, TransportBluetooth)
	}
}

func TestSensorJSONFieldNames(t *testing.T) {
	s := Sensor{
		ID:        "wearable:E5CEF8DA",
		Kind:      KindWristWearable,
		State:     StateConnected,
		Name:      "Wearable",
		Transport: TransportWearable,
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"id":"wearable:E5CEF8DA","type":"wrist-wearable","state":"connected","description":"Wearable","source":"wearable"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

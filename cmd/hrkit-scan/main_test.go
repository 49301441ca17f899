package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/chaz8081/hrkit/internal/ble"
	"github.com/chaz8081/hrkit/internal/sensor"
)

func scanResults() []ble.ScanResult {
	return []ble.ScanResult{
		{Sensor: sensor.Sensor{
			ID:         sensor.NewID(sensor.TransportBluetooth, "AA:BB:CC"),
			Kind:       sensor.KindPolarH7,
			Name:       "Polar H7",
			DeviceName: "Polar H7 1A2B",
			Transport:  sensor.TransportBluetooth,
		}, RSSI: -48},
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, scanResults())
	out := buf.String()
	for _, want := range []string{"-48", "Polar H7", "AA:BB:CC"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, nil)
	if !strings.Contains(buf.String(), "No heart rate sensors") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, scanResults()); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	var got []jsonResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 1 || got[0].ID != "ble:AA:BB:CC" || got[0].DeviceName != "Polar H7 1A2B" || got[0].RSSI != -48 {
		t.Errorf("got %+v", got)
	}
}

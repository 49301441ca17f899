package ble

import (
	"strings"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// nameFragments maps fragments of an upper-cased advertised name to a sensor
// kind. Some vendor model codes are rewritten to a readable label. Every
// fragment is checked; the last match decides the kind.
var nameFragments = []struct {
	fragment string
	label    string
	kind     sensor.Kind
}{
	{fragment: "HRM603B", label: "SmartRun chest", kind: sensor.KindChestStrap},
	{fragment: "HW702A", label: "SmartRun arm", kind: sensor.KindArmStrap},
	{fragment: "APPLE WATCH", kind: sensor.KindWristWearable},
	{fragment: "POLAR H7", kind: sensor.KindPolarH7},
	{fragment: "MI BAND 2", kind: sensor.KindMiBand2},
}

// Classify derives a sensor kind and display label from an advertised name.
func Classify(name string) (sensor.Kind, string) {
	label := strings.ToUpper(name)
	kind := sensor.KindUnknown
	for _, f := range nameFragments {
		if !strings.Contains(label, f.fragment) {
			continue
		}
		kind = f.kind
		if f.label != "" {
			label = strings.Replace(label, f.fragment, f.label, 1)
		}
	}
	return kind, label
}

// sensorFor builds the sensor record for an advertisement.
func sensorFor(adv Advertisement) sensor.Sensor {
	kind, label := Classify(adv.Name)
	return sensor.Sensor{
		ID:         sensor.NewID(sensor.TransportBluetooth, adv.Address),
		Kind:       kind,
		State:      sensor.StateNone,
		Name:       label,
		DeviceName: adv.Name,
		Transport:  sensor.TransportBluetooth,
	}
}

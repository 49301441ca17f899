// Package protocol decodes the GATT Heart Rate Measurement characteristic
// (0x2A37) notified by BLE heart-rate straps.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// Flags byte layout:
//
//	| 7 6 5 | 4  | 3      | 2 1     | 0      |
//	| rsvd  | rr | energy | contact | format |
const (
	flagFormatUint16   = 0x01
	flagEnergyExpended = 0x08
	flagRRInterval     = 0x10
)

// ErrShortPayload is returned when a notification is too short for the
// fields its flags announce.
var ErrShortPayload = errors.New("protocol: short heart rate payload")

// ContactStatus is the two-bit sensor contact field.
type ContactStatus uint8

const (
	ContactNotSupported    ContactStatus = 0
	ContactNotSupportedAlt ContactStatus = 1
	ContactNotWorn         ContactStatus = 2
	ContactWorn            ContactStatus = 3
)

// Measurement is a decoded heart rate notification.
type Measurement struct {
	HeartRate sensor.HeartRate
	Contact   ContactStatus
	// Energy is the expended energy in kJ, or -1 when not present.
	Energy int
	RR     []time.Duration
	// Truncated is set when the payload ends inside an optional field the
	// flags announce. HeartRate is still valid; the extras after it are not.
	Truncated bool
}

// DecodeMeasurement parses a Heart Rate Measurement notification. A "not
// worn" contact status forces HeartRate to zero whatever the BPM field says.
// Only a payload missing the BPM field is an error.
func DecodeMeasurement(data []byte) (Measurement, error) {
	if len(data) < 2 {
		return Measurement{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(data))
	}
	flags := data[0]
	m := Measurement{
		Contact: ContactStatus((flags >> 1) & 0x3),
		Energy:  -1,
	}

	offset := 1
	if flags&flagFormatUint16 == 0 {
		m.HeartRate = sensor.HeartRate(data[offset])
		offset++
	} else {
		if len(data) < offset+2 {
			return Measurement{}, fmt.Errorf("%w: 16-bit value needs 3 bytes, got %d", ErrShortPayload, len(data))
		}
		m.HeartRate = sensor.HeartRate(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	if m.Contact == ContactNotWorn {
		m.HeartRate = 0
	}

	if flags&flagEnergyExpended != 0 {
		if len(data) < offset+2 {
			m.Truncated = true
			return m, nil
		}
		m.Energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	if flags&flagRRInterval != 0 {
		rr := data[offset:]
		m.RR = make([]time.Duration, 0, len(rr)/2)
		for i := 0; i+1 < len(rr); i += 2 {
			// RR intervals are in units of 1/1024 s.
			m.RR = append(m.RR, time.Duration(binary.LittleEndian.Uint16(rr[i:]))*time.Second/1024)
		}
	}

	return m, nil
}

// DecodeHeartRate returns only the BPM of a notification.
func DecodeHeartRate(data []byte) (sensor.HeartRate, error) {
	m, err := DecodeMeasurement(data)
	if err != nil {
		return 0, err
	}
	return m.HeartRate, nil
}

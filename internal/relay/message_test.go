package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chaz8081/hrkit/internal/sensor"
)

func hrPtr(v sensor.HeartRate) *sensor.HeartRate { return &v }

func TestPlainFrameWireFormat(t *testing.T) {
	codec, err := NewCodec("")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	f, err := codec.Encode(72)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `{"HeartRate":72}` {
		t.Errorf("wire = %s, want {\"HeartRate\":72}", data)
	}

	var decoded Frame
	if err := json.Unmarshal([]byte(`{"HeartRate":0}`), &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	hr, err := codec.Decode(decoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if hr != 0 {
		t.Errorf("Decode() = %d, want 0", hr)
	}
}

func TestSealedFrame(t *testing.T) {
	codec, err := NewCodec("pairing phrase")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	if !codec.Sealed() {
		t.Fatal("codec with a secret should seal")
	}

	f, err := codec.Encode(151)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if f.HeartRate != nil || f.Sealed == nil {
		t.Fatalf("sealed frame = %+v, want only Sealed set", f)
	}
	hr, err := codec.Decode(f)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if hr != 151 {
		t.Errorf("Decode() = %d, want 151", hr)
	}
}

func TestDecodeRejects(t *testing.T) {
	plain, _ := NewCodec("")
	sealed, _ := NewCodec("a")
	other, _ := NewCodec("b")

	sealedFrame, err := sealed.Encode(80)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name    string
		codec   *Codec
		frame   Frame
		wantErr error
	}{
		{"sealed frame without key", plain, sealedFrame, ErrSealed},
		{"plain frame with key", sealed, Frame{HeartRate: hrPtr(80)}, ErrUnsealed},
		{"missing heart rate", plain, Frame{}, ErrNoHeartRate},
		{"wrong key", other, sealedFrame, nil},
		{"out of range", plain, Frame{HeartRate: hrPtr(sensor.MaxHeartRate + 1)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.frame)
			if err == nil {
				t.Fatal("Decode() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

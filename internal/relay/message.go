// Package relay carries heart-rate readings pushed by the companion device
// to the host over a websocket. Each frame is a small JSON object,
// {"HeartRate": n}, optionally sealed with a key derived from a shared
// secret.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chaz8081/hrkit/internal/relay/crypto"
	"github.com/chaz8081/hrkit/internal/sensor"
)

var (
	// ErrUnreachable is returned by Client.Send while no host is connected.
	ErrUnreachable = errors.New("relay: host unreachable")
	// ErrSealed is returned when a sealed frame reaches a codec without a key.
	ErrSealed = errors.New("relay: frame is sealed but no shared secret is configured")
	// ErrUnsealed is returned when a plain frame reaches a codec with a key.
	ErrUnsealed = errors.New("relay: plain frame rejected, shared secret is configured")
	// ErrNoHeartRate is returned for a frame without a HeartRate value.
	ErrNoHeartRate = errors.New("relay: frame has no HeartRate")
)

// Frame is the relay wire format.
type Frame struct {
	HeartRate *sensor.HeartRate `json:"HeartRate,omitempty"`
	Sealed    *crypto.Box       `json:"Sealed,omitempty"`
}

// Codec converts heart rates to frames and back. A codec built without a
// secret produces and accepts plain frames only.
type Codec struct {
	key []byte
}

// NewCodec returns a codec for the given shared secret, which may be empty.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return &Codec{}, nil
	}
	key, err := crypto.DeriveKey([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("relay: derive key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Sealed reports whether frames are encrypted.
func (c *Codec) Sealed() bool { return c.key != nil }

func (c *Codec) Encode(hr sensor.HeartRate) (Frame, error) {
	plain := Frame{HeartRate: &hr}
	if c.key == nil {
		return plain, nil
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return Frame{}, fmt.Errorf("relay: marshal frame: %w", err)
	}
	box, err := crypto.Seal(c.key, data)
	if err != nil {
		return Frame{}, fmt.Errorf("relay: seal frame: %w", err)
	}
	return Frame{Sealed: &box}, nil
}

func (c *Codec) Decode(f Frame) (sensor.HeartRate, error) {
	switch {
	case c.key == nil && f.Sealed != nil:
		return 0, ErrSealed
	case c.key != nil && f.Sealed == nil:
		return 0, ErrUnsealed
	case c.key != nil:
		data, err := crypto.Open(c.key, *f.Sealed)
		if err != nil {
			return 0, fmt.Errorf("relay: open frame: %w", err)
		}
		var inner Frame
		if err := json.Unmarshal(data, &inner); err != nil {
			return 0, fmt.Errorf("relay: unmarshal sealed frame: %w", err)
		}
		if inner.Sealed != nil {
			return 0, fmt.Errorf("relay: nested sealed frame")
		}
		f = inner
	}

	if f.HeartRate == nil {
		return 0, ErrNoHeartRate
	}
	if *f.HeartRate > sensor.MaxHeartRate {
		return 0, fmt.Errorf("relay: heart rate %d out of range", *f.HeartRate)
	}
	return *f.HeartRate, nil
}

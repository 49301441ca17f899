package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// ScanResult is a sensor seen by ScanForSensors with its strongest RSSI.
type ScanResult struct {
	Sensor sensor.Sensor
	RSSI   int
}

// ScanForSensors scans for heart-rate peripherals for the given duration
// and returns every named device found, strongest signal first.
func ScanForSensors(ctx context.Context, radio Radio, timeout time.Duration) ([]ScanResult, error) {
	if err := radio.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	found := make(map[string]*ScanResult)

	slog.Info("[BLE] scanning for heart rate sensors", "timeout", timeout)
	err := radio.Scan(scanCtx, HeartRateServiceUUID, func(adv Advertisement) {
		if adv.Name == "" || adv.Address == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if r, ok := found[adv.Address]; ok {
			if adv.RSSI > r.RSSI {
				r.RSSI = adv.RSSI
			}
			return
		}
		found[adv.Address] = &ScanResult{Sensor: sensorFor(adv), RSSI: adv.RSSI}
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	results := make([]ScanResult, 0, len(found))
	for _, r := range found {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].RSSI != results[j].RSSI {
			return results[i].RSSI > results[j].RSSI
		}
		return results[i].Sensor.ID < results[j].Sensor.ID
	})
	return results, nil
}

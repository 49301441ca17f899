// Command hrkit-scan scans once for Bluetooth heart-rate sensors and lists
// them with their classification.
//
// Usage:
//
//	go run ./cmd/hrkit-scan [--timeout 10s] [--json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/hrkit/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	asJSON := flag.Bool("json", false, "print results as JSON")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*asJSON {
		fmt.Printf("Scanning for heart rate sensors (%s)...\n", *timeout)
	}
	results, err := ble.ScanForSensors(ctx, ble.NewTinyGoRadio(), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		err = printJSON(os.Stdout, results)
	} else {
		printTable(os.Stdout, results)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type jsonResult struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	DeviceName string `json:"device_name"`
	RSSI       int    `json:"rssi"`
}

func printJSON(w io.Writer, results []ble.ScanResult) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			ID:         string(r.Sensor.ID),
			Kind:       r.Sensor.Kind.String(),
			Name:       r.Sensor.Name,
			DeviceName: r.Sensor.DeviceName,
			RSSI:       r.RSSI,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printTable(w io.Writer, results []ble.ScanResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No heart rate sensors found.")
		return
	}
	fmt.Fprintf(w, "%-4s  %-14s  %-24s  %s\n", "RSSI", "KIND", "NAME", "ADDRESS")
	for _, r := range results {
		fmt.Fprintf(w, "%-4d  %-14s  %-24s  %s\n", r.RSSI, r.Sensor.Kind, r.Sensor.Name, r.Sensor.ID.Native())
	}
}

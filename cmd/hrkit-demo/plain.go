package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chaz8081/hrkit/internal/coordinator"
	"github.com/chaz8081/hrkit/internal/sensor"
)

// logObserver prints one line per event and selects the first sensor it
// sees.
type logObserver struct {
	out io.Writer
	svc coordinator.Service

	once sync.Once
}

func (o *logObserver) printf(format string, args ...any) {
	fmt.Fprintf(o.out, "%s  "+format+"\n", append([]any{time.Now().Format("15:04:05")}, args...)...)
}

func (o *logObserver) SensorDiscovered(s sensor.Sensor) {
	o.printf("discovered    %-12s %s (%s)", s.Kind, s.Name, s.ID)
	o.once.Do(func() {
		// Select re-enters the coordinator; keep it off the notification goroutine.
		go o.svc.Select(s)
	})
}

func (o *logObserver) SensorConnected(s sensor.Sensor) { o.printf("connected     %s", s.Name) }

func (o *logObserver) SensorDisconnected(s sensor.Sensor) { o.printf("disconnected  %s", s.Name) }

func (o *logObserver) SensorSelected(s sensor.Sensor) { o.printf("selected      %s", s.Name) }

func (o *logObserver) SensorDeselected(s sensor.Sensor) { o.printf("deselected    %s", s.Name) }

func (o *logObserver) HeartRateReceived(hr sensor.HeartRate, from sensor.Sensor) {
	o.printf("heart rate    %3d bpm from %s", hr, from.Name)
}

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gregoryjjb/blinker/blink"
)

var (
	gpioWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blinker",
		Subsystem: "gpio",
		Name:      "writes_total",
		Help:      "Levels successfully written to the LED line",
	}, []string{"level"})

	gpioWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blinker",
		Subsystem: "gpio",
		Name:      "write_errors_total",
		Help:      "Failed writes to the LED line",
	})

	blinkRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blinker",
		Name:      "running",
		Help:      "1 while the LED is blinking",
	})

	blinkPeriod = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blinker",
		Name:      "period_milliseconds",
		Help:      "Configured blink period",
	})
)

// initMetrics seeds the gauges from the controller's current state.
func initMetrics(state blink.State) {
	blinkPeriod.Set(float64(state.Period))
	if state.Running {
		blinkRunning.Set(1)
	} else {
		blinkRunning.Set(0)
	}
}

func recordMetrics(e blink.Event) {
	switch e.Type {
	case blink.EventLevel:
		gpioWrites.WithLabelValues(e.Level.String()).Inc()
	case blink.EventFailed:
		gpioWriteErrors.Inc()
	}

	blinkPeriod.Set(float64(e.Period))
	if e.Running {
		blinkRunning.Set(1)
	} else {
		blinkRunning.Set(0)
	}
}

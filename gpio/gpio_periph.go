package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type periphSink struct {
	label string
	pin   gpio.PinIO
}

func openPeriph(cfg Config) (Sink, error) {
	if _, err := host.Init(); err != nil {
		return nil, &ConfigurationError{Line: cfg.Label(), Err: fmt.Errorf("periph host init: %w", err)}
	}

	name := cfg.pinName()
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, &ConfigurationError{Line: cfg.Label(), Err: fmt.Errorf("pin %s not found in hardware", name)}
	}

	return &periphSink{label: cfg.Label(), pin: p}, nil
}

func periphLevel(v Value) gpio.Level {
	if v {
		return gpio.High
	}
	return gpio.Low
}

func (s *periphSink) Configure(initial Value) error {
	if err := s.pin.Out(periphLevel(initial)); err != nil {
		return &ConfigurationError{Line: s.label, Err: err}
	}
	return nil
}

func (s *periphSink) Write(v Value) error {
	if err := s.pin.Out(periphLevel(v)); err != nil {
		return &WriteError{Line: s.label, Value: v, Err: err}
	}
	return nil
}

func (s *periphSink) Close() error {
	return s.pin.Halt()
}

//go:build linux

package gpio

import "github.com/stianeikeland/go-rpio/v4"

type rpioSink struct {
	label string
	pin   rpio.Pin
}

func openRPIO(cfg Config) (Sink, error) {
	if err := rpio.Open(); err != nil {
		return nil, &ConfigurationError{Line: cfg.Label(), Err: err}
	}

	return &rpioSink{
		label: cfg.Label(),
		pin:   rpio.Pin(cfg.Line),
	}, nil
}

func rpioState(v Value) rpio.State {
	if v {
		return rpio.High
	}
	return rpio.Low
}

func (s *rpioSink) Configure(initial Value) error {
	s.pin.Output()
	s.pin.Write(rpioState(initial))
	return nil
}

// Register writes cannot fail once the memory map is open.
func (s *rpioSink) Write(v Value) error {
	s.pin.Write(rpioState(v))
	return nil
}

func (s *rpioSink) Close() error {
	s.pin.Low()
	return rpio.Close()
}

//go:build linux

package gpio

import (
	"errors"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "blinker"

type cdevSink struct {
	cfg  Config
	mu   sync.Mutex
	line *gpiocdev.Line
}

func openCdev(cfg Config) (Sink, error) {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	return &cdevSink{cfg: cfg}, nil
}

func cdevValue(v Value) int {
	if v {
		return 1
	}
	return 0
}

// Configure requests the line as an output. The request is held until Close.
func (s *cdevSink) Configure(initial Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.line != nil {
		if err := s.line.Reconfigure(gpiocdev.AsOutput(cdevValue(initial))); err != nil {
			return &ConfigurationError{Line: s.cfg.Label(), Err: err}
		}
		return nil
	}

	l, err := gpiocdev.RequestLine(s.cfg.Chip, s.cfg.Line,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsOutput(cdevValue(initial)))
	if err != nil {
		return &ConfigurationError{Line: s.cfg.Label(), Err: err}
	}
	s.line = l
	return nil
}

func (s *cdevSink) Write(v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.line == nil {
		return &WriteError{Line: s.cfg.Label(), Value: v, Err: errors.New("line not requested")}
	}
	if err := s.line.SetValue(cdevValue(v)); err != nil {
		return &WriteError{Line: s.cfg.Label(), Value: v, Err: err}
	}
	return nil
}

// Close reverts the line to an input before releasing it.
func (s *cdevSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.line == nil {
		return nil
	}
	s.line.Reconfigure(gpiocdev.AsInput)
	err := s.line.Close()
	s.line = nil
	return err
}

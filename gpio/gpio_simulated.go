package gpio

import (
	"errors"
	"sync"
)

// ErrSimulatedFailure is returned by a simulated sink once its write budget
// is used up.
var ErrSimulatedFailure = errors.New("simulated hardware failure")

// Simulated is a Sink that logs levels instead of driving hardware.
type Simulated struct {
	label     string
	failAfter int

	mu         sync.Mutex
	configured bool
	closed     bool
	level      Value
	writes     int
}

func NewSimulated(cfg Config) *Simulated {
	glog.Debug().Msg("GPIO will be simulated")
	return &Simulated{
		label:     cfg.Label(),
		failAfter: cfg.FailAfter,
	}
}

func printLevel(v Value) {
	str := " "
	if v {
		str = "#"
	}
	glog.Debug().Str("led", str).Msg("GPIO")
}

func (s *Simulated) Configure(initial Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &ConfigurationError{Line: s.label, Err: errors.New("sink closed")}
	}
	s.configured = true
	s.level = initial
	printLevel(initial)
	return nil
}

func (s *Simulated) Write(v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return &WriteError{Line: s.label, Value: v, Err: errors.New("sink closed")}
	case !s.configured:
		return &WriteError{Line: s.label, Value: v, Err: errors.New("line not configured")}
	case s.failAfter > 0 && s.writes >= s.failAfter:
		return &WriteError{Line: s.label, Value: v, Err: ErrSimulatedFailure}
	}

	s.writes++
	s.level = v
	printLevel(v)
	return nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	glog.Debug().Msg("Simulated GPIO closing")
	s.closed = true
	s.level = Low
	return nil
}

// Level returns the last level applied.
func (s *Simulated) Level() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Writes returns the number of successful writes.
func (s *Simulated) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

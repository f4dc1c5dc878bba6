package gpio

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var glog zerolog.Logger

func init() {
	glog = log.With().Str("component", "gpio").Logger()
}

// Value is the level driven onto a line.
type Value bool

const (
	Low  Value = false
	High Value = true
)

func (v Value) String() string {
	if v {
		return "high"
	}
	return "low"
}

// Toggle returns the opposite level.
func (v Value) Toggle() Value {
	return !v
}

func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Value) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "high", "1", "true":
		*v = High
	case "low", "0", "false":
		*v = Low
	default:
		return fmt.Errorf("invalid gpio value %q", text)
	}
	return nil
}

// Sink applies levels to a single output line.
type Sink interface {
	// Configure puts the line in output mode driving initial.
	Configure(initial Value) error
	Write(v Value) error
	// Close releases the line. The sink must not be used afterwards.
	Close() error
}

// ConfigurationError means the line could not be acquired or set up.
type ConfigurationError struct {
	Line string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("error initializing GPIO: %s", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// WriteError means a level could not be applied to the line.
type WriteError struct {
	Line  string
	Value Value
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error setting GPIO value: %s", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

const (
	DriverRPIO      = "rpio"
	DriverCdev      = "cdev"
	DriverPeriph    = "periph"
	DriverSimulated = "simulated"
)

// Config selects the driver and the line it controls.
type Config struct {
	Driver string `toml:"driver"`
	// Chip is the character device used by the cdev driver.
	Chip string `toml:"chip"`
	// Line is the BCM pin for rpio or the line offset for cdev.
	Line int `toml:"line"`
	// Name is the periph pin name, e.g. "GPIO17". Defaults to GPIO<Line>.
	Name string `toml:"name"`
	// FailAfter makes the simulated driver fail every write after that many
	// successful ones. Zero disables it.
	FailAfter int `toml:"fail_after"`
}

// Label identifies the configured line in logs and errors.
func (c Config) Label() string {
	switch c.Driver {
	case DriverCdev:
		return fmt.Sprintf("%s:%d", c.Chip, c.Line)
	case DriverPeriph:
		return c.pinName()
	case "":
		return fmt.Sprintf("%s:%d", DriverSimulated, c.Line)
	default:
		return fmt.Sprintf("%s:%d", c.Driver, c.Line)
	}
}

func (c Config) pinName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("GPIO%d", c.Line)
}

// Open acquires the line described by cfg. The returned sink still needs
// Configure before it is written.
func Open(cfg Config) (Sink, error) {
	glog.Debug().Str("driver", cfg.Driver).Str("line", cfg.Label()).Msg("Opening GPIO")

	switch cfg.Driver {
	case DriverRPIO:
		return openRPIO(cfg)
	case DriverCdev:
		return openCdev(cfg)
	case DriverPeriph:
		return openPeriph(cfg)
	case DriverSimulated, "":
		return NewSimulated(cfg), nil
	default:
		return nil, &ConfigurationError{
			Line: cfg.Label(),
			Err:  fmt.Errorf("unknown driver %q", cfg.Driver),
		}
	}
}

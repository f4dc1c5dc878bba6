//go:build !linux

package gpio

import (
	"fmt"
	"runtime"
)

func openRPIO(cfg Config) (Sink, error) {
	return nil, &ConfigurationError{
		Line: cfg.Label(),
		Err:  fmt.Errorf("rpio driver is not supported on %s", runtime.GOOS),
	}
}

func openCdev(cfg Config) (Sink, error) {
	return nil, &ConfigurationError{
		Line: cfg.Label(),
		Err:  fmt.Errorf("cdev driver is not supported on %s", runtime.GOOS),
	}
}

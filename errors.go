package main

import (
	"context"

	"github.com/rs/zerolog/log"
)

// HardwareErrorHandler returns how the session reacts to a GPIO failure.
// With exitOnError the message is logged and the session is cancelled with
// the error as its cause; otherwise the LED simply stays stopped.
func HardwareErrorHandler(exitOnError bool, cancel context.CancelCauseFunc) func(error) {
	return func(err error) {
		if exitOnError {
			log.Error().Err(err).Msg("Hardware error, terminating")
			cancel(err)
			return
		}
		log.Error().Err(err).Msg("Hardware error, blinking stopped")
	}
}

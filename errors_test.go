package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHardwareErrorHandler(t *testing.T) {
	cause := errors.New("error setting GPIO value: line gone")

	t.Run("ExitOnError", func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(context.Background())
		HardwareErrorHandler(true, cancel)(cause)

		assert.Error(t, ctx.Err())
		assert.Equal(t, cause, context.Cause(ctx))
	})

	t.Run("KeepRunning", func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(context.Background())
		defer cancel(nil)
		HardwareErrorHandler(false, cancel)(cause)

		assert.NoError(t, ctx.Err())
	})
}

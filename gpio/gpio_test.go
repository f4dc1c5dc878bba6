package gpio_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/blinker/gpio"
)

func TestValue(t *testing.T) {
	assert.Equal(t, "high", gpio.High.String())
	assert.Equal(t, "low", gpio.Low.String())
	assert.Equal(t, gpio.Low, gpio.High.Toggle())
	assert.Equal(t, gpio.High, gpio.Low.Toggle())

	js, err := json.Marshal(struct {
		Level gpio.Value `json:"level"`
	}{gpio.High})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"high"}`, string(js))

	var v gpio.Value
	require.NoError(t, v.UnmarshalText([]byte("HIGH")))
	assert.Equal(t, gpio.High, v)
	require.NoError(t, v.UnmarshalText([]byte("0")))
	assert.Equal(t, gpio.Low, v)
	assert.Error(t, v.UnmarshalText([]byte("blue")))
}

func TestErrorsKeepCause(t *testing.T) {
	cause := errors.New("device busy")

	werr := &gpio.WriteError{Line: "gpiochip0:34", Value: gpio.High, Err: cause}
	assert.Equal(t, "error setting GPIO value: device busy", werr.Error())
	assert.ErrorIs(t, werr, cause)

	cerr := &gpio.ConfigurationError{Line: "gpiochip0:34", Err: cause}
	assert.Equal(t, "error initializing GPIO: device busy", cerr.Error())
	assert.ErrorIs(t, cerr, cause)
}

func TestOpen(t *testing.T) {
	t.Run("UnknownDriver", func(t *testing.T) {
		_, err := gpio.Open(gpio.Config{Driver: "teleport", Line: 4})
		var cerr *gpio.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Error(), `unknown driver "teleport"`)
	})

	t.Run("DefaultsToSimulated", func(t *testing.T) {
		sink, err := gpio.Open(gpio.Config{Line: 4})
		require.NoError(t, err)
		assert.IsType(t, &gpio.Simulated{}, sink)
	})
}

func TestConfigLabel(t *testing.T) {
	tests := []struct {
		name string
		cfg  gpio.Config
		want string
	}{
		{"cdev", gpio.Config{Driver: gpio.DriverCdev, Chip: "gpiochip4", Line: 479}, "gpiochip4:479"},
		{"periph default name", gpio.Config{Driver: gpio.DriverPeriph, Line: 17}, "GPIO17"},
		{"periph explicit name", gpio.Config{Driver: gpio.DriverPeriph, Name: "P1_11"}, "P1_11"},
		{"rpio", gpio.Config{Driver: gpio.DriverRPIO, Line: 34}, "rpio:34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Label())
		})
	}
}

func TestSimulated(t *testing.T) {
	t.Run("RequiresConfigure", func(t *testing.T) {
		s := gpio.NewSimulated(gpio.Config{})
		var werr *gpio.WriteError
		require.ErrorAs(t, s.Write(gpio.High), &werr)
	})

	t.Run("TracksLevel", func(t *testing.T) {
		s := gpio.NewSimulated(gpio.Config{})
		require.NoError(t, s.Configure(gpio.Low))
		require.NoError(t, s.Write(gpio.High))
		assert.Equal(t, gpio.High, s.Level())
		require.NoError(t, s.Write(gpio.Low))
		assert.Equal(t, gpio.Low, s.Level())
		assert.Equal(t, 2, s.Writes())
	})

	t.Run("FailAfter", func(t *testing.T) {
		s := gpio.NewSimulated(gpio.Config{FailAfter: 2})
		require.NoError(t, s.Configure(gpio.Low))
		require.NoError(t, s.Write(gpio.High))
		require.NoError(t, s.Write(gpio.Low))

		err := s.Write(gpio.High)
		var werr *gpio.WriteError
		require.ErrorAs(t, err, &werr)
		assert.ErrorIs(t, err, gpio.ErrSimulatedFailure)
		assert.Equal(t, gpio.High, werr.Value)
		assert.Equal(t, gpio.Low, s.Level())
	})

	t.Run("Closed", func(t *testing.T) {
		s := gpio.NewSimulated(gpio.Config{})
		require.NoError(t, s.Configure(gpio.High))
		require.NoError(t, s.Close())
		assert.Equal(t, gpio.Low, s.Level())
		assert.Error(t, s.Write(gpio.High))
		assert.Error(t, s.Configure(gpio.Low))
	})
}

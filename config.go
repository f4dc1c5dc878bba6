package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"gregoryjjb/blinker/blink"
	"gregoryjjb/blinker/gpio"
)

const ConfigFileName = "blinker.toml"

const (
	defaultHost = "127.0.0.1"
	defaultPort = 1225
)

// Flags holds command line overrides. Zero values mean "not set".
type Flags struct {
	ConfigPath string
	Driver     string
	Period     int
	Debug      bool
}

type tomlConfig struct {
	Host        string      `toml:"host"`
	Port        int         `toml:"port"`
	Period      int         `toml:"period"`
	MinPeriod   int         `toml:"min_period"`
	MaxPeriod   int         `toml:"max_period"`
	Autostart   bool        `toml:"autostart"`
	ExitOnError *bool       `toml:"exit_on_error"`
	GPIO        gpio.Config `toml:"gpio"`
}

func defaultTomlConfig() tomlConfig {
	return tomlConfig{
		Host:      defaultHost,
		Port:      defaultPort,
		Period:    blink.DefaultPeriod,
		MinPeriod: blink.DefaultMinPeriod,
		MaxPeriod: blink.DefaultMaxPeriod,
		GPIO: gpio.Config{
			Driver: gpio.DriverSimulated,
			Chip:   "gpiochip0",
		},
	}
}

type Config struct {
	fs     BlinkerFS
	flags  Flags
	getenv func(string) string

	path string
	toml tomlConfig
}

// NewConfig loads the config file, then applies environment and flag
// overrides. A missing config file is not an error unless it was named
// explicitly with a flag.
func NewConfig(fsys BlinkerFS, flags Flags, getenv func(string) string) (*Config, error) {
	c := &Config{
		fs:     fsys,
		flags:  flags,
		getenv: getenv,
		toml:   defaultTomlConfig(),
	}

	path, err := c.findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
		c.path = path
	}

	if err := c.applyOverrides(); err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) findConfigFile() (string, error) {
	if c.flags.ConfigPath != "" {
		path, err := c.fs.Abs(c.flags.ConfigPath)
		if err != nil {
			return "", err
		}
		if _, err := c.fs.Stat(path); err != nil {
			return "", fmt.Errorf("config file %q: %w", path, err)
		}
		return path, nil
	}

	var candidates []string
	if local, err := c.fs.Abs(ConfigFileName); err == nil {
		candidates = append(candidates, local)
	}
	if home, err := c.fs.HomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "blinker", ConfigFileName))
	}

	for _, candidate := range candidates {
		_, err := c.fs.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}

	return "", nil
}

func (c *Config) readFile(path string) error {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return err
	}

	if err := toml.Unmarshal(data, &c.toml); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyOverrides() error {
	if host := c.getenv("HOST"); host != "" {
		c.toml.Host = host
	}
	if port := c.getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: PORT %q is not a number", ErrValidation, port)
		}
		c.toml.Port = p
	}

	if c.flags.Driver != "" {
		c.toml.GPIO.Driver = c.flags.Driver
	}
	if c.flags.Period != 0 {
		c.toml.Period = c.flags.Period
	}
	return nil
}

func (c *Config) validate() error {
	t := c.toml
	if t.MinPeriod <= 0 {
		return fmt.Errorf("%w: min_period must be positive, got %d", ErrValidation, t.MinPeriod)
	}
	if t.MaxPeriod < t.MinPeriod {
		return fmt.Errorf("%w: max_period %d is below min_period %d", ErrValidation, t.MaxPeriod, t.MinPeriod)
	}
	if int64(t.MaxPeriod) > blink.MaxPeriodLimit {
		return fmt.Errorf("%w: max_period %d exceeds %d", ErrValidation, t.MaxPeriod, blink.MaxPeriodLimit)
	}
	if err := ValidatePeriod(t.Period, t.MinPeriod, t.MaxPeriod); err != nil {
		return err
	}
	if t.Port <= 0 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrValidation, t.Port)
	}
	return nil
}

// Reload reads the config again from the same file. The -period flag only
// applies at startup, so a reloaded config carries the file's period.
func (c *Config) Reload() (*Config, error) {
	flags := c.flags
	flags.Period = 0
	if c.path != "" {
		flags.ConfigPath = c.path
	}
	return NewConfig(c.fs, flags, c.getenv)
}

// Path is the config file in use, or "" when running on defaults.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.toml.Host, strconv.Itoa(c.toml.Port))
}

func (c *Config) Period() int {
	return c.toml.Period
}

func (c *Config) Bounds() (min, max int) {
	return c.toml.MinPeriod, c.toml.MaxPeriod
}

func (c *Config) Autostart() bool {
	return c.toml.Autostart
}

func (c *Config) ExitOnError() bool {
	if c.toml.ExitOnError == nil {
		return true
	}
	return *c.toml.ExitOnError
}

func (c *Config) GPIO() gpio.Config {
	return c.toml.GPIO
}

func (c *Config) Debug() bool {
	return c.flags.Debug
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gregoryjjb/blinker/blink"
	"gregoryjjb/blinker/gpio"
)

func init() {
	InitializeLogger()
}

// Populated by ldflags
var (
	version            string
	buildUnixTimestamp string
	commitHash         string
)

func main() {
	ts, _ := strconv.ParseInt(buildUnixTimestamp, 10, 64)
	buildTime := time.Unix(ts, 0)

	versionFlag := flag.Bool("version", false, "Print version")
	systemdFlag := flag.Bool("systemd", false, "Print systemd service file")
	configFlag := flag.String("config", "", "Path to "+ConfigFileName)
	periodFlag := flag.String("period", "", "Blink period in milliseconds")
	driverFlag := flag.String("driver", "", "GPIO driver: rpio, cdev, periph or simulated")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag {
		fmt.Println("Blinker version:", version)
		fmt.Println("Built on:", buildTime)
		fmt.Println("Commit hash:", commitHash)
		return
	}

	if *systemdFlag {
		if err := SystemdServiceFile(*configFlag); err != nil {
			log.Fatal().Err(err).Msg("Failed to write systemd service file")
		}
		return
	}

	SetDebug(*debugFlag)

	log.Info().
		Str("version", version).
		Str("build_timestamp", buildTime.Format(time.RFC3339)).
		Str("commit_hash", commitHash).
		Msg("Initializing Blinker")

	flags := Flags{
		ConfigPath: *configFlag,
		Driver:     *driverFlag,
		Debug:      *debugFlag,
	}
	if *periodFlag != "" {
		// Bounds are checked once the config is loaded.
		p, err := ParsePeriod(*periodFlag, 1, int(^uint(0)>>1))
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -period")
		}
		flags.Period = p
	}

	config, err := NewConfig(NewBlinkerOSFS(), flags, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Config initialization failed")
	}

	if err := run(config); err != nil {
		log.Fatal().Err(err).Msg("Blinker exited with error")
	}
}

func run(config *Config) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			cancel(nil)
		case <-ctx.Done():
		}
	}()

	gpioConfig := config.GPIO()
	sink, err := gpio.Open(gpioConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Err(err).Str("line", gpioConfig.Label()).Msg("Failed to release GPIO")
		}
	}()

	if err := sink.Configure(gpio.Low); err != nil {
		return err
	}
	log.Info().Str("driver", gpioConfig.Driver).Str("line", gpioConfig.Label()).Msg("GPIO ready")

	onHardwareError := HardwareErrorHandler(config.ExitOnError(), cancel)

	lo, hi := config.Bounds()
	controller, err := blink.New(sink,
		blink.WithBounds(lo, hi),
		blink.WithPeriod(config.Period()),
		blink.WithErrorHandler(onHardwareError),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := controller.Close(); err != nil {
			log.Err(err).Msg("Failed to drive LED low on shutdown")
		}
	}()

	if err := controller.Reset(); err != nil {
		return err
	}

	history := NewHistory(historySize)
	initMetrics(controller.State())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchEvents(controller, history.Record)(gctx)
	})
	g.Go(func() error {
		return watchEvents(controller, recordMetrics)(gctx)
	})
	g.Go(func() error {
		return NewConfigWatcher(config, defaultDebounce, func(fresh *Config) {
			if err := controller.SetPeriod(fresh.Period()); err != nil {
				log.Warn().Err(err).Msg("Ignoring reloaded period")
			}
		}).Run(gctx)
	})
	g.Go(func() error {
		return NewServer(config, controller, history, onHardwareError).ListenAndServe(gctx, notifyReady)
	})

	if config.Autostart() {
		if err := controller.Start(); err != nil {
			onHardwareError(err)
		}
	}

	err = g.Wait()
	notifyStopping()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

package main

import (
	_ "embed"
	"io"
	"os"
	"text/template"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
)

//go:embed blinker.service
var blinkerServiceEmbed string

type BlinkerServiceParams struct {
	BinaryPath string
	ConfigPath string
	User       string
}

func WriteSystemdServiceFile(w io.Writer, params BlinkerServiceParams) error {
	tmpl, err := template.New("blinker.service").Parse(blinkerServiceEmbed)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, params)
}

func SystemdServiceFile(configPath string) error {
	path, err := os.Executable()
	if err != nil {
		return err
	}

	return WriteSystemdServiceFile(os.Stdout, BlinkerServiceParams{
		BinaryPath: path,
		ConfigPath: configPath,
		User:       "pi",
	})
}

// sdNotify tells systemd about a state change. Outside a notify-type unit
// it does nothing.
func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("systemd notify failed")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("Notified systemd")
	}
}

func notifyReady() {
	sdNotify(daemon.SdNotifyReady)
}

func notifyStopping() {
	sdNotify(daemon.SdNotifyStopping)
}

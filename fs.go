package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// BlinkerFS is an Afero FS with added functionality
// to replicate OS filesystems in testing
type BlinkerFS interface {
	afero.Fs
	Abs(string) (string, error)
	HomeDir() (string, error)
}

type blinkerOSFS struct {
	afero.Fs
}

func NewBlinkerOSFS() BlinkerFS {
	return &blinkerOSFS{
		afero.NewOsFs(),
	}
}

func (b *blinkerOSFS) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (b *blinkerOSFS) HomeDir() (string, error) {
	return os.UserHomeDir()
}

type blinkerMemFS struct {
	afero.Fs
}

func NewBlinkerMemFS() BlinkerFS {
	return &blinkerMemFS{
		afero.NewMemMapFs(),
	}
}

func (b *blinkerMemFS) Abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join("/", path), nil
}

func (b *blinkerMemFS) HomeDir() (string, error) {
	return "/home/pi", nil
}

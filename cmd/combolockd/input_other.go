//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"

	"combolock/internal/lock"
)

func runInputReader(ctx context.Context, paths []string, origin lock.Coordinate, events chan<- lock.Event, logger *slog.Logger) error {
	return errors.New("evdev input is only supported on linux")
}

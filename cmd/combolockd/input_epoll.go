//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"combolock/internal/lock"
)

// epollWaitMS bounds how long the reader sleeps before rechecking ctx.
const epollWaitMS = 250

// runInputReader reads pointer/touch devices with a single epoll loop and
// posts the translated events. It returns nil on ctx cancellation and an
// error when a device fails; device errors are fatal.
func runInputReader(ctx context.Context, paths []string, origin lock.Coordinate, events chan<- lock.Event, logger *slog.Logger) error {
	if len(paths) == 0 {
		return errors.New("no input devices provided")
	}

	type device struct {
		f  *os.File
		tr *pointerTranslator
	}

	devices := make(map[int]*device, len(paths))
	defer func() {
		for _, d := range devices {
			d.f.Close()
		}
	}()

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", p, err)
		}
		fd := int(f.Fd())
		devices[fd] = &device{f: f, tr: newPointerTranslator(origin)}

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", p, err)
		}
		logger.Info("input device opened", "device", p)
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, 64*inputEventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollWaitMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			d := devices[int(epollEvents[i].Fd)]
			if d == nil {
				continue
			}

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", d.f.Name())
			}

			nr, err := d.f.Read(buf)
			if err != nil {
				return fmt.Errorf("read from %s: %w", d.f.Name(), err)
			}

			for _, ev := range decodeInputEvents(buf[:nr]) {
				for _, raw := range d.tr.feed(ev) {
					select {
					case events <- lock.PointerEvent{Raw: raw}:
					case <-ctx.Done():
						return nil
					}
				}
			}
		}
	}
}

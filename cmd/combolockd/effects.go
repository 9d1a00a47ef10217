package main

import (
	"log/slog"
	"sync"
	"time"

	"combolock/internal/lock"
)

// effects executes reducer-emitted Commands.
//
// Rules:
//   - It may perform I/O and own timers.
//   - It never calls lock.Reduce; results go back to the daemon loop as
//     Events via post.
type effects struct {
	post   func(lock.Event)
	logger *slog.Logger

	mu     sync.Mutex
	settle *time.Timer
}

func newEffects(post func(lock.Event), logger *slog.Logger) *effects {
	return &effects{post: post, logger: logger}
}

// run executes one command.
func (fx *effects) run(cmd lock.Command) error {
	switch c := cmd.(type) {
	case lock.CmdArmSettleTimer:
		if fx.post == nil {
			return errNoPoster{}
		}
		gen := c.Generation
		fx.mu.Lock()
		if fx.settle != nil {
			fx.settle.Stop()
		}
		fx.settle = time.AfterFunc(c.After, func() {
			fx.post(lock.SettleElapsed{Generation: gen})
		})
		fx.mu.Unlock()
		return nil

	case lock.CmdCancelSettleTimer:
		fx.stop()
		return nil

	case lock.CmdPublishStateSnapshot:
		if c.Reply == nil {
			fx.logger.Warn("state snapshot requested with nil reply channel")
			return nil
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			fx.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}
		return nil

	default:
		return errUnknownCommand{cmd: cmd}
	}
}

// stop cancels a pending settle timer, if any.
func (fx *effects) stop() {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.settle != nil {
		fx.settle.Stop()
		fx.settle = nil
	}
}

// errNoPoster indicates a timer was requested without a way to report back.
type errNoPoster struct{}

func (errNoPoster) Error() string { return "no event poster configured" }

type errUnknownCommand struct {
	cmd lock.Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

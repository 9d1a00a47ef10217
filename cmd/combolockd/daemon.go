package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"combolock/internal/lock"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven
// ============================================================================
//
// Rules enforced here:
//   - lock.Reduce performs no I/O and computes: signals + commands.
//   - The daemon loop is the only goroutine that touches *lock.State.
//   - Commands are executed by the effects stage; timer results come back
//     as Events on the same channel as every other input.
//   - Signals are published in the order the reducer produced them.
//
// ============================================================================

// newLockIdentity draws a fresh lock id and combination.
func newLockIdentity(tickCount int) (string, lock.Combination, error) {
	combo, err := lock.NewCombination(nil, tickCount)
	if err != nil {
		return "", lock.Combination{}, err
	}
	return uuid.NewString(), combo, nil
}

// newLockState builds the lock for cfg. A pinned combination is used when
// configured; otherwise one is drawn at random.
func newLockState(cfg Config, now time.Time) (*lock.State, []lock.Signal, error) {
	lockCfg := cfg.ToLockConfig()

	id, combo, err := newLockIdentity(lockCfg.TickCount)
	if err != nil {
		return nil, nil, fmt.Errorf("generate combination: %w", err)
	}
	if len(cfg.Lock.Combination) != 0 {
		if combo, err = cfg.fixedCombination(); err != nil {
			return nil, nil, err
		}
	}

	st, signals, err := lock.NewState(lockCfg, id, combo, now)
	if err != nil {
		return nil, nil, fmt.Errorf("create lock: %w", err)
	}
	return st, signals, nil
}

// runDaemon is the main daemon loop that:
//   - Publishes the lock's initial signals
//   - Receives Events from every input source
//   - Reduces events into (signals, commands)
//   - Publishes signals and executes commands
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan lock.Event,
	state *lock.State,
	initial []lock.Signal,
	fx *effects,
	signals *lock.Feed[lock.Signal],
	logger *slog.Logger,
) error {
	if state == nil {
		return fmt.Errorf("daemon: lock state is nil")
	}
	defer fx.stop()

	for _, s := range initial {
		signals.Publish(s)
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []lock.Event
	var cmdQueue []lock.Command

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := lock.Reduce(state, ev)
			if rr.State != nil {
				state = rr.State
			}
			for _, s := range rr.Signals {
				signals.Publish(s)
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			if err := fx.run(cmd); err != nil {
				logger.Warn("command failed", "command", cmd.String(), "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return nil

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return nil
			}
			ev = completeEvent(ev, state, logger)
			eventQueue = append(eventQueue, lock.TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()
		}
	}
}

// completeEvent fills in what producers leave to the daemon. A Regenerate
// without a lock id or combination gets fresh ones.
func completeEvent(ev lock.Event, state *lock.State, logger *slog.Logger) lock.Event {
	r, ok := ev.(lock.Regenerate)
	if !ok {
		return ev
	}
	if r.LockID != "" && r.Combination != (lock.Combination{}) {
		return r
	}

	id, combo, err := newLockIdentity(state.Config().TickCount)
	if err != nil {
		logger.Error("regenerate failed", "error", err)
		return r
	}
	if r.LockID == "" {
		r.LockID = id
	}
	if r.Combination == (lock.Combination{}) {
		r.Combination = combo
	}
	return r
}

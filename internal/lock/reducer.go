package lock

import "time"

// This file implements the reducer that drives the whole gesture pipeline:
//
//	RawEvent -> Normalize -> RotationTracker -> TickDecoder -> (per Number)
//	  DirectionDetector -> ResetDetector -> UnlockDetector
//
// Reduce performs no I/O. Timers and snapshot delivery are requested as
// Commands; the owning loop executes them and feeds results back as Events.

// ReduceResult is the output of Reduce: next state, observer signals and
// side effects to execute.
type ReduceResult struct {
	State    *State
	Signals  []Signal
	Commands []Command
}

// Reduce applies one event to s.
//
// Every decoded Number is computed once and handed to the direction, reset
// and unlock stages in order, so all of them observe the same sequence.
func Reduce(s *State, e Event) ReduceResult {
	rr := ReduceResult{State: s}
	if s == nil {
		return rr
	}

	var at time.Time
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		at = te.At
	}

	switch ev := e.(type) {
	case PointerEvent:
		g, ok := Normalize(ev.Raw)
		if !ok {
			break
		}
		switch g.Phase {
		case DragStart:
			s.tracker.Start()
		case DragEnd:
			s.tracker.End()
		case DragMove:
			deg, tick, changed := s.tracker.Move(g.At)
			if !changed {
				break
			}
			rr.Signals = append(rr.Signals, RotationChanged{Degrees: deg, At: at})
			for _, n := range s.decoder.Decode(tick) {
				s.observeNumber(n, at, &rr)
			}
		}

	case SetOrigin:
		s.Origin = ev.Origin

	case SettleElapsed:
		s.applyUnlock(s.unlock.Settle(ev.Generation), at, &rr)

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(),
		})

	case Regenerate:
		if ev.Combination.Validate(s.cfg.TickCount) != nil {
			break
		}
		old := s.unlock
		s.LockID = ev.LockID
		s.unlock = NewUnlockDetector(ev.Combination, s.cfg.Relock)
		// Keep generations increasing so a late fire from the old
		// detector cannot match the new one.
		s.unlock.generation = old.generation
		s.reset = ResetDetector{}

		rr.Signals = append(rr.Signals,
			CombinationChanged{LockID: ev.LockID, Combination: ev.Combination, At: at},
			ResetPulsed{At: at},
		)
		if old.Stage() == StageAwaitingThird {
			rr.Commands = append(rr.Commands, CmdCancelSettleTimer{})
		}
		if old.Unlocked() {
			rr.Signals = append(rr.Signals, UnlockedChanged{Unlocked: false, At: at})
		}
		s.unlock.Restart()

	default:
		// Unknown event type: no-op.
	}

	rr.Commands = coalesceSettleCommands(rr.Commands)
	return rr
}

func (s *State) observeNumber(n int, at time.Time, rr *ReduceResult) {
	prev := s.prevNumber
	s.prevNumber = n
	s.number = n

	rr.Signals = append(rr.Signals, NumberChanged{Number: n, At: at})

	dir, dirChanged := s.direction.Observe(n)
	if dirChanged {
		rr.Signals = append(rr.Signals, DirectionChanged{Direction: dir, At: at})
	}

	if s.reset.Observe(n, dir, dirChanged) {
		rr.Signals = append(rr.Signals, ResetPulsed{At: at})
		s.applyUnlock(s.unlock.Restart(), at, rr)
		return
	}

	s.applyUnlock(s.unlock.Observe(n, prev, dir, dirChanged), at, rr)
}

func (s *State) applyUnlock(out UnlockOutput, at time.Time, rr *ReduceResult) {
	if out.Cancel {
		rr.Commands = append(rr.Commands, CmdCancelSettleTimer{})
	}
	if out.Changed {
		rr.Signals = append(rr.Signals, UnlockedChanged{Unlocked: out.Unlocked, At: at})
	}
	if out.Arm {
		rr.Commands = append(rr.Commands, CmdArmSettleTimer{Generation: out.Generation, After: s.cfg.Settle})
	}
}

// coalesceSettleCommands keeps only the last settle timer command of a
// reduction (latest wins); other commands keep their order.
func coalesceSettleCommands(cmds []Command) []Command {
	last := -1
	count := 0
	for i, c := range cmds {
		switch c.(type) {
		case CmdArmSettleTimer, CmdCancelSettleTimer:
			last = i
			count++
		}
	}
	if count <= 1 {
		return cmds
	}

	out := cmds[:0:0]
	for i, c := range cmds {
		switch c.(type) {
		case CmdArmSettleTimer, CmdCancelSettleTimer:
			if i != last {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

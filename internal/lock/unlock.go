package lock

import "fmt"

// Stage is the unlock detector's position in the combination sequence.
type Stage int

const (
	// StageIdle waits for a reset pulse (after a re-lock on motion).
	StageIdle Stage = iota
	// StageAwaitingFirst waits for a counterclockwise turn right after
	// combination[0].
	StageAwaitingFirst
	// StageConfirmFirst waits for the dial to come back to combination[0].
	StageConfirmFirst
	// StageAwaitingSecond waits for a clockwise turn right after
	// combination[1].
	StageAwaitingSecond
	// StageAwaitingThird waits for the dial to settle on combination[2].
	StageAwaitingThird
	StageUnlocked
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAwaitingFirst:
		return "awaiting_first"
	case StageConfirmFirst:
		return "confirm_first"
	case StageAwaitingSecond:
		return "awaiting_second"
	case StageAwaitingThird:
		return "awaiting_third"
	case StageUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// RelockPolicy selects what re-locks an open lock.
type RelockPolicy string

const (
	// RelockOnMotion re-locks on the first Number change after unlocking and
	// then waits for a reset before accepting a new attempt.
	RelockOnMotion RelockPolicy = "motion"
	// RelockOnReset keeps the lock open until the next reset pulse.
	RelockOnReset RelockPolicy = "reset"
)

// UnlockOutput is what the detector asks of its owner after one input.
type UnlockOutput struct {
	// Changed is set when the unlocked signal flipped; Unlocked holds the
	// new value.
	Changed  bool
	Unlocked bool

	// Arm requests the settle timer to be (re)started for Generation.
	Arm        bool
	Generation uint64

	// Cancel requests any pending settle timer to be stopped.
	Cancel bool
}

// UnlockDetector tracks progress through the combination sequence.
//
// Deviations never fail an attempt; they only keep the detector waiting at
// its current stage.
type UnlockDetector struct {
	combo  Combination
	policy RelockPolicy

	stage    Stage
	unlocked bool

	// Settle bookkeeping for StageAwaitingThird. Every Number bumps
	// generation; only the latest generation may unlock. armed is false
	// until a Number after the transition has been seen.
	generation uint64
	candidate  int
	armed      bool
}

func NewUnlockDetector(combo Combination, policy RelockPolicy) *UnlockDetector {
	if policy == "" {
		policy = RelockOnMotion
	}
	return &UnlockDetector{combo: combo, policy: policy, stage: StageIdle}
}

func (u *UnlockDetector) Stage() Stage { return u.stage }

func (u *UnlockDetector) Unlocked() bool { return u.unlocked }

func (u *UnlockDetector) Generation() uint64 { return u.generation }

func (u *UnlockDetector) Combination() Combination { return u.combo }

// Restart begins a new attempt. It is driven by reset pulses.
func (u *UnlockDetector) Restart() UnlockOutput {
	var out UnlockOutput
	if u.stage == StageAwaitingThird && u.armed {
		out.Cancel = true
	}
	if u.unlocked {
		u.unlocked = false
		out.Changed = true
		out.Unlocked = false
	}
	u.generation++
	u.armed = false
	u.stage = StageAwaitingFirst
	return out
}

// Observe feeds Number n. prev is the Number observed immediately before n;
// dir/dirChanged is the direction detector's output for n.
func (u *UnlockDetector) Observe(n, prev int, dir Direction, dirChanged bool) UnlockOutput {
	switch u.stage {
	case StageAwaitingFirst:
		if dirChanged && dir == Counterclockwise && prev == u.combo[0] {
			u.stage = StageConfirmFirst
		}

	case StageConfirmFirst:
		if n == u.combo[0] {
			u.stage = StageAwaitingSecond
		}

	case StageAwaitingSecond:
		// The transition Number itself is not a settle candidate; only
		// Numbers reached after it are.
		if dirChanged && dir == Clockwise && prev == u.combo[1] {
			u.stage = StageAwaitingThird
			u.generation++
		}

	case StageAwaitingThird:
		return u.arm(n)

	case StageUnlocked:
		if u.policy == RelockOnMotion {
			u.unlocked = false
			u.stage = StageIdle
			return UnlockOutput{Changed: true, Unlocked: false}
		}
	}
	return UnlockOutput{}
}

func (u *UnlockDetector) arm(n int) UnlockOutput {
	u.armed = true
	u.candidate = n
	u.generation++
	return UnlockOutput{Arm: true, Generation: u.generation}
}

// Settle reports that the settle period for generation elapsed without a
// further Number change. Stale generations are ignored.
func (u *UnlockDetector) Settle(generation uint64) UnlockOutput {
	if u.stage != StageAwaitingThird || !u.armed || generation != u.generation {
		return UnlockOutput{}
	}
	if u.candidate != u.combo[2] {
		return UnlockOutput{}
	}
	u.stage = StageUnlocked
	u.armed = false
	u.unlocked = true
	return UnlockOutput{Changed: true, Unlocked: true}
}

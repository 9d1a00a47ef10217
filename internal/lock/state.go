package lock

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for a lock's configuration.
const (
	DefaultTickCount = 40
	DefaultSettle    = 150 * time.Millisecond
)

// Config holds a lock's fixed parameters.
type Config struct {
	TickCount int
	Settle    time.Duration
	Relock    RelockPolicy

	// Origin is the initial dial centre; SetOrigin events move it.
	Origin Coordinate
}

// DefaultConfig returns a 40-tick lock that re-locks on motion.
func DefaultConfig() Config {
	return Config{
		TickCount: DefaultTickCount,
		Settle:    DefaultSettle,
		Relock:    RelockOnMotion,
	}
}

func (c Config) Validate() error {
	if c.TickCount < 3 {
		return fmt.Errorf("tick count must be >= 3, got %d", c.TickCount)
	}
	if c.Settle <= 0 {
		return errors.New("settle duration must be > 0")
	}
	switch c.Relock {
	case RelockOnMotion, RelockOnReset:
	default:
		return fmt.Errorf("relock policy must be %q or %q", RelockOnMotion, RelockOnReset)
	}
	return nil
}

// State is the reducer-owned state of one lock. It must only be touched by
// the goroutine that calls Reduce.
type State struct {
	cfg    Config
	LockID string
	Origin Coordinate

	tracker   *RotationTracker
	decoder   *TickDecoder
	direction *DirectionDetector
	reset     ResetDetector
	unlock    *UnlockDetector

	number     int
	prevNumber int
}

// NewState creates the state for a fresh lock and returns the signals a lock
// starts with: its combination, a reset pulse and unlocked=false.
func NewState(cfg Config, lockID string, combo Combination, now time.Time) (*State, []Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := combo.Validate(cfg.TickCount); err != nil {
		return nil, nil, err
	}

	s := &State{
		cfg:       cfg,
		LockID:    lockID,
		Origin:    cfg.Origin,
		decoder:   NewTickDecoder(cfg.TickCount),
		direction: NewDirectionDetector(cfg.TickCount),
		unlock:    NewUnlockDetector(combo, cfg.Relock),
	}
	tracker, err := NewRotationTracker(func() Coordinate { return s.Origin }, cfg.TickCount)
	if err != nil {
		return nil, nil, err
	}
	s.tracker = tracker
	s.unlock.Restart()

	signals := []Signal{
		CombinationChanged{LockID: lockID, Combination: combo, At: now},
		ResetPulsed{At: now},
		UnlockedChanged{Unlocked: false, At: now},
	}
	return s, signals, nil
}

func (s *State) Config() Config { return s.cfg }

func (s *State) Combination() Combination { return s.unlock.Combination() }

func (s *State) Unlocked() bool { return s.unlock.Unlocked() }

func (s *State) Stage() Stage { return s.unlock.Stage() }

func (s *State) Number() int { return s.number }

func (s *State) Rotation() float64 { return s.tracker.Degrees() }

func (s *State) Direction() Direction { return s.direction.Current() }

// StateSnapshot is a copy of the externally interesting parts of State,
// safe to hand to other goroutines.
type StateSnapshot struct {
	LockID      string      `json:"lock_id"`
	TickCount   int         `json:"tick_count"`
	Combination Combination `json:"combination"`
	Rotation    float64     `json:"rotation"`
	Number      int         `json:"number"`
	Direction   string      `json:"direction"`
	Stage       string      `json:"stage"`
	Unlocked    bool        `json:"unlocked"`
	Dragging    bool        `json:"dragging"`
	ResetPasses int         `json:"reset_passes"`
	Origin      Coordinate  `json:"origin"`
}

func (s *State) Snapshot() StateSnapshot {
	return StateSnapshot{
		LockID:      s.LockID,
		TickCount:   s.cfg.TickCount,
		Combination: s.unlock.Combination(),
		Rotation:    s.tracker.Degrees(),
		Number:      s.number,
		Direction:   s.direction.Current().String(),
		Stage:       s.unlock.Stage().String(),
		Unlocked:    s.unlock.Unlocked(),
		Dragging:    s.tracker.Dragging(),
		ResetPasses: s.reset.Passes(),
		Origin:      s.Origin,
	}
}

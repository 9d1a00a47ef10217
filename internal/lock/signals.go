package lock

import "time"

// Signal is an output of the reducer meant for renderers and other
// observers. Signals are emitted in the order the pipeline derived them.
type Signal interface {
	signalMarker()
}

// RotationChanged carries the new quantized dial rotation in degrees.
type RotationChanged struct {
	Degrees float64
	At      time.Time
}

func (RotationChanged) signalMarker() {}

// NumberChanged is emitted for every Number the dial passes.
type NumberChanged struct {
	Number int
	At     time.Time
}

func (NumberChanged) signalMarker() {}

// DirectionChanged is emitted when the rotation direction flips.
type DirectionChanged struct {
	Direction Direction
	At        time.Time
}

func (DirectionChanged) signalMarker() {}

// ResetPulsed is emitted when the lock enters a fresh attempt.
type ResetPulsed struct {
	At time.Time
}

func (ResetPulsed) signalMarker() {}

// UnlockedChanged is emitted when the lock opens or closes.
type UnlockedChanged struct {
	Unlocked bool
	At       time.Time
}

func (UnlockedChanged) signalMarker() {}

// CombinationChanged announces the combination of a (new) lock lifetime.
type CombinationChanged struct {
	LockID      string
	Combination Combination
	At          time.Time
}

func (CombinationChanged) signalMarker() {}

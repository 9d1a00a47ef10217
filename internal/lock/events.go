package lock

import "time"

// ============================================================================
// Events - inputs to Reduce
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent stamps an event with its arrival time. The owning loop wraps
// events on receipt so payload types stay free of timestamps.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// PointerEvent carries one raw pointer or touch event.
type PointerEvent struct {
	Raw RawEvent
}

func (PointerEvent) eventMarker() {}

// SetOrigin moves the dial centre, e.g. after a layout change.
type SetOrigin struct {
	Origin Coordinate
}

func (SetOrigin) eventMarker() {}

// SettleElapsed reports that the settle timer armed for Generation fired.
type SettleElapsed struct {
	Generation uint64
}

func (SettleElapsed) eventMarker() {}

// RequestStateSnapshot asks the reducer for a StateSnapshot. The reply is
// delivered by the effects stage via CmdPublishStateSnapshot.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// Regenerate replaces the lock's combination and identity and starts over
// as if freshly created. Combination must be valid for the lock's tick
// count; invalid requests are ignored.
type Regenerate struct {
	LockID      string
	Combination Combination
}

func (Regenerate) eventMarker() {}

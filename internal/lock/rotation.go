package lock

import (
	"errors"
	"math"
)

// RotationTracker accumulates drag motion into the dial's rotation.
//
// Moves are consumed pairwise (previous, next) between Start and End. The
// swept angle of each pair, measured around the origin, is added to a
// running rotation that wraps at ±360°. The running rotation is quantized by
// rounding up to the tick grid and reported only when the quantized value
// changes.
//
// Not safe for concurrent use; it is owned by the reducer goroutine.
type RotationTracker struct {
	origin         func() Coordinate
	tickCount      int
	degreesPerTick float64

	dragging bool
	prev     Coordinate
	hasPrev  bool

	raw      float64 // running rotation in degrees, (-360, 360)
	tick     int     // last reported quantized rotation, in ticks
	reported bool
}

// NewRotationTracker returns a tracker for a dial with tickCount positions
// whose centre is returned by origin. origin is called on every move so it
// can follow layout changes.
func NewRotationTracker(origin func() Coordinate, tickCount int) (*RotationTracker, error) {
	if origin == nil {
		return nil, errors.New("rotation tracker: origin accessor is nil")
	}
	if tickCount <= 0 {
		return nil, errors.New("rotation tracker: tick count must be > 0")
	}
	return &RotationTracker{
		origin:         origin,
		tickCount:      tickCount,
		degreesPerTick: 360 / float64(tickCount),
	}, nil
}

// Start begins a new drag. Any drag in flight is abandoned: the next move
// only seeds the pair and contributes no rotation.
func (r *RotationTracker) Start() {
	r.dragging = true
	r.hasPrev = false
}

// End terminates the current drag. Later moves are ignored until Start.
func (r *RotationTracker) End() {
	r.dragging = false
	r.hasPrev = false
}

// Dragging reports whether a drag is in progress.
func (r *RotationTracker) Dragging() bool { return r.dragging }

// Move feeds one pointer position. It returns the quantized rotation in
// degrees and in ticks, and whether that value differs from the previously
// reported one.
func (r *RotationTracker) Move(c Coordinate) (degrees float64, tick int, changed bool) {
	if !r.dragging {
		return r.Degrees(), r.tick, false
	}
	if !r.hasPrev {
		r.prev = c
		r.hasPrev = true
		return r.Degrees(), r.tick, false
	}

	swept := sweptAngle(r.origin(), r.prev, c)
	r.prev = c

	r.raw = wrapRotation(r.raw + swept)

	q := int(math.Ceil(r.raw / r.degreesPerTick))
	if r.reported && q == r.tick {
		return r.Degrees(), r.tick, false
	}
	r.tick = q
	r.reported = true
	return r.Degrees(), r.tick, true
}

// Degrees returns the last reported quantized rotation.
func (r *RotationTracker) Degrees() float64 {
	return float64(r.tick) * r.degreesPerTick
}

// Tick returns the last reported quantized rotation in ticks.
func (r *RotationTracker) Tick() int { return r.tick }

// Raw returns the unquantized running rotation.
func (r *RotationTracker) Raw() float64 { return r.raw }

// sweptAngle is the signed angle in degrees from (origin->from) to
// (origin->to), computed as the difference of the two atan2 angles. The
// result is not normalized to (-180, 180].
func sweptAngle(origin, from, to Coordinate) float64 {
	a := math.Atan2(from.Y-origin.Y, from.X-origin.X)
	b := math.Atan2(to.Y-origin.Y, to.X-origin.X)
	return (b - a) * 180 / math.Pi
}

func wrapRotation(deg float64) float64 {
	if deg >= 360 {
		return deg - 360
	}
	if deg <= -360 {
		return deg + 360
	}
	return deg
}

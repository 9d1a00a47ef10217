package lock

// Direction is the dial's rotation direction as seen through its Numbers.
type Direction int

const (
	DirectionNone Direction = iota
	Clockwise
	Counterclockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "clockwise"
	case Counterclockwise:
		return "counterclockwise"
	default:
		return "none"
	}
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) Direction {
	switch s {
	case "clockwise":
		return Clockwise
	case "counterclockwise":
		return Counterclockwise
	default:
		return DirectionNone
	}
}

// DirectionDetector infers rotation direction from consecutive Numbers and
// reports only changes.
type DirectionDetector struct {
	tickCount int

	prev    int
	hasPrev bool

	current Direction
}

func NewDirectionDetector(tickCount int) *DirectionDetector {
	return &DirectionDetector{tickCount: tickCount}
}

// Observe feeds the next Number. It returns the new direction and true when
// the direction changed; equal consecutive Numbers never produce a
// direction.
func (d *DirectionDetector) Observe(n int) (Direction, bool) {
	if !d.hasPrev {
		d.prev = n
		d.hasPrev = true
		return d.current, false
	}
	prev := d.prev
	d.prev = n
	if prev == n {
		return d.current, false
	}

	dir := classify(prev, n, d.tickCount)
	if dir == d.current {
		return d.current, false
	}
	d.current = dir
	return dir, true
}

// Current returns the last reported direction (DirectionNone before any).
func (d *DirectionDetector) Current() Direction { return d.current }

func classify(prev, next, tickCount int) Direction {
	switch {
	case prev == tickCount-1 && next == 0:
		return Counterclockwise
	case prev == 0 && next == tickCount-1:
		return Clockwise
	case next < prev:
		return Clockwise
	default:
		return Counterclockwise
	}
}

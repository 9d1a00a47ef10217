package lock

// Coordinate is a point in screen space (y grows downwards).
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawKind identifies the kind of a raw input event.
type RawKind int

const (
	PointerDown RawKind = iota + 1
	PointerMove
	PointerUp
	TouchStart
	TouchMove
	TouchEnd
)

func (k RawKind) String() string {
	switch k {
	case PointerDown:
		return "pointer_down"
	case PointerMove:
		return "pointer_move"
	case PointerUp:
		return "pointer_up"
	case TouchStart:
		return "touch_start"
	case TouchMove:
		return "touch_move"
	case TouchEnd:
		return "touch_end"
	default:
		return "unknown"
	}
}

// DefaultPreventer is implemented by input sources that have a platform
// default action (text selection, scrolling, context menu) for an event.
type DefaultPreventer interface {
	PreventDefault()
}

// RawEvent is a pointer or touch event as delivered by an input source.
//
// Pointer events carry their position in X/Y. Touch events carry it in
// ChangedTouches; only the first changed touch is used.
type RawEvent struct {
	Kind           RawKind
	X, Y           float64
	ChangedTouches []Coordinate

	// Preventer is optional.
	Preventer DefaultPreventer
}

// Phase is the drag phase a raw event maps to.
type Phase int

const (
	DragStart Phase = iota + 1
	DragMove
	DragEnd
)

// Gesture is a normalized drag step.
type Gesture struct {
	Phase Phase
	At    Coordinate
}

// Normalize suppresses the event's default action and maps it to a Gesture.
// It reports false for events that carry no usable position (unknown kinds,
// touch events with no changed touches); such events are inert.
func Normalize(ev RawEvent) (Gesture, bool) {
	if ev.Preventer != nil {
		ev.Preventer.PreventDefault()
	}

	switch ev.Kind {
	case PointerDown:
		return Gesture{Phase: DragStart, At: Coordinate{X: ev.X, Y: ev.Y}}, true
	case PointerMove:
		return Gesture{Phase: DragMove, At: Coordinate{X: ev.X, Y: ev.Y}}, true
	case PointerUp:
		return Gesture{Phase: DragEnd, At: Coordinate{X: ev.X, Y: ev.Y}}, true
	case TouchStart, TouchMove, TouchEnd:
		if len(ev.ChangedTouches) == 0 {
			return Gesture{}, false
		}
		return Gesture{Phase: touchPhase(ev.Kind), At: ev.ChangedTouches[0]}, true
	default:
		return Gesture{}, false
	}
}

func touchPhase(k RawKind) Phase {
	switch k {
	case TouchStart:
		return DragStart
	case TouchMove:
		return DragMove
	default:
		return DragEnd
	}
}

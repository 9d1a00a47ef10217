package main

import (
	"bytes"
	"encoding/binary"

	"combolock/internal/lock"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvents parses whole input_event records from buf. A trailing
// partial record is ignored.
func decodeInputEvents(buf []byte) []inputEvent {
	n := len(buf) / inputEventSize
	out := make([]inputEvent, 0, n)
	reader := bytes.NewReader(nil)
	for i := 0; i < n; i++ {
		reader.Reset(buf[i*inputEventSize : (i+1)*inputEventSize])
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}
		out = append(out, ev)
	}
	return out
}

// pointerTranslator turns one device's evdev stream into lock.RawEvents.
//
// Relative devices (mice) move a virtual cursor with REL_X/REL_Y and drag
// while BTN_LEFT is held; they produce pointer events. Absolute devices
// (touch panels) report ABS_X/ABS_Y or ABS_MT_POSITION_X/Y and drag while
// BTN_TOUCH is held; they produce touch events. Changes are committed on
// SYN_REPORT so a frame yields at most one event per phase.
type pointerTranslator struct {
	x, y  float64
	moved bool

	down  bool  // button state as of the last committed frame
	press *bool // button transition seen in the current frame
	touch bool  // the device drags with BTN_TOUCH
}

func newPointerTranslator(origin lock.Coordinate) *pointerTranslator {
	// Relative cursors start at the dial centre.
	return &pointerTranslator{x: origin.X, y: origin.Y}
}

// feed consumes one input event and returns the raw events completed by it.
func (t *pointerTranslator) feed(ev inputEvent) []lock.RawEvent {
	switch ev.Type {
	case EV_REL:
		switch ev.Code {
		case REL_X:
			t.x += float64(ev.Value)
			t.moved = true
		case REL_Y:
			t.y += float64(ev.Value)
			t.moved = true
		}

	case EV_ABS:
		switch ev.Code {
		case ABS_X, ABS_MT_POSITION_X:
			t.x = float64(ev.Value)
			t.moved = true
		case ABS_Y, ABS_MT_POSITION_Y:
			t.y = float64(ev.Value)
			t.moved = true
		}

	case EV_KEY:
		if ev.Code != BTN_LEFT && ev.Code != BTN_TOUCH {
			return nil
		}
		if ev.Value == evValueRepeat {
			return nil
		}
		t.touch = ev.Code == BTN_TOUCH
		pressed := ev.Value == evValuePress
		t.press = &pressed

	case EV_SYN:
		if ev.Code == SYN_REPORT {
			return t.commit()
		}
	}
	return nil
}

func (t *pointerTranslator) commit() []lock.RawEvent {
	var out []lock.RawEvent

	pressed := t.press != nil && *t.press
	released := t.press != nil && !*t.press

	switch {
	case pressed && !t.down:
		t.down = true
		out = append(out, t.event(lock.PointerDown, lock.TouchStart))
	case t.moved && t.down:
		out = append(out, t.event(lock.PointerMove, lock.TouchMove))
	}

	if released && t.down {
		t.down = false
		out = append(out, t.event(lock.PointerUp, lock.TouchEnd))
	}

	t.moved = false
	t.press = nil
	return out
}

func (t *pointerTranslator) event(pointer, touch lock.RawKind) lock.RawEvent {
	if t.touch {
		return lock.RawEvent{
			Kind:           touch,
			ChangedTouches: []lock.Coordinate{{X: t.x, Y: t.y}},
		}
	}
	return lock.RawEvent{Kind: pointer, X: t.x, Y: t.y}
}

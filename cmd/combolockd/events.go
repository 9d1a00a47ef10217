package main

import (
	"encoding/json"
	"fmt"

	"combolock/internal/lock"
)

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps input events for the IPC socket, the HTTP API and
// WebSocket clients. Since Go doesn't have union types, we use a type
// discriminator.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// pointerData is the payload of pointer_* and touch_* envelopes. Touch
// envelopes may carry a single position in x/y instead of changed_touches.
type pointerData struct {
	X              *float64          `json:"x,omitempty"`
	Y              *float64          `json:"y,omitempty"`
	ChangedTouches []lock.Coordinate `json:"changed_touches,omitempty"`
}

// regenerateData is the payload of "regenerate". Missing fields are filled
// in by the daemon.
type regenerateData struct {
	LockID      string `json:"lock_id,omitempty"`
	Combination []int  `json:"combination,omitempty"`
}

var rawKindByType = map[string]lock.RawKind{
	"pointer_down": lock.PointerDown,
	"pointer_move": lock.PointerMove,
	"pointer_up":   lock.PointerUp,
	"touch_start":  lock.TouchStart,
	"touch_move":   lock.TouchMove,
	"touch_end":    lock.TouchEnd,
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (lock.Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	if kind, ok := rawKindByType[env.Type]; ok {
		var p pointerData
		if err := decodeData(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return lock.PointerEvent{Raw: p.rawEvent(kind)}, nil
	}

	switch env.Type {
	case "set_origin":
		var c lock.Coordinate
		if err := decodeData(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetOrigin: %w", err)
		}
		return lock.SetOrigin{Origin: c}, nil

	case "regenerate":
		var r regenerateData
		if err := decodeData(env.Data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal Regenerate: %w", err)
		}
		ev := lock.Regenerate{LockID: r.LockID}
		if len(r.Combination) != 0 {
			if len(r.Combination) != len(ev.Combination) {
				return nil, fmt.Errorf("unmarshal Regenerate: combination must have %d numbers", len(ev.Combination))
			}
			copy(ev.Combination[:], r.Combination)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (p pointerData) rawEvent(kind lock.RawKind) lock.RawEvent {
	ev := lock.RawEvent{Kind: kind}
	switch kind {
	case lock.TouchStart, lock.TouchMove, lock.TouchEnd:
		ev.ChangedTouches = p.ChangedTouches
		if len(ev.ChangedTouches) == 0 && p.X != nil && p.Y != nil {
			ev.ChangedTouches = []lock.Coordinate{{X: *p.X, Y: *p.Y}}
		}
	default:
		if p.X != nil {
			ev.X = *p.X
		}
		if p.Y != nil {
			ev.Y = *p.Y
		}
	}
	return ev
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e lock.Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case lock.PointerEvent:
		env.Type = e.Raw.Kind.String()
		if _, ok := rawKindByType[env.Type]; !ok {
			return nil, fmt.Errorf("unsupported raw event kind: %v", e.Raw.Kind)
		}
		var p pointerData
		switch e.Raw.Kind {
		case lock.TouchStart, lock.TouchMove, lock.TouchEnd:
			p.ChangedTouches = e.Raw.ChangedTouches
		default:
			x, y := e.Raw.X, e.Raw.Y
			p.X, p.Y = &x, &y
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
		}
		env.Data = data

	case lock.SetOrigin:
		env.Type = "set_origin"
		data, err := json.Marshal(e.Origin)
		if err != nil {
			return nil, fmt.Errorf("marshal SetOrigin: %w", err)
		}
		env.Data = data

	case lock.Regenerate:
		env.Type = "regenerate"
		r := regenerateData{LockID: e.LockID}
		if e.Combination != (lock.Combination{}) {
			r.Combination = e.Combination[:]
		}
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal Regenerate: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}

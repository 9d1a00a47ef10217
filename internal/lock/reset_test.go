package lock

import "testing"

// resetRig runs Numbers through direction and reset detection the same way
// the reducer does and counts pulses.
type resetRig struct {
	dir    *DirectionDetector
	reset  ResetDetector
	n      int
	pulses []int // index of the Number that fired
	seen   int
}

func newResetRig(start int) *resetRig {
	r := &resetRig{dir: NewDirectionDetector(40), n: start}
	r.feed(start)
	return r
}

func (r *resetRig) feed(n int) {
	d, changed := r.dir.Observe(n)
	if r.reset.Observe(n, d, changed) {
		r.pulses = append(r.pulses, r.seen)
	}
	r.n = n
	r.seen++
}

// cw moves the Number down by steps, one Number at a time.
func (r *resetRig) cw(steps int) {
	for i := 0; i < steps; i++ {
		r.feed((r.n + 39) % 40)
	}
}

// ccw moves the Number up by steps.
func (r *resetRig) ccw(steps int) {
	for i := 0; i < steps; i++ {
		r.feed((r.n + 1) % 40)
	}
}

func TestResetDetector_ThreeClockwisePassesFireOnce(t *testing.T) {
	r := newResetRig(5)

	// 5 -> 0 is the first pass (4 is the direction change and is not counted).
	r.cw(5)
	if len(r.pulses) != 0 || r.reset.Passes() != 1 {
		t.Fatalf("after first pass: pulses=%v passes=%d", r.pulses, r.reset.Passes())
	}
	r.cw(40)
	if len(r.pulses) != 0 || r.reset.Passes() != 2 {
		t.Fatalf("after second pass: pulses=%v passes=%d", r.pulses, r.reset.Passes())
	}
	r.cw(40)
	if len(r.pulses) != 1 {
		t.Fatalf("expected a pulse on the third pass, got %v", r.pulses)
	}
	if r.n != 0 {
		t.Fatalf("expected the pulse on Number 0, dial at %d", r.n)
	}

	// Counting stops until the next clockwise run.
	r.cw(120)
	if len(r.pulses) != 1 {
		t.Fatalf("expected no further pulses in the same run, got %v", r.pulses)
	}

	// A short counterclockwise wiggle starts a fresh run.
	r.ccw(1)
	r.cw(1)
	r.cw(120)
	if len(r.pulses) != 2 {
		t.Fatalf("expected a second pulse in a new run, got %v", r.pulses)
	}
}

func TestResetDetector_CounterclockwiseNeverResets(t *testing.T) {
	r := newResetRig(5)
	r.ccw(400)
	if len(r.pulses) != 0 {
		t.Fatalf("counterclockwise rotation must not reset, got %v", r.pulses)
	}
}

func TestResetDetector_DirectionChangeNumberNotCounted(t *testing.T) {
	r := newResetRig(0)
	r.ccw(1) // 1, counterclockwise
	r.cw(1)  // back to 0: the change itself, not a pass

	if r.reset.Passes() != 0 {
		t.Fatalf("expected the direction-change Number to be skipped, got %d passes", r.reset.Passes())
	}
	r.cw(80)
	if len(r.pulses) != 0 {
		t.Fatalf("two counted passes must not reset, got %v", r.pulses)
	}
	r.cw(40)
	if len(r.pulses) != 1 {
		t.Fatalf("expected a pulse on the third counted pass, got %v", r.pulses)
	}
}

func TestResetDetector_CounterclockwiseBreaksRun(t *testing.T) {
	r := newResetRig(5)
	r.cw(45) // two passes
	r.ccw(1)
	r.cw(1)
	r.cw(40) // one pass in the new run
	if len(r.pulses) != 0 {
		t.Fatalf("passes from a broken run must not carry over, got %v", r.pulses)
	}
}

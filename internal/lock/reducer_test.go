package lock

import (
	"math"
	"testing"
	"time"
)

// dial drives a State through pointer events the way a user would: it grips
// the knob at the centre-right, drags around the origin and re-grips before
// the pointer crosses the far side of the circle.
type dial struct {
	t *testing.T
	s *State

	angle float64 // current pointer angle in degrees
	step  float64 // one third of a tick, so no move lands on a tick boundary

	signals  []Signal
	commands []Command
}

func newDial(t *testing.T, combo Combination, policy RelockPolicy) *dial {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Relock = policy
	s, _, err := NewState(cfg, "test-lock", combo, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	dpt := 360 / float64(cfg.TickCount)
	d := &dial{t: t, s: s, step: dpt / 3}
	d.send(PointerEvent{Raw: RawEvent{Kind: PointerDown}})
	d.moveTo(0)
	// Sit half a tick below 0 so every Number is reached mid-tick.
	d.moveTo(-dpt / 2)
	d.clear()
	return d
}

func (d *dial) send(e Event) ReduceResult {
	rr := Reduce(d.s, TimedEvent{Event: e, At: time.Unix(1, 0)})
	d.signals = append(d.signals, rr.Signals...)
	d.commands = append(d.commands, rr.Commands...)
	return rr
}

func (d *dial) moveTo(angle float64) {
	d.angle = angle
	rad := angle * math.Pi / 180
	d.send(PointerEvent{Raw: RawEvent{Kind: PointerMove, X: 100 * math.Cos(rad), Y: 100 * math.Sin(rad)}})
}

func (d *dial) regrip() {
	d.send(PointerEvent{Raw: RawEvent{Kind: PointerUp}})
	d.send(PointerEvent{Raw: RawEvent{Kind: PointerDown}})
	d.moveTo(0)
}

// turn rotates the dial by ticks positions: positive is clockwise (Numbers
// go down), negative is counterclockwise.
func (d *dial) turn(ticks int) {
	delta := d.step
	if ticks < 0 {
		delta = -delta
		ticks = -ticks
	}
	for i := 0; i < 3*ticks; i++ {
		if math.Abs(d.angle+delta) > 120 {
			d.regrip()
		}
		d.moveTo(d.angle + delta)
	}
}

func (d *dial) clear() {
	d.signals = nil
	d.commands = nil
}

func (d *dial) numbers() []int {
	var out []int
	for _, s := range d.signals {
		if n, ok := s.(NumberChanged); ok {
			out = append(out, n.Number)
		}
	}
	return out
}

func (d *dial) unlockedChanges() []bool {
	var out []bool
	for _, s := range d.signals {
		if u, ok := s.(UnlockedChanged); ok {
			out = append(out, u.Unlocked)
		}
	}
	return out
}

func (d *dial) resets() int {
	count := 0
	for _, s := range d.signals {
		if _, ok := s.(ResetPulsed); ok {
			count++
		}
	}
	return count
}

// lastSettleCommand returns the last settle timer command issued.
func (d *dial) lastSettleCommand() Command {
	for i := len(d.commands) - 1; i >= 0; i-- {
		switch d.commands[i].(type) {
		case CmdArmSettleTimer, CmdCancelSettleTimer:
			return d.commands[i]
		}
	}
	return nil
}

func (d *dial) lastArm() CmdArmSettleTimer {
	d.t.Helper()
	arm, ok := d.lastSettleCommand().(CmdArmSettleTimer)
	if !ok {
		d.t.Fatalf("expected a pending settle timer, last command %v", d.lastSettleCommand())
	}
	return arm
}

// enter dials combo from the current Number and stops on combination[2]
// without letting the settle timer fire.
func (d *dial) enter(combo Combination) {
	n := d.s.cfg.TickCount
	cur := d.s.Number()

	toFirst := (cur - combo[0] + n) % n
	if toFirst == 0 {
		toFirst = n
	}
	d.turn(toFirst)
	// Reverse just past combination[0], then a full turn back to it.
	d.turn(-1)
	d.turn(-(n - 1))
	d.turn(-((combo[1] - combo[0] + n) % n))
	// Reverse just past combination[1] and come down to combination[2].
	d.turn(1)
	d.turn((combo[1] - 1 - combo[2] + n) % n)
}

// resetGesture spins clockwise through 0 three times from a fresh run.
func (d *dial) resetGesture() {
	d.turn(-1)
	d.turn(1)
	d.turn(d.s.Number() + 2*d.s.cfg.TickCount)
}

func TestNewState_InitialSignals(t *testing.T) {
	s, sigs, err := NewState(DefaultConfig(), "abc", testCombo, time.Unix(5, 0))
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if len(sigs) != 3 {
		t.Fatalf("expected 3 initial signals, got %d", len(sigs))
	}
	cc, ok := sigs[0].(CombinationChanged)
	if !ok || cc.LockID != "abc" || cc.Combination != testCombo {
		t.Fatalf("unexpected first signal %#v", sigs[0])
	}
	if _, ok := sigs[1].(ResetPulsed); !ok {
		t.Fatalf("expected ResetPulsed, got %#v", sigs[1])
	}
	if u, ok := sigs[2].(UnlockedChanged); !ok || u.Unlocked {
		t.Fatalf("expected UnlockedChanged(false), got %#v", sigs[2])
	}
	if s.Stage() != StageAwaitingFirst {
		t.Fatalf("expected awaiting_first, got %v", s.Stage())
	}
}

func TestNewState_RejectsBadInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickCount = 2
	if _, _, err := NewState(cfg, "x", Combination{1, 0, 2}, time.Now()); err == nil {
		t.Fatalf("expected error for tick count 2")
	}
	if _, _, err := NewState(DefaultConfig(), "x", Combination{0, 1, 2}, time.Now()); err == nil {
		t.Fatalf("expected error for a combination starting at 0")
	}
	cfg = DefaultConfig()
	cfg.Relock = "sometimes"
	if _, _, err := NewState(cfg, "x", testCombo, time.Now()); err == nil {
		t.Fatalf("expected error for unknown relock policy")
	}
}

func TestReduce_NumbersFollowRotation(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)

	d.turn(3)
	want := []int{39, 38, 37}
	got := d.numbers()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if d.s.Rotation() != 27 {
		t.Fatalf("expected rotation 27°, got %v", d.s.Rotation())
	}

	d.clear()
	d.turn(-5)
	want = []int{38, 39, 0, 1, 2}
	got = d.numbers()
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if d.s.Direction() != Counterclockwise {
		t.Fatalf("expected counterclockwise, got %v", d.s.Direction())
	}
}

func TestReduce_SignalOrderPerNumber(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.turn(2)
	d.clear()

	// One move crossing into the next tick: rotation first, then the Number,
	// then the direction it implies.
	d.turn(-1)
	var kinds []string
	for _, s := range d.signals {
		switch s.(type) {
		case RotationChanged:
			kinds = append(kinds, "rotation")
		case NumberChanged:
			kinds = append(kinds, "number")
		case DirectionChanged:
			kinds = append(kinds, "direction")
		}
	}
	want := []string{"rotation", "number", "direction"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestReduce_UnlockScenario(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)

	d.turn(30)
	if d.s.Number() != 10 {
		t.Fatalf("expected Number 10, got %d", d.s.Number())
	}
	d.turn(-1)
	if d.s.Stage() != StageConfirmFirst {
		t.Fatalf("expected confirm_first, got %v", d.s.Stage())
	}
	d.turn(-39)
	if d.s.Stage() != StageAwaitingSecond || d.s.Number() != 10 {
		t.Fatalf("expected awaiting_second at 10, got %v at %d", d.s.Stage(), d.s.Number())
	}
	d.turn(-15)
	d.turn(1)
	if d.s.Stage() != StageAwaitingThird || d.s.Number() != 24 {
		t.Fatalf("expected awaiting_third at 24, got %v at %d", d.s.Stage(), d.s.Number())
	}
	d.turn(19)
	if d.s.Number() != 5 {
		t.Fatalf("expected Number 5, got %d", d.s.Number())
	}

	if got := d.unlockedChanges(); len(got) != 0 {
		t.Fatalf("must not unlock before settling, got %v", got)
	}
	arm := d.lastArm()
	if arm.After != DefaultSettle {
		t.Fatalf("expected settle %v, got %v", DefaultSettle, arm.After)
	}

	d.send(SettleElapsed{Generation: arm.Generation})
	if got := d.unlockedChanges(); len(got) != 1 || !got[0] {
		t.Fatalf("expected exactly one unlock, got %v", got)
	}
	if !d.s.Unlocked() || d.s.Stage() != StageUnlocked {
		t.Fatalf("expected unlocked state, got stage %v", d.s.Stage())
	}
}

func TestReduce_StopOnTransitionNumberStaysLocked(t *testing.T) {
	combo := Combination{10, 25, 24}
	d := newDial(t, combo, RelockOnMotion)

	d.turn(30)
	d.turn(-1)
	d.turn(-39)
	d.turn(-15)
	d.clear()
	d.turn(1)
	if d.s.Stage() != StageAwaitingThird || d.s.Number() != 24 {
		t.Fatalf("expected awaiting_third at 24, got %v at %d", d.s.Stage(), d.s.Number())
	}
	if c := d.lastSettleCommand(); c != nil {
		t.Fatalf("the transition Number must not arm the settle timer, got %v", c)
	}

	d.send(SettleElapsed{Generation: d.s.unlock.Generation()})
	if got := d.unlockedChanges(); len(got) != 0 {
		t.Fatalf("must not unlock on the transition Number, got %v", got)
	}

	d.turn(1)
	d.turn(-1)
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	if got := d.unlockedChanges(); len(got) != 1 || !got[0] {
		t.Fatalf("expected unlock after coming back to 24, got %v", got)
	}
}

func TestReduce_EachMoveIssuesAtMostOneSettleCommand(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.turn(30)
	d.turn(-1)
	d.turn(-39)
	d.turn(-15)
	d.turn(1)

	// A coarse jump over several Numbers in one event.
	rad := (d.angle + 5*d.step*3) * math.Pi / 180
	rr := d.send(PointerEvent{Raw: RawEvent{Kind: PointerMove, X: 100 * math.Cos(rad), Y: 100 * math.Sin(rad)}})

	count := 0
	for _, s := range rr.Signals {
		if _, ok := s.(NumberChanged); ok {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("expected 5 Numbers from one move, got %d", count)
	}
	settle := 0
	for _, c := range rr.Commands {
		switch c.(type) {
		case CmdArmSettleTimer, CmdCancelSettleTimer:
			settle++
		}
	}
	if settle != 1 {
		t.Fatalf("expected one coalesced settle command, got %v", rr.Commands)
	}
	if arm := rr.Commands[len(rr.Commands)-1].(CmdArmSettleTimer); arm.Generation != d.s.unlock.Generation() {
		t.Fatalf("expected the latest generation %d, got %d", d.s.unlock.Generation(), arm.Generation)
	}
}

func TestReduce_StaleAndWrongSettleIgnored(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.enter(testCombo)
	onTarget := d.lastArm().Generation

	d.turn(1) // overshoot to 4
	offTarget := d.lastArm().Generation

	d.send(SettleElapsed{Generation: onTarget})
	d.send(SettleElapsed{Generation: offTarget})
	if got := d.unlockedChanges(); len(got) != 0 {
		t.Fatalf("expected no unlock, got %v", got)
	}

	d.turn(-1) // back to 5
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	if got := d.unlockedChanges(); len(got) != 1 || !got[0] {
		t.Fatalf("expected unlock after settling back on 5, got %v", got)
	}
}

func TestReduce_RelockOnMotionWaitsForReset(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.enter(testCombo)
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	d.clear()

	d.turn(1)
	if got := d.unlockedChanges(); len(got) != 1 || got[0] {
		t.Fatalf("expected re-lock on the next Number, got %v", got)
	}
	if d.s.Stage() != StageIdle {
		t.Fatalf("expected idle, got %v", d.s.Stage())
	}

	d.clear()
	d.resetGesture()
	if d.resets() != 1 || d.s.Number() != 0 {
		t.Fatalf("expected one reset on Number 0, got %d resets at %d", d.resets(), d.s.Number())
	}
	if d.s.Stage() != StageAwaitingFirst {
		t.Fatalf("expected awaiting_first after reset, got %v", d.s.Stage())
	}

	d.clear()
	d.enter(testCombo)
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	if got := d.unlockedChanges(); len(got) != 1 || !got[0] {
		t.Fatalf("expected a second unlock, got %v", got)
	}
}

func TestReduce_RelockOnResetLatches(t *testing.T) {
	d := newDial(t, testCombo, RelockOnReset)
	d.enter(testCombo)
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	d.clear()

	d.turn(7)
	d.turn(-3)
	if got := d.unlockedChanges(); len(got) != 0 {
		t.Fatalf("latched lock must ignore motion, got %v", got)
	}

	d.resetGesture()
	if got := d.unlockedChanges(); len(got) != 1 || got[0] {
		t.Fatalf("expected the reset to re-lock, got %v", got)
	}
	if d.s.Stage() != StageAwaitingFirst {
		t.Fatalf("expected awaiting_first, got %v", d.s.Stage())
	}
}

func TestReduce_ResetCancelsPendingSettle(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.enter(testCombo)
	gen := d.lastArm().Generation

	// Keep going clockwise: 5 -> 0 is the first pass of this run.
	d.turn(5 + 80)
	if d.resets() != 1 {
		t.Fatalf("expected a reset, got %d", d.resets())
	}
	if _, ok := d.lastSettleCommand().(CmdCancelSettleTimer); !ok {
		t.Fatalf("expected the reset to cancel the settle timer, got %v", d.lastSettleCommand())
	}

	d.clear()
	d.send(SettleElapsed{Generation: gen})
	if got := d.unlockedChanges(); len(got) != 0 {
		t.Fatalf("old timer must not unlock, got %v", got)
	}
}

func TestReduce_CounterclockwiseSpinsNeverReset(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.turn(-200)
	if d.resets() != 0 {
		t.Fatalf("expected no reset, got %d", d.resets())
	}
}

func TestReduce_Regenerate(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.enter(testCombo)
	d.clear()

	next := Combination{3, 17, 30}
	d.send(Regenerate{LockID: "second", Combination: next})

	if len(d.signals) < 2 {
		t.Fatalf("expected combination and reset signals, got %v", d.signals)
	}
	cc, ok := d.signals[0].(CombinationChanged)
	if !ok || cc.LockID != "second" || cc.Combination != next {
		t.Fatalf("unexpected first signal %#v", d.signals[0])
	}
	if _, ok := d.signals[1].(ResetPulsed); !ok {
		t.Fatalf("expected ResetPulsed, got %#v", d.signals[1])
	}
	if _, ok := d.lastSettleCommand().(CmdCancelSettleTimer); !ok {
		t.Fatalf("expected pending settle to be cancelled, got %v", d.commands)
	}
	if d.s.Combination() != next || d.s.LockID != "second" {
		t.Fatalf("regenerate did not apply: %v %q", d.s.Combination(), d.s.LockID)
	}
	if d.s.Stage() != StageAwaitingFirst {
		t.Fatalf("expected awaiting_first, got %v", d.s.Stage())
	}

	d.clear()
	d.enter(next)
	d.send(SettleElapsed{Generation: d.lastArm().Generation})
	if got := d.unlockedChanges(); len(got) != 1 || !got[0] {
		t.Fatalf("expected the new combination to open the lock, got %v", got)
	}

	d.clear()
	d.send(Regenerate{LockID: "third", Combination: testCombo})
	if got := d.unlockedChanges(); len(got) != 1 || got[0] {
		t.Fatalf("regenerating an open lock must close it, got %v", got)
	}
}

func TestReduce_InvalidRegenerateIgnored(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.send(Regenerate{LockID: "bad", Combination: Combination{0, 1, 2}})
	if len(d.signals) != 0 || d.s.LockID != "test-lock" {
		t.Fatalf("expected invalid regenerate to be ignored, got %v", d.signals)
	}
}

func TestReduce_SetOriginAndSnapshot(t *testing.T) {
	d := newDial(t, testCombo, RelockOnMotion)
	d.send(SetOrigin{Origin: Coordinate{X: 3, Y: 4}})
	if d.s.Origin != (Coordinate{X: 3, Y: 4}) {
		t.Fatalf("origin not updated: %+v", d.s.Origin)
	}

	reply := make(chan StateSnapshot, 1)
	rr := d.send(RequestStateSnapshot{Reply: reply})
	if len(rr.Commands) != 1 {
		t.Fatalf("expected one command, got %v", rr.Commands)
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	snap := cmd.Snapshot
	if snap.LockID != "test-lock" || snap.TickCount != 40 || snap.Combination != testCombo {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Stage != "awaiting_first" || snap.Unlocked || !snap.Dragging {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Origin != (Coordinate{X: 3, Y: 4}) {
		t.Fatalf("unexpected snapshot origin %+v", snap.Origin)
	}
}

func TestReduce_NilStateAndUnknownEvents(t *testing.T) {
	if rr := Reduce(nil, SetOrigin{}); rr.State != nil || rr.Signals != nil {
		t.Fatalf("expected nil state to be a no-op, got %+v", rr)
	}
	d := newDial(t, testCombo, RelockOnMotion)
	d.send(PointerEvent{Raw: RawEvent{Kind: TouchMove}})
	if len(d.signals) != 0 || len(d.commands) != 0 {
		t.Fatalf("inert events must not produce output")
	}
}

func TestCoalesceSettleCommands(t *testing.T) {
	reply := make(chan StateSnapshot)
	in := []Command{
		CmdArmSettleTimer{Generation: 1},
		CmdPublishStateSnapshot{Reply: reply},
		CmdCancelSettleTimer{},
		CmdArmSettleTimer{Generation: 2},
	}
	out := coalesceSettleCommands(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 commands, got %v", out)
	}
	if _, ok := out[0].(CmdPublishStateSnapshot); !ok {
		t.Fatalf("expected snapshot command first, got %v", out[0])
	}
	if arm, ok := out[1].(CmdArmSettleTimer); !ok || arm.Generation != 2 {
		t.Fatalf("expected the last arm to win, got %v", out[1])
	}
	if _, ok := in[0].(CmdArmSettleTimer); !ok {
		t.Fatalf("input slice must not be modified")
	}
}

package main

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"combolock/internal/lock"
)

type postRecorder struct {
	mu     sync.Mutex
	events []lock.Event
}

func (p *postRecorder) post(ev lock.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *postRecorder) settles() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uint64
	for _, ev := range p.events {
		if s, ok := ev.(lock.SettleElapsed); ok {
			out = append(out, s.Generation)
		}
	}
	return out
}

func TestEffects_ArmPostsSettleElapsed(t *testing.T) {
	rec := &postRecorder{}
	fx := newEffects(rec.post, newLogger(io.Discard, LogLevelError))
	defer fx.stop()

	if err := fx.run(lock.CmdArmSettleTimer{Generation: 7, After: 10 * time.Millisecond}); err != nil {
		t.Fatalf("run: %v", err)
	}

	waitUntil(t, time.Second, func() bool { return len(rec.settles()) == 1 }, "settle never posted")
	if got := rec.settles(); got[0] != 7 {
		t.Fatalf("posted generation %d, want 7", got[0])
	}
}

func TestEffects_RearmReplacesPendingTimer(t *testing.T) {
	rec := &postRecorder{}
	fx := newEffects(rec.post, newLogger(io.Discard, LogLevelError))
	defer fx.stop()

	_ = fx.run(lock.CmdArmSettleTimer{Generation: 1, After: 30 * time.Millisecond})
	_ = fx.run(lock.CmdArmSettleTimer{Generation: 2, After: 30 * time.Millisecond})

	waitUntil(t, time.Second, func() bool { return len(rec.settles()) >= 1 }, "settle never posted")
	time.Sleep(60 * time.Millisecond)

	got := rec.settles()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("posted generations %v, want [2]", got)
	}
}

func TestEffects_CancelStopsTimer(t *testing.T) {
	rec := &postRecorder{}
	fx := newEffects(rec.post, newLogger(io.Discard, LogLevelError))

	_ = fx.run(lock.CmdArmSettleTimer{Generation: 1, After: 20 * time.Millisecond})
	if err := fx.run(lock.CmdCancelSettleTimer{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Cancelling with nothing pending is fine too.
	if err := fx.run(lock.CmdCancelSettleTimer{}); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if got := rec.settles(); len(got) != 0 {
		t.Fatalf("cancelled timer posted %v", got)
	}
}

func TestEffects_ArmWithoutPoster(t *testing.T) {
	fx := newEffects(nil, newLogger(io.Discard, LogLevelError))
	err := fx.run(lock.CmdArmSettleTimer{Generation: 1, After: time.Millisecond})

	var want errNoPoster
	if !errors.As(err, &want) {
		t.Fatalf("expected errNoPoster, got %v", err)
	}
}

func TestEffects_SnapshotReplyNeverBlocks(t *testing.T) {
	fx := newEffects(nil, newLogger(io.Discard, LogLevelError))

	reply := make(chan lock.StateSnapshot, 1)
	snap := lock.StateSnapshot{LockID: "abc", Number: 3}
	if err := fx.run(lock.CmdPublishStateSnapshot{Reply: reply, Snapshot: snap}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := <-reply; got.LockID != "abc" || got.Number != 3 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	// Unbuffered with no reader: dropped, not blocked.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fx.run(lock.CmdPublishStateSnapshot{Reply: make(chan lock.StateSnapshot), Snapshot: snap})
		_ = fx.run(lock.CmdPublishStateSnapshot{Snapshot: snap})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("snapshot delivery blocked")
	}
}

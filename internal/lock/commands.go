package lock

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command is a side effect requested by the reducer and executed by its
// owner.
type Command interface {
	commandMarker()
	String() string
}

// CmdArmSettleTimer (re)starts the settle timer. When it fires without being
// replaced or cancelled the owner must feed SettleElapsed{Generation} back.
type CmdArmSettleTimer struct {
	Generation uint64
	After      time.Duration
}

func (CmdArmSettleTimer) commandMarker() {}
func (c CmdArmSettleTimer) String() string {
	return fmt.Sprintf("CmdArmSettleTimer(generation=%d, after=%s)", c.Generation, c.After)
}

// CmdCancelSettleTimer stops a pending settle timer, if any.
type CmdCancelSettleTimer struct{}

func (CmdCancelSettleTimer) commandMarker() {}
func (CmdCancelSettleTimer) String() string { return "CmdCancelSettleTimer()" }

// CmdPublishStateSnapshot delivers a snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (c CmdPublishStateSnapshot) String() string {
	return fmt.Sprintf("CmdPublishStateSnapshot(lock_id=%s)", c.Snapshot.LockID)
}

package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_ABS = 0x03

	SYN_REPORT = 0x00

	REL_X = 0x00
	REL_Y = 0x01

	ABS_X             = 0x00
	ABS_Y             = 0x01
	ABS_MT_POSITION_X = 0x35
	ABS_MT_POSITION_Y = 0x36

	BTN_LEFT  = 0x110
	BTN_TOUCH = 0x14a
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultSocketPath = "/tmp/combolockd.sock"
	defaultHTTPListen = "127.0.0.1:8080"

	// Settle window bounds, in milliseconds.
	minSettleMS     = 100
	maxSettleMS     = 250
	defaultSettleMS = 150

	eventQueueSize     = 256
	broadcastQueueSize = 256

	snapshotTimeout = 1 * time.Second

	// How long a reset, unlock or combination signal may wait for room in
	// the broadcast queue before it is dropped.
	broadcastCriticalWait = 1 * time.Second
)

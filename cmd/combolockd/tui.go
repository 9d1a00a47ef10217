package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"combolock/internal/lock"
)

// ============================================================================
// Terminal dial
// ============================================================================
// The tui subcommand runs a lock in-process and renders it with tcell. The
// mouse is the pointer: pressing button 1 grabs the dial, moving turns it,
// releasing lets go. The dial centre is the middle of the terminal.
//
// Terminal cells are roughly twice as tall as they are wide, so rows are
// scaled by two before they reach the lock; otherwise the swept angles
// would be squashed vertically.
// ============================================================================

// cellAspect is the height/width ratio of a terminal cell.
const cellAspect = 2

func printTUIUsage() {
	fmt.Printf("combolockd tui v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  combolockd tui [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config, -tick-count, -settle-ms, -relock, -log-level (see combolockd -help)")
	fmt.Println()
	fmt.Println("  -log-file string")
	fmt.Println("        Write logs to this file; logs are discarded when empty")
	fmt.Println()
	fmt.Println("KEYS:")
	fmt.Println("  drag with the mouse   turn the dial")
	fmt.Println("  c                     show/hide the combination")
	fmt.Println("  r                     new combination")
	fmt.Println("  q, Esc, Ctrl-C        quit")
	fmt.Println()
}

// runTUISubcommand handles the tui subcommand.
func runTUISubcommand(args []string) {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	lf := registerLockFlags(fs)
	logFile := fs.String("log-file", "", "Write logs to this file")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printTUIUsage
	fs.Parse(args)

	if *showHelp {
		printTUIUsage()
		return
	}

	cfg, err := loadConfig(fs, lf, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// The terminal belongs to the dial; logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(ExpandPath(*logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := newLogger(w, logLevel)

	if err := runTUI(cfg, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runTUI(cfg Config, logger *slog.Logger) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()
	screen.HideCursor()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state, initial, err := newLockState(cfg, time.Now())
	if err != nil {
		return err
	}

	events := make(chan lock.Event, eventQueueSize)
	post := func(ev lock.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	fx := newEffects(post, logger)

	var signals lock.Feed[lock.Signal]
	signals.Subscribe(logSignal(logger))

	sigCh := make(chan lock.Signal, broadcastQueueSize)
	signals.Subscribe(func(s lock.Signal) {
		select {
		case sigCh <- s:
		default:
			logger.Warn("tui signal queue full, dropping signal")
		}
	})

	w, h := screen.Size()
	events <- lock.SetOrigin{Origin: tuiOrigin(w, h)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runDaemon(gctx, events, state, initial, fx, &signals, logger)
	})

	// PollEvent returns nil once the screen is finalized.
	termEvents := make(chan tcell.Event, 64)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case termEvents <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	view := newDialView(cfg.Lock.TickCount)
	var mouse mouseTracker
	drawDial(screen, &view)
	screen.Show()

loop:
	for {
		select {
		case <-gctx.Done():
			break loop

		case s := <-sigCh:
			view.apply(s)

		case ev := <-termEvents:
			switch e := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
				w, h := e.Size()
				post(lock.SetOrigin{Origin: tuiOrigin(w, h)})

			case *tcell.EventKey:
				switch {
				case e.Key() == tcell.KeyEscape, e.Key() == tcell.KeyCtrlC:
					break loop
				case e.Key() == tcell.KeyRune && e.Rune() == 'q':
					break loop
				case e.Key() == tcell.KeyRune && e.Rune() == 'r':
					post(lock.Regenerate{})
				case e.Key() == tcell.KeyRune && e.Rune() == 'c':
					view.showCombination = !view.showCombination
				}

			case *tcell.EventMouse:
				x, y := e.Position()
				if raw, ok := mouse.feed(x, y, e.Buttons()&tcell.Button1 != 0); ok {
					post(lock.PointerEvent{Raw: raw})
				}
			}
		}

		drawDial(screen, &view)
		screen.Show()
	}

	cancel()
	return g.Wait()
}

// tuiOrigin is the dial centre for a w x h terminal, in lock coordinates.
func tuiOrigin(w, h int) lock.Coordinate {
	return lock.Coordinate{X: float64(w) / 2, Y: float64(h) * cellAspect / 2}
}

func cellCoordinate(x, y int) lock.Coordinate {
	return lock.Coordinate{X: float64(x), Y: float64(y) * cellAspect}
}

// mouseTracker turns tcell's level-triggered button state into pointer
// down/move/up edges.
type mouseTracker struct {
	down  bool
	lastX int
	lastY int
}

func (m *mouseTracker) feed(x, y int, pressed bool) (lock.RawEvent, bool) {
	c := cellCoordinate(x, y)
	switch {
	case pressed && !m.down:
		m.down = true
		m.lastX, m.lastY = x, y
		return lock.RawEvent{Kind: lock.PointerDown, X: c.X, Y: c.Y}, true
	case pressed && m.down:
		if x == m.lastX && y == m.lastY {
			return lock.RawEvent{}, false
		}
		m.lastX, m.lastY = x, y
		return lock.RawEvent{Kind: lock.PointerMove, X: c.X, Y: c.Y}, true
	case !pressed && m.down:
		m.down = false
		return lock.RawEvent{Kind: lock.PointerUp, X: c.X, Y: c.Y}, true
	}
	return lock.RawEvent{}, false
}

// dialView is what the terminal shows, rebuilt from signals only.
type dialView struct {
	tickCount int

	lockID      string
	combination lock.Combination
	number      int
	rotation    float64
	direction   lock.Direction
	unlocked    bool
	resets      int

	showCombination bool
}

func newDialView(tickCount int) dialView {
	return dialView{tickCount: tickCount}
}

func (v *dialView) apply(s lock.Signal) {
	switch sig := s.(type) {
	case lock.RotationChanged:
		v.rotation = sig.Degrees
	case lock.NumberChanged:
		v.number = sig.Number
	case lock.DirectionChanged:
		v.direction = sig.Direction
	case lock.ResetPulsed:
		v.resets++
	case lock.UnlockedChanged:
		v.unlocked = sig.Unlocked
	case lock.CombinationChanged:
		v.lockID = sig.LockID
		v.combination = sig.Combination
	}
}

// labelAngle is the screen angle of number n, clockwise from the top marker
// in radians. The current number sits under the marker and numbers increase
// clockwise around the face.
func (v *dialView) labelAngle(n int) float64 {
	offset := ((n-v.number)%v.tickCount + v.tickCount) % v.tickCount
	return float64(offset) * 2 * math.Pi / float64(v.tickCount)
}

// labelEvery picks the label spacing so labels don't overlap on small dials.
func labelEvery(tickCount int) int {
	switch {
	case tickCount <= 12:
		return 1
	case tickCount <= 60:
		return 5
	default:
		return 10
	}
}

var (
	styleDial     = tcell.StyleDefault
	styleMarker   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleLocked   = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleUnlocked = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleDim      = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

func drawDial(s tcell.Screen, v *dialView) {
	s.Clear()
	w, h := s.Size()
	origin := tuiOrigin(w, h)

	radius := math.Min(origin.X, origin.Y) - 3
	if radius < 4 {
		drawText(s, 0, 0, styleDim, "terminal too small")
		return
	}

	every := labelEvery(v.tickCount)
	for n := 0; n < v.tickCount; n++ {
		theta := v.labelAngle(n)
		x := int(math.Round(origin.X + radius*math.Sin(theta)))
		y := int(math.Round((origin.Y - radius*math.Cos(theta)) / cellAspect))

		if n%every == 0 {
			label := strconv.Itoa(n)
			drawText(s, x-len(label)/2, y, styleDial, label)
		} else {
			s.SetContent(x, y, '·', nil, styleDim)
		}
	}

	markerY := int(math.Round((origin.Y-radius)/cellAspect)) - 1
	s.SetContent(int(origin.X), markerY, '▼', nil, styleMarker)

	cx := int(origin.X)
	cy := int(origin.Y / cellAspect)

	num := strconv.Itoa(v.number)
	drawText(s, cx-len(num)/2, cy-1, styleMarker, num)

	if v.unlocked {
		drawCentered(s, cx, cy, styleUnlocked, "OPEN")
	} else {
		drawCentered(s, cx, cy, styleLocked, "LOCKED")
	}
	if v.direction != lock.DirectionNone {
		drawCentered(s, cx, cy+1, styleDim, v.direction.String())
	}

	id := v.lockID
	if len(id) > 8 {
		id = id[:8]
	}
	status := fmt.Sprintf("lock %s  rotation %.1f°  resets %d", id, v.rotation, v.resets)
	drawText(s, 0, 0, styleDim, status)
	if v.showCombination {
		drawText(s, 0, 1, styleDim, "combination "+v.combination.String())
	}
	drawText(s, 0, h-1, styleDim, "drag to turn  c combination  r new lock  q quit")
}

func drawCentered(s tcell.Screen, cx, y int, style tcell.Style, text string) {
	drawText(s, cx-len([]rune(text))/2, y, style, text)
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

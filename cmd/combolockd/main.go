package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"combolock/internal/lock"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("combolockd v%s\n", version)
	fmt.Println("Combination lock dial daemon for pointer and touch input")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  combolockd [OPTIONS]")
	fmt.Println("  combolockd tui [OPTIONS]")
	fmt.Println("  combolockd send [OPTIONS] <type> [json-data]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Turns drag gestures around a dial centre into a rotating combination")
	fmt.Println("  lock. Input comes from Linux input devices, the IPC socket, the HTTP API")
	fmt.Println("  and WebSocket clients; lock state is streamed to WebSocket clients.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -tick-count int")
	fmt.Printf("        Numbers on the dial (default %d)\n", lock.DefaultTickCount)
	fmt.Println()
	fmt.Println("  -settle-ms int")
	fmt.Printf("        Time the dial must rest on a number, %d-%d ms (default %d)\n", minSettleMS, maxSettleMS, defaultSettleMS)
	fmt.Println()
	fmt.Println("  -relock string")
	fmt.Println("        Relock policy once open: motion|reset (default \"motion\")")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device (mouse or touch panel); empty disables")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Printf("        HTTP API and WebSocket listen address (default %q); empty disables\n", defaultHTTPListen)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  tui")
	fmt.Println("        Run a lock in the terminal and turn the dial with the mouse")
	fmt.Println("        Options: the lock options above, -config")
	fmt.Println()
	fmt.Println("  send")
	fmt.Println("        Send one input envelope to a running daemon over IPC")
	fmt.Println("        Options: -ipc-socket")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon reading a touch panel")
	fmt.Println("  combolockd -input-device /dev/input/event3")
	fmt.Println()
	fmt.Println("  # Pick a new combination on a running daemon")
	fmt.Println("  combolockd send regenerate")
	fmt.Println()
	fmt.Println("  # Move the dial centre")
	fmt.Println("  combolockd send set_origin '{\"x\":400,\"y\":240}'")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - The combination is logged at info level when a lock is created")
	fmt.Println()
}

// lockFlags are the flags shared by the daemon and the tui subcommand.
type lockFlags struct {
	configPath *string
	tickCount  *int
	settleMS   *int
	relock     *string
	logLevel   *string
}

func registerLockFlags(fs *flag.FlagSet) lockFlags {
	return lockFlags{
		configPath: fs.String("config", "", "Path to YAML config file (optional)"),
		tickCount:  fs.Int("tick-count", lock.DefaultTickCount, "Numbers on the dial"),
		settleMS:   fs.Int("settle-ms", defaultSettleMS, "Settle time in milliseconds"),
		relock:     fs.String("relock", string(lock.RelockOnMotion), "Relock policy: motion|reset"),
		logLevel:   fs.String("log-level", "info", "Log level: error, warn, info, debug"),
	}
}

// loadConfig builds the effective config: defaults, then the file, then
// only the flags that were explicitly set.
func loadConfig(fs *flag.FlagSet, lf lockFlags, extra func(name string, o *FlagOverrides)) (Config, error) {
	cfg := DefaultConfig()
	if *lf.configPath != "" {
		var err error
		if cfg, err = LoadConfigFile(*lf.configPath); err != nil {
			return Config{}, err
		}
	}

	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tick-count":
			o.TickCount = lf.tickCount
		case "settle-ms":
			o.SettleMS = lf.settleMS
		case "relock":
			o.Relock = lf.relock
		case "log-level":
			o.LogLevel = lf.logLevel
		default:
			if extra != nil {
				extra(f.Name, &o)
			}
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "tui":
			runTUISubcommand(os.Args[2:])
			return
		case "send":
			runSendSubcommand(os.Args[2:])
			return
		}
	}

	// Check for version flag early (for main command)
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	fs := flag.NewFlagSet("combolockd", flag.ExitOnError)
	lf := registerLockFlags(fs)
	var (
		inputDevice   = fs.String("input-device", "", "Linux input event device; empty disables")
		ipcSocketPath = fs.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		httpListen    = fs.String("http-listen", defaultHTTPListen, "HTTP listen address; empty disables")
	)
	fs.Usage = printUsage
	fs.Parse(os.Args[1:])

	cfg, err := loadConfig(fs, lf, func(name string, o *FlagOverrides) {
		switch name {
		case "input-device":
			o.InputDevice = inputDevice
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-listen":
			o.HTTPListen = httpListen
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	if err := runMain(cfg, logger); err != nil {
		logger.Error("combolockd stopped", "error", err)
		os.Exit(1)
	}
}

// runMain wires the daemon and its input/output goroutines and blocks until
// SIGINT/SIGTERM or the first fatal error.
func runMain(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, initial, err := newLockState(cfg, time.Now())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Central event bus: every producer sends here, the daemon loop drains it.
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

	logger.Debug("starting combolockd", "version", version)
	logger.Debug("configuration",
		"tick_count", cfg.Lock.TickCount,
		"settle_ms", cfg.Lock.SettleMS,
		"relock", cfg.Lock.Relock,
		"origin_x", cfg.Lock.OriginX,
		"origin_y", cfg.Lock.OriginY,
		"input_devices", cfg.Input.Devices,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_listen", cfg.HTTP.Listen)

	if cfg.HTTP.Listen != "" {
		bcast := make(chan lock.Signal, broadcastQueueSize)
		signals.Subscribe(broadcastSubscriber(ctx, bcast, broadcastCriticalWait, logger))

		srv := NewServer(logger, events, ServerConfig{})
		handler := newRouter(srv, events, cfg.HTTP.CORSOrigins, logger)

		g.Go(func() error {
			srv.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, srv.Hub(), bcast, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Listen, handler, logger)
		})
	}

	g.Go(func() error {
		return runDaemon(ctx, events, state, initial, fx, &signals, logger)
	})

	if cfg.IPC.SocketPath != "" {
		socketPath := ExpandPath(cfg.IPC.SocketPath)
		g.Go(func() error {
			return runIPCServer(ctx, socketPath, events, logger)
		})
	}

	if len(cfg.Input.Devices) > 0 {
		origin := cfg.ToLockConfig().Origin
		g.Go(func() error {
			if err := runInputReader(ctx, cfg.Input.Devices, origin, events, logger); err != nil {
				return fmt.Errorf("input reader: %w", err)
			}
			return nil
		})
	}

	logger.Info("listening",
		"input_devices", cfg.Input.Devices,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Listen)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

func printSendUsage() {
	fmt.Printf("combolockd send v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  combolockd send [OPTIONS] <type> [json-data]")
	fmt.Println()
	fmt.Println("TYPES:")
	fmt.Println("  pointer_down, pointer_move, pointer_up    data {\"x\":..,\"y\":..}")
	fmt.Println("  touch_start, touch_move, touch_end        data {\"changed_touches\":[{\"x\":..,\"y\":..}]}")
	fmt.Println("  set_origin                                data {\"x\":..,\"y\":..}")
	fmt.Println("  regenerate                                data {\"combination\":[a,b,c]} (optional)")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
}

// runSendSubcommand handles the send subcommand.
func runSendSubcommand(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	ipcSocketPath := fs.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printSendUsage
	fs.Parse(args)

	if *showHelp || fs.NArg() == 0 || fs.NArg() > 2 {
		printSendUsage()
		if !*showHelp {
			os.Exit(2)
		}
		return
	}

	ev, err := buildSendEvent(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := SendIPCEvent(ExpandPath(*ipcSocketPath), ev); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildSendEvent decodes a command line type and optional JSON payload.
func buildSendEvent(typ, data string) (lock.Event, error) {
	env := EventEnvelope{Type: typ}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("data for %s is not valid JSON", typ)
		}
		env.Data = json.RawMessage(data)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return UnmarshalEvent(b)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	var (
		wsURL    = flag.String("ws", "ws://127.0.0.1:8080/ws", "combolockd state websocket URL")
		raw      = flag.Bool("raw", false, "Print messages as received JSON")
		rotation = flag.Bool("rotation", true, "Print rotation_changed messages")
		send     = flag.String("send", "", "Send one input envelope after connecting (e.g. '{\"type\":\"regenerate\"}')")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The daemon pings every 20s; answer and extend the deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	if *send != "" {
		if !json.Valid([]byte(*send)) {
			log.Fatalf("-send is not valid JSON")
		}
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(*send))
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage:
				if *raw {
					fmt.Println(string(message))
					continue
				}
				if line, ok := formatMessage(message, *rotation); ok {
					fmt.Println(line)
				}
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type message struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// formatMessage renders one state message as a log line. The second result
// is false for messages that should not be printed.
func formatMessage(b []byte, withRotation bool) (string, bool) {
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Sprintf("[TEXT] %s", string(b)), true
	}

	var d struct {
		Degrees     float64 `json:"degrees"`
		Number      int     `json:"number"`
		Direction   string  `json:"direction"`
		Unlocked    bool    `json:"unlocked"`
		LockID      string  `json:"lock_id"`
		Combination []int   `json:"combination"`
		Stage       string  `json:"stage"`
		Error       string  `json:"error"`
	}
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &d)
	}

	ts := m.Ts.Local().Format("15:04:05.000")

	switch m.Type {
	case "state_init":
		return fmt.Sprintf("%s [INIT] lock=%s number=%d stage=%s unlocked=%t", ts, d.LockID, d.Number, d.Stage, d.Unlocked), true
	case "rotation_changed":
		if !withRotation {
			return "", false
		}
		return fmt.Sprintf("%s [ROTATION] %.1f°", ts, d.Degrees), true
	case "number_changed":
		return fmt.Sprintf("%s [NUMBER] %d", ts, d.Number), true
	case "direction_changed":
		return fmt.Sprintf("%s [DIRECTION] %s", ts, d.Direction), true
	case "reset":
		return fmt.Sprintf("%s [RESET]", ts), true
	case "unlocked_changed":
		state := "LOCKED"
		if d.Unlocked {
			state = "UNLOCKED"
		}
		return fmt.Sprintf("%s [%s]", ts, state), true
	case "combination_changed":
		nums := make([]string, len(d.Combination))
		for i, n := range d.Combination {
			nums[i] = fmt.Sprint(n)
		}
		return fmt.Sprintf("%s [COMBINATION] lock=%s %s", ts, d.LockID, strings.Join(nums, " • ")), true
	case "error":
		return fmt.Sprintf("%s [ERROR] %s", ts, d.Error), true
	default:
		return fmt.Sprintf("%s [%s] %s", ts, strings.ToUpper(m.Type), string(m.Data)), true
	}
}

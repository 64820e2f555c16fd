package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/dragonrealm/internal/realtime/protocol"
)

// ErrSessionEnded is returned when the server ends the session mid-stream
var ErrSessionEnded = errors.New("session ended by server")

func newConnectCmd() *cobra.Command {
	var (
		jsonOutput bool
		dragon     string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join the world and stream events",
		Long: `Open a websocket connection to the world and print events as they arrive.

Lines typed on stdin are sent as chat messages, except for these commands:
  /move <x> <y>     move your dragon
  /dragon <id>      choose a dragon (see 'drealm world dragons')
  /collect <id>     pick up a collectible
  /quit             disconnect

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return streamWorld(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), dragon, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	cmd.Flags().StringVar(&dragon, "dragon", "", "Dragon to select once connected")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Disconnect after this long (0 stays until interrupted)")

	return cmd
}

// socketConn serializes writes from the stdin loop and shutdown
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socketConn) send(t protocol.Type, payload any) error {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socketConn) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func streamWorld(ctx context.Context, in io.Reader, out io.Writer, dragon string, jsonOutput bool) error {
	url, err := cfg.SocketURL()
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection rejected: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	sock := &socketConn{conn: conn}

	if !jsonOutput {
		fmt.Fprintln(out, "Connected")
	}

	if dragon != "" {
		if err := sock.send(protocol.TypeDragonSelected, protocol.DragonSelected{DragonID: dragon}); err != nil {
			return err
		}
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printEvent(out, data, jsonOutput)
		}
	}()

	quit := make(chan struct{})
	go readCommands(in, sock, quit, out)

	select {
	case <-ctx.Done():
		sock.close()
	case <-quit:
		sock.close()
	case err := <-readErr:
		if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			return ErrSessionEnded
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return fmt.Errorf("stream error: %w", err)
		}
	}

	if !jsonOutput {
		fmt.Fprintln(out, "Disconnected")
	}
	return nil
}

// readCommands turns stdin lines into events until stdin closes or /quit
func readCommands(in io.Reader, sock *socketConn, quit chan<- struct{}, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			close(quit)
			return
		}

		t, payload, err := parseCommand(line)
		if err == nil {
			err = sock.send(t, payload)
		}
		if err != nil {
			fmt.Fprintf(out, "! %s\n", err)
		}
	}
}

// parseCommand maps one input line to an outbound event
func parseCommand(line string) (protocol.Type, any, error) {
	if !strings.HasPrefix(line, "/") {
		return protocol.TypeChatMessage, protocol.ChatMessage{Message: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/move":
		if len(fields) != 3 {
			return "", nil, errors.New("usage: /move <x> <y>")
		}
		x, errX := strconv.ParseFloat(fields[1], 64)
		y, errY := strconv.ParseFloat(fields[2], 64)
		if errX != nil || errY != nil {
			return "", nil, errors.New("coordinates must be numbers")
		}
		return protocol.TypePositionUpdate, protocol.PositionUpdate{X: x, Y: y}, nil
	case "/dragon":
		if len(fields) != 2 {
			return "", nil, errors.New("usage: /dragon <id>")
		}
		return protocol.TypeDragonSelected, protocol.DragonSelected{DragonID: fields[1]}, nil
	case "/collect":
		if len(fields) != 2 {
			return "", nil, errors.New("usage: /collect <id>")
		}
		return protocol.TypeCollectibleCollected, protocol.CollectibleCollected{ID: fields[1]}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %s", fields[0])
	}
}

// streamedEvent is one JSON output line
type streamedEvent struct {
	Time    time.Time       `json:"time"`
	Type    protocol.Type   `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func printEvent(out io.Writer, data []byte, jsonOutput bool) {
	now := time.Now()

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fmt.Fprintf(out, "! unreadable event: %s\n", err)
		return
	}

	if jsonOutput {
		line, _ := json.Marshal(streamedEvent{Time: now, Type: env.Type, Payload: env.Payload})
		fmt.Fprintln(out, string(line))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	display := string(env.Payload)
	if len(display) > 100 {
		display = display[:100] + "..."
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", timestamp, env.Type, display)
}

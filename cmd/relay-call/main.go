// Command relay-call is an interactive terminal client for the Relay
// service: type to chat with the active agent, or start a hands-free
// voice call.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/relaydesk/relay-go/pkg/core/agents"
	"github.com/relaydesk/relay-go/pkg/metrics"
	relay "github.com/relaydesk/relay-go/sdk"
)

type callConfig struct {
	ServerURL  string
	Token      string
	PIN        string
	DeviceID   string
	DeviceName string
	Verbose    bool
}

func parseConfig(args []string, getenv func(string) string) (callConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := callConfig{}
	fs := flag.NewFlagSet("relay-call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "server", strings.TrimSpace(getenv("RELAY_SERVER_URL")), "Relay server base URL (or RELAY_SERVER_URL)")
	fs.StringVar(&cfg.Token, "token", strings.TrimSpace(getenv("RELAY_TOKEN")), "access token (or RELAY_TOKEN)")
	fs.StringVar(&cfg.PIN, "pin", "", "device PIN for first-time authentication")
	fs.StringVar(&cfg.DeviceID, "device-id", strings.TrimSpace(getenv("RELAY_DEVICE_ID")), "stable device id (or RELAY_DEVICE_ID)")
	fs.StringVar(&cfg.DeviceName, "device-name", "", "device display name (defaults to hostname)")
	fs.BoolVar(&cfg.Verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return callConfig{}, err
	}
	if cfg.ServerURL == "" {
		return callConfig{}, fmt.Errorf("server URL required (-server or RELAY_SERVER_URL)")
	}
	if cfg.Token == "" && cfg.PIN == "" {
		return callConfig{}, fmt.Errorf("either -token or -pin is required")
	}
	return cfg, nil
}

func main() {
	godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "relay-call:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		fmt.Fprintln(os.Stderr, "relay-call:", err)
		os.Exit(1)
	}
}

func run(cfg callConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []relay.ClientOption{
		relay.WithServerURL(cfg.ServerURL),
		relay.WithLogger(logger),
		relay.WithMetrics(metrics.New()),
	}
	if cfg.Token != "" {
		opts = append(opts, relay.WithToken(cfg.Token))
	}
	if cfg.DeviceID != "" {
		opts = append(opts, relay.WithDeviceID(cfg.DeviceID))
	}
	if cfg.DeviceName != "" {
		opts = append(opts, relay.WithDeviceName(cfg.DeviceName))
	}
	client := relay.NewClient(opts...)

	if client.Token() == "" {
		token, err := client.Auth.Authenticate(ctx, cfg.PIN)
		if err != nil {
			return err
		}
		fmt.Println("authenticated; token:", token)
	}

	printer := newPrinter()
	session := client.NewSession(relay.SessionConfig{
		OnChange: func() {},
		OnUnauthorized: func(reason string) {
			fmt.Println("\n! connection requires re-authentication:", reason)
			stop()
		},
	})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return err
	}
	fmt.Println("connected. commands: /call /end /mute /unmute /say <text> /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		printer.flush(session.Agents())
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, session, line); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, session *relay.Session, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/call":
		if err := session.StartCall(); err != nil {
			fmt.Println("! call failed:", err)
		} else {
			fmt.Println("call started")
		}
	case line == "/end":
		session.EndCall()
		fmt.Println("call ended")
	case line == "/mute":
		session.Call().SetMuted(true)
	case line == "/unmute":
		session.Call().SetMuted(false)
	case line == "/approve" || strings.HasPrefix(line, "/approve "):
		respondPermission(session, true, strings.TrimSpace(strings.TrimPrefix(line, "/approve")))
	case line == "/deny":
		respondPermission(session, false, "")
	case strings.HasPrefix(line, "/say "):
		if err := session.SpeakResponse(ctx, strings.TrimPrefix(line, "/say ")); err != nil {
			fmt.Println("! speak failed:", err)
		}
	default:
		if err := session.SendMessage(line); err != nil {
			fmt.Println("! send failed:", err)
		}
	}
	return false
}

// respondPermission answers the newest pending request on the active
// agent. An empty pin is fine for yellow-level requests.
func respondPermission(session *relay.Session, approved bool, pin string) {
	id := session.Agents().ActiveID()
	msgs := session.Agents().Messages(id)
	var pending *agents.PermissionRequestMessage
	for i := len(msgs) - 1; i >= 0; i-- {
		if p, ok := msgs[i].(*agents.PermissionRequestMessage); ok && p.Status == agents.PermissionPending {
			pending = p
			break
		}
	}
	if pending == nil {
		fmt.Println("! no pending permission request")
		return
	}
	if err := session.Agents().RespondPermission(id, pending.RequestID, approved, pin); err != nil {
		fmt.Println("! permission response failed:", err)
	}
}

// printer tracks how many messages were already rendered for the active
// agent so each loop iteration only prints what is new and finalized.
type printer struct {
	printed map[string]int
}

func newPrinter() *printer {
	return &printer{printed: make(map[string]int)}
}

func (p *printer) flush(o *agents.Orchestrator) {
	id := o.ActiveID()
	msgs := o.Messages(id)
	n := p.printed[id]
	for _, msg := range msgs[n:] {
		switch m := msg.(type) {
		case *agents.AssistantMessage:
			if m.IsStreaming {
				return
			}
			fmt.Println("assistant:", m.Text)
		case *agents.SystemMessage:
			fmt.Println("system:", m.Text)
		case *agents.ToolUseMessage:
			fmt.Println("tool:", m.Name)
		case *agents.ToolResultMessage:
			if m.IsError {
				fmt.Println("tool error:", m.Content)
			}
		case *agents.PermissionRequestMessage:
			fmt.Printf("permission needed (%s): %s, reply with /approve or /deny\n", m.Level, m.Tool)
		case *agents.ComputerActionMessage:
			fmt.Println("computer:", m.Action, m.Detail)
		case *agents.UserMessage, *agents.ComputerScreenshotMessage:
		}
		n++
	}
	p.printed[id] = n
}

// ABOUTME: Live event stream over the gateway websocket
// ABOUTME: Prints friend, inbox, and heartbeat events as they arrive

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/signing"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live events from the gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		u, err := url.Parse(client.baseURL + "/api/events")
		if err != nil {
			return err
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}

		timestampMs := time.Now().UnixMilli()
		nonce, err := signing.GenerateNonce()
		if err != nil {
			return err
		}
		message := signing.BuildSignMessage(http.MethodGet, u.Path, timestampMs, nil)
		sig, err := signing.Sign(message, client.id.PrivateKey)
		if err != nil {
			return err
		}
		header := http.Header{}
		header.Set(auth.HeaderClawID, client.id.ClawID)
		header.Set(auth.HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
		header.Set(auth.HeaderSignature, sig)
		header.Set(auth.HeaderNonce, nonce)

		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("connecting to event stream: %w (%s)", err, resp.Status)
			}
			return fmt.Errorf("connecting to event stream: %w", err)
		}
		defer conn.Close()

		color.Green("✓ Connected to %s (ctrl-c to stop)", u.Host)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}()

		for {
			var ev struct {
				Event     string          `json:"event"`
				Payload   json.RawMessage `json:"payload"`
				Timestamp time.Time       `json:"timestamp"`
			}
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}
				return fmt.Errorf("event stream closed: %w", err)
			}
			printEvent(ev.Timestamp, ev.Event, ev.Payload)
		}
	},
}

func printEvent(ts time.Time, name string, payload json.RawMessage) {
	stamp := ts.Local().Format("15:04:05")
	summary := summarizePayload(payload)

	line := fmt.Sprintf("%s  %-20s %s", stamp, name, summary)
	switch {
	case strings.HasPrefix(name, "friend."):
		color.Cyan("%s", line)
	case strings.HasPrefix(name, "inbox."):
		color.Yellow("%s", line)
	default:
		fmt.Println(line)
	}
}

// summarizePayload flattens small payloads to key=value pairs and leaves
// anything unexpected as raw JSON.
func summarizePayload(payload json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return string(payload)
	}
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// ABOUTME: Messaging commands: send, inbox, ack, read
// ABOUTME: Inbox paging runs on sequence numbers, not timestamps

package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type inboxEntry struct {
	EntryID   string    `json:"entry_id"`
	MessageID string    `json:"message_id"`
	Seq       int64     `json:"seq"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func init() {
	sendCmd.Flags().StringSlice("to", nil, "recipient claw id (repeatable; default all accepted friends)")

	inboxCmd.Flags().Int64("after-seq", 0, "only entries with a higher sequence number")
	inboxCmd.Flags().String("status", "", "filter by status (unread, read, acked)")
	inboxCmd.Flags().Int("limit", 0, "maximum entries to fetch")
	inboxCmd.Flags().Bool("full", false, "fetch and print message bodies")

	rootCmd.AddCommand(sendCmd, inboxCmd, ackCmd, readCmd, unreadCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <content>",
	Short: "Send a message to friends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		recipients, _ := cmd.Flags().GetStringSlice("to")

		var resp struct {
			MessageID  string       `json:"message_id"`
			Deliveries []inboxEntry `json:"deliveries"`
		}
		req := map[string]any{"content": args[0], "recipients": recipients}
		if err := client.post("/api/messages", req, &resp); err != nil {
			return err
		}
		color.Green("✓ Message %s delivered to %d recipient(s)", resp.MessageID, len(resp.Deliveries))
		return nil
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List inbox entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if afterSeq, _ := cmd.Flags().GetInt64("after-seq"); afterSeq > 0 {
			q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
		}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			q.Set("status", status)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/api/inbox"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var resp struct {
			Entries []inboxEntry `json:"entries"`
		}
		if err := client.get(path, &resp); err != nil {
			return err
		}
		if len(resp.Entries) == 0 {
			fmt.Println("Inbox is empty.")
			return nil
		}

		full, _ := cmd.Flags().GetBool("full")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tSTATUS\tENTRY\tRECEIVED")
		for _, e := range resp.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
				e.Seq, e.Status, e.EntryID, e.CreatedAt.Local().Format(time.RFC3339))
		}
		w.Flush()

		if full {
			for _, e := range resp.Entries {
				var msg struct {
					SenderID string `json:"sender_id"`
					Content  string `json:"content"`
				}
				if err := client.get("/api/messages/"+e.MessageID, &msg); err != nil {
					return err
				}
				fmt.Println()
				color.Cyan("[seq %d] from %s:", e.Seq, msg.SenderID)
				fmt.Println(msg.Content)
			}
		}
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <entry-id>...",
	Short: "Acknowledge inbox entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyEntryStatus("/api/inbox/ack", "acknowledged", args)
	},
}

var readCmd = &cobra.Command{
	Use:   "read <entry-id>...",
	Short: "Mark inbox entries as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyEntryStatus("/api/inbox/read", "marked read", args)
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show the unread entry count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			Unread int `json:"unread"`
		}
		if err := client.get("/api/inbox/unread-count", &resp); err != nil {
			return err
		}
		fmt.Printf("%d unread\n", resp.Unread)
		return nil
	},
}

func applyEntryStatus(path, verb string, entryIDs []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := client.post(path, map[string][]string{"entry_ids": entryIDs}, &resp); err != nil {
		return err
	}
	color.Green("✓ %d entry(ies) %s", resp.Updated, verb)
	return nil
}

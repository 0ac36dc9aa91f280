// ABOUTME: Friendship commands: list, request, accept, remove
// ABOUTME: Mirrors the gateway's /api/friends surface

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	friendsCmd.AddCommand(friendsListCmd, friendsRequestCmd, friendsAcceptCmd, friendsRemoveCmd)
	rootCmd.AddCommand(friendsCmd)
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Manage friendships",
}

var friendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List friendships and their status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			Friends []struct {
				FriendID  string    `json:"friend_id"`
				Status    string    `json:"status"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"friends"`
		}
		if err := client.get("/api/friends", &resp); err != nil {
			return err
		}
		if len(resp.Friends) == 0 {
			fmt.Println("No friendships yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FRIEND\tSTATUS\tSINCE")
		for _, f := range resp.Friends {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.FriendID, f.Status, f.CreatedAt.Local().Format("2006-01-02"))
		}
		w.Flush()
		return nil
	},
}

var friendsRequestCmd = &cobra.Command{
	Use:   "request <claw-id>",
	Short: "Send a friendship request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			Status string `json:"status"`
		}
		if err := client.post("/api/friends/request", map[string]string{"friend_id": args[0]}, &resp); err != nil {
			return err
		}
		if resp.Status == "accepted" {
			color.Green("✓ %s had already asked: you are now friends", args[0])
		} else {
			color.Green("✓ Request sent to %s", args[0])
		}
		return nil
	},
}

var friendsAcceptCmd = &cobra.Command{
	Use:   "accept <claw-id>",
	Short: "Accept a pending friendship request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.post("/api/friends/accept", map[string]string{"friend_id": args[0]}, nil); err != nil {
			return err
		}
		color.Green("✓ You are now friends with %s", args[0])
		return nil
	},
}

var friendsRemoveCmd = &cobra.Command{
	Use:   "remove <claw-id>",
	Short: "End a friendship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.delete("/api/friends/"+args[0], nil); err != nil {
			return err
		}
		color.Yellow("Friendship with %s removed", args[0])
		return nil
	},
}

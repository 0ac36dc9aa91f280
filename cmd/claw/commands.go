// ABOUTME: Identity and account commands: keygen, register, me, heartbeat, whois
// ABOUTME: Output follows the tabwriter-plus-color style of the admin tooling

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type clawInfo struct {
	ClawID                   string     `json:"claw_id"`
	PublicKey                string     `json:"public_key"`
	EncryptionKey            string     `json:"encryption_key,omitempty"`
	EncryptionKeyFingerprint string     `json:"encryption_key_fingerprint,omitempty"`
	Label                    string     `json:"label,omitempty"`
	LastSeenAt               *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
}

func init() {
	keygenCmd.Flags().String("label", "", "human-readable label for the new identity")
	keygenCmd.Flags().Bool("force", false, "overwrite an existing identity file")
	rootCmd.AddCommand(keygenCmd, registerCmd, meCmd, heartbeatCmd, whoisCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new claw identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := identityPath()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("identity already exists at %s (use --force to replace)", path)
		}

		label, _ := cmd.Flags().GetString("label")
		id, err := newIdentity(label)
		if err != nil {
			return err
		}
		if err := saveIdentity(id); err != nil {
			return err
		}

		color.Green("✓ Identity created")
		fmt.Printf("  Claw ID:  %s\n", id.ClawID)
		fmt.Printf("  File:     %s\n", path)
		fmt.Println()
		fmt.Println("Register it with a gateway: claw register --server <url>")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the local identity with the gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		var info clawInfo
		req := map[string]string{
			"public_key":     client.id.PublicKey,
			"encryption_key": client.id.EncryptionPublicKey,
			"label":          client.id.Label,
		}
		if err := client.post("/api/register", req, &info); err != nil {
			return err
		}

		// Remember which gateway this identity belongs to.
		client.id.Server = client.baseURL
		if err := saveIdentity(client.id); err != nil {
			return err
		}

		color.Green("✓ Registered as %s", info.ClawID)
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the gateway's view of this claw",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var info clawInfo
		if err := client.get("/api/me", &info); err != nil {
			return err
		}
		printClaw(&info)
		return nil
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Tell the gateway this claw is alive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			SeenAt time.Time `json:"seen_at"`
		}
		if err := client.post("/api/heartbeat", map[string]any{}, &resp); err != nil {
			return err
		}
		color.Green("✓ Heartbeat recorded at %s", resp.SeenAt.Local().Format(time.RFC3339))
		return nil
	},
}

var whoisCmd = &cobra.Command{
	Use:   "whois <claw-id>",
	Short: "Look up a friend's public profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var info clawInfo
		if err := client.get("/api/claws/"+args[0], &info); err != nil {
			return err
		}
		printClaw(&info)
		return nil
	},
}

func printClaw(info *clawInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Claw ID:\t%s\n", info.ClawID)
	if info.Label != "" {
		fmt.Fprintf(w, "Label:\t%s\n", info.Label)
	}
	fmt.Fprintf(w, "Public key:\t%s\n", info.PublicKey)
	if info.EncryptionKeyFingerprint != "" {
		fmt.Fprintf(w, "Encryption key:\t%s\n", info.EncryptionKeyFingerprint)
	}
	if info.LastSeenAt != nil {
		fmt.Fprintf(w, "Last seen:\t%s\n", info.LastSeenAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Created:\t%s\n", info.CreatedAt.Local().Format(time.RFC3339))
	w.Flush()
}

// ABOUTME: Relationship and trust commands: bonds, at-risk, layer pinning, trust
// ABOUTME: Read-mostly views over the gateway's relationship and trust state

package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type relationshipInfo struct {
	FriendID       string  `json:"friend_id"`
	Strength       float64 `json:"strength"`
	Layer          string  `json:"layer"`
	ManualOverride bool    `json:"manual_override"`
}

type trustInfo struct {
	FriendID  string   `json:"friend_id"`
	Domain    string   `json:"domain"`
	Q         float64  `json:"q_score"`
	H         *float64 `json:"h_score"`
	N         float64  `json:"n_score"`
	W         float64  `json:"w_score"`
	Composite float64  `json:"composite"`
}

func init() {
	bondsAtRiskCmd.Flags().Float64("margin", 0, "strength distance from a layer boundary")
	bondsAtRiskCmd.Flags().Int("inactive-days", 0, "days without interaction")
	bondsCmd.AddCommand(bondsListCmd, bondsAtRiskCmd, bondsPinCmd, bondsUnpinCmd)

	trustCmd.Flags().String("domain", "", "trust domain (default overall)")
	trustCmd.AddCommand(trustDomainsCmd)

	rootCmd.AddCommand(bondsCmd, trustCmd)
}

var bondsCmd = &cobra.Command{
	Use:   "bonds",
	Short: "Inspect relationship strengths and layers",
}

var bondsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relationships by strength",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			Relationships []relationshipInfo `json:"relationships"`
		}
		if err := client.get("/api/relationships", &resp); err != nil {
			return err
		}
		if len(resp.Relationships) == 0 {
			fmt.Println("No relationships yet.")
			return nil
		}
		printBonds(resp.Relationships)
		return nil
	},
}

var bondsAtRiskCmd = &cobra.Command{
	Use:   "at-risk",
	Short: "List relationships close to dropping a layer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if margin, _ := cmd.Flags().GetFloat64("margin"); margin > 0 {
			q.Set("margin", strconv.FormatFloat(margin, 'f', -1, 64))
		}
		if days, _ := cmd.Flags().GetInt("inactive-days"); days > 0 {
			q.Set("inactive_days", strconv.Itoa(days))
		}
		path := "/api/relationships/at-risk"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var resp struct {
			AtRisk []relationshipInfo `json:"at_risk"`
		}
		if err := client.get(path, &resp); err != nil {
			return err
		}
		if len(resp.AtRisk) == 0 {
			color.Green("No bonds at risk.")
			return nil
		}
		printBonds(resp.AtRisk)
		return nil
	},
}

var bondsPinCmd = &cobra.Command{
	Use:   "pin <claw-id> <layer>",
	Short: "Pin a friend to a layer regardless of strength",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var rec relationshipInfo
		if err := client.put("/api/relationships/"+args[0]+"/layer", map[string]string{"layer": args[1]}, &rec); err != nil {
			return err
		}
		color.Green("✓ %s pinned to %s", rec.FriendID, rec.Layer)
		return nil
	},
}

var bondsUnpinCmd = &cobra.Command{
	Use:   "unpin <claw-id>",
	Short: "Let a friend's layer follow strength again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var rec relationshipInfo
		if err := client.delete("/api/relationships/"+args[0]+"/layer", &rec); err != nil {
			return err
		}
		color.Green("✓ %s back to computed layer %s", rec.FriendID, rec.Layer)
		return nil
	},
}

var trustCmd = &cobra.Command{
	Use:   "trust <claw-id>",
	Short: "Show trust scores for a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		path := "/api/trust/" + args[0]
		if domain, _ := cmd.Flags().GetString("domain"); domain != "" {
			path += "?domain=" + url.QueryEscape(domain)
		}

		var ts trustInfo
		if err := client.get(path, &ts); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Friend:\t%s\n", ts.FriendID)
		fmt.Fprintf(w, "Domain:\t%s\n", ts.Domain)
		fmt.Fprintf(w, "Quality:\t%.3f\n", ts.Q)
		if ts.H != nil {
			fmt.Fprintf(w, "Honesty:\t%.3f\n", *ts.H)
		} else {
			fmt.Fprintf(w, "Honesty:\tunobserved\n")
		}
		fmt.Fprintf(w, "Network:\t%.3f\n", ts.N)
		fmt.Fprintf(w, "Witness:\t%.3f\n", ts.W)
		fmt.Fprintf(w, "Composite:\t%.3f\n", ts.Composite)
		w.Flush()
		return nil
	},
}

var trustDomainsCmd = &cobra.Command{
	Use:   "domains <claw-id>",
	Short: "List per-domain composite scores for a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var resp struct {
			Domains []struct {
				Domain    string  `json:"domain"`
				Composite float64 `json:"composite"`
			} `json:"domains"`
		}
		if err := client.get("/api/trust/"+args[0]+"/domains", &resp); err != nil {
			return err
		}
		if len(resp.Domains) == 0 {
			fmt.Println("No trust domains recorded.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tCOMPOSITE")
		for _, d := range resp.Domains {
			fmt.Fprintf(w, "%s\t%.3f\n", d.Domain, d.Composite)
		}
		w.Flush()
		return nil
	},
}

func printBonds(recs []relationshipInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FRIEND\tSTRENGTH\tLAYER\tPINNED")
	for _, rec := range recs {
		pinned := ""
		if rec.ManualOverride {
			pinned = "yes"
		}
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", rec.FriendID, rec.Strength, rec.Layer, pinned)
	}
	w.Flush()
}

// ABOUTME: Client CLI for claw-gateway: identity management and signed API calls
// ABOUTME: Keys live in an identity file; every request is ed25519-signed

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagServer   string
	flagIdentity string
)

var rootCmd = &cobra.Command{
	Use:   "claw",
	Short: "Command-line client for a claw-gateway server",
	Long: `claw manages a local claw identity and talks to a claw-gateway server.

Every API call is signed with the identity's ed25519 key. Start with
"claw keygen" to create an identity, then "claw register" to announce
it to the gateway.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "",
		"gateway base URL (overrides the identity file and CLAW_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagIdentity, "identity", "",
		fmt.Sprintf("identity file path (default %s)", defaultIdentityPath()))
}

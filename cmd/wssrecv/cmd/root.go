package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported by --version and attached to telemetry.
var Version = "dev"

var (
	verbose bool
	debug   bool
)

// rootCmd receives a single message when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wssrecv",
	Short: "Receive one message from a secure WebSocket server",
	Long: `wssrecv connects to a secure WebSocket (wss://) server, verifies it
against a local trust anchor certificate, waits for exactly one message,
prints it as "Received: <message>" and exits.

With no flags it connects to wss://localhost:8000 and trusts
certs/localhost.crt relative to the working directory.

Examples:
  wssrecv
  wssrecv --cert ./ca.pem --url wss://127.0.0.1:9443/events
  wssrecv --config wssrecv.hcl`,
	Args:          cobra.NoArgs,
	RunE:          runReceive,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}

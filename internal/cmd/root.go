// Package cmd defines the sonara command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sonara",
	Short: "Voice bridge between telephony media streams and a realtime speech engine",
	Long: `sonara answers phone calls through a telephony media stream, bridges the
audio to a hosted realtime speech engine, and gives the engine tools for
callbacks, contact updates, and knowledge-base search.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sonara: %v\n", err)
		os.Exit(1)
	}
}

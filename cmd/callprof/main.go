package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/callprof/internal/logutil"
)

var rootCmd = &cobra.Command{
	Use:   "callprof",
	Short: "Replay recorded call events and report deterministic profiles",
}

func init() {
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(pushCmd)
}

func main() {
	logutil.ConfigureLogger()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

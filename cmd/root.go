// Package cmd implements commands for the sealedbid executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shutter-network/SealedBidRFP/cmd/org"
	"github.com/shutter-network/SealedBidRFP/cmd/rfp"
	"github.com/shutter-network/SealedBidRFP/cmd/serve"
)

var (
	// Path to the configuration file.
	configFile string

	rootCmd = &cobra.Command{
		Use:   "sealedbid",
		Short: "Sealed-bid RFP client",
		Run: func(cmd *cobra.Command, args []string) {
			// Without a sub-command, run the API server.
			serve.RunWithConfig(configFile)
		},
	}
)

// Execute spawns the main entry point after handling the config file.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "./config/local.yml", "path to the config.yml file")

	for _, f := range []func(*cobra.Command){
		serve.Register,
		rfp.Register,
		org.Register,
	} {
		f(rootCmd)
	}
}

// Command agent runs the tradewatch delivery agent: it queues observed
// trade events durably and syncs them to the collector in the background.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradewatch/agent/internal/config"
	"github.com/tradewatch/agent/internal/logging"
)

var version = "0.1.0"

var (
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:          "agent",
		Short:        "tradewatch agent - durable trade event delivery",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logging.Init(os.Stderr, cfg.LogLevel)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tradewatch agent v%s\n", version)
		},
	}
)

func main() {
	rootCmd.AddCommand(runCmd, loginCmd, registerCmd, logoutCmd, statusCmd, flushCmd, exportCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command streamctl serves, fetches and encodes batch streams.
//
// Usage:
//
//	streamctl serve  [--config path]
//	streamctl fetch  <url> --procs a,b [--arg k=v] [--config path] [--max-line-bytes n]
//	streamctl encode --procs a,b [--arg k=v]
//	streamctl config init|validate
package main

import (
	"fmt"
	"os"

	"github.com/danmuck/batchstream/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "streamctl",
	Short:         "Batch stream server and client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime()
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			return nil
		}
		return logging.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "trace, debug, info, warn, error or off (overrides "+logging.EnvLogLevel+")")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "streamctl: %v\n", err)
		os.Exit(1)
	}
}

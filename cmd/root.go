package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mailqueue",
	Short: "Asynchronous email delivery service",
	Long:  "Queues outbound email through RabbitMQ and delivers it with delayed retries, recording every message in SQL.",
}

// Execute runs the root Cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"github.com/spf13/cobra"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Manage broker topology",
}

var topologyDeclareCmd = &cobra.Command{
	Use:   "declare",
	Short: "Declare the exchange, work queue and delay queues",
	Long:  "Declare the RabbitMQ topology and exit. Fails when an existing queue was declared with different arguments.",
	Args:  cobra.NoArgs,
	Run:   runTopologyDeclare,
}

// init registers topology subcommands.
func init() {
	topologyCmd.AddCommand(topologyDeclareCmd)
	rootCmd.AddCommand(topologyCmd)
}

func runTopologyDeclare(_ *cobra.Command, _ []string) {
	cfg, log := mustLoad()

	broker, err := connectBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to declare topology")
	}
	defer broker.Close()

	topology := newTopology(cfg)
	log.Info().
		Str("exchange", topology.Exchange).
		Str("work_queue", topology.WorkQueue).
		Str("initial_delay_queue", topology.InitialDelayQueue).
		Str("retry_delay_queue", topology.RetryDelayQueue).
		Dur("initial_delay", topology.InitialDelay).
		Dur("retry_delay", topology.RetryDelay).
		Msg("topology declared")
}

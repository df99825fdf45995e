package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-mailqueue/app/preparer"
	"github.com/vibast-solutions/ms-go-mailqueue/app/queue"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
	"github.com/vibast-solutions/ms-go-mailqueue/app/service"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued messages",
	Long:  "Consume queued work items from RabbitMQ.",
}

// init registers consume subcommands.
func init() {
	consumeCmd.AddCommand(consumeEmailsCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeEmailsCmd = &cobra.Command{
	Use:   "emails [consumer_name]",
	Short: "Start the email delivery worker",
	Long:  "Start a worker that reads message ids from the work queue, sends the emails and schedules retries.",
	Args:  cobra.MaximumNArgs(1),
	Run:   runConsumeEmails,
}

// runConsumeEmails starts the delivery worker.
func runConsumeEmails(_ *cobra.Command, args []string) {
	cfg, log := mustLoad()

	consumerName := consumerNameFrom(args)
	log = log.With().Str("consumer", consumerName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	locker, closeLocker, err := buildLocker(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build lock backend")
	}
	defer closeLocker()

	emailProvider, err := buildEmailProvider(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build email provider")
	}

	broker, err := connectBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up broker")
	}
	defer broker.Close()

	publisher, err := newPublisher(cfg, broker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open publisher channel")
	}
	defer publisher.Close()

	topology := newTopology(cfg)
	deliveryService := service.NewDeliveryService(
		repository.NewMessageRepository(db, dialect),
		preparer.NewTextChain(cfg.FromEmail),
		emailProvider,
		queue.NewRetryScheduler(publisher, topology),
		locker,
		service.DeliveryConfig{
			MaxRetries:  cfg.MaxRetries,
			SendTimeout: cfg.SendTimeout,
			LockTTL:     cfg.LockTTL,
		},
		log,
	)

	consumer := queue.NewEmailConsumer(broker, deliveryService, topology, consumerName, cfg.ConsumerCount, log)
	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("consumer error")
	}
}

func consumerNameFrom(args []string) string {
	if len(args) == 1 && args[0] != "" {
		return args[0]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "mailqueue-worker"
}

package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-mailqueue/app/controller"
	"github.com/vibast-solutions/ms-go-mailqueue/app/dto"
	"github.com/vibast-solutions/ms-go-mailqueue/app/queue"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
	"github.com/vibast-solutions/ms-go-mailqueue/app/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Start the HTTP (Echo) API that accepts messages, stores them and enqueues them for delivery.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts the HTTP server.
func runServe(_ *cobra.Command, _ []string) {
	cfg, log := mustLoad()

	db, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

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

	producer := queue.NewEmailProducer(publisher, newTopology(cfg))
	messageService := service.NewMessageService(repository.NewMessageRepository(db, dialect), producer, log)
	messageController := controller.NewMessageController(messageService,
		dto.Limits{
			MaxSubjectSize:      cfg.MaxSubjectSize,
			MaxTextSize:         cfg.MaxTextSize,
			MaxEmailAddressSize: cfg.MaxEmailAddressSize,
		},
		controller.Paging{DefaultLimit: cfg.DefaultLimit, DefaultOffset: cfg.DefaultOffset},
	)

	e := setupHTTPServer(messageController, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}

	log.Info().Msg("server stopped")
}

// setupHTTPServer configures the Echo HTTP server and routes.
func setupHTTPServer(messageController *controller.MessageController, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = controller.HTTPErrorHandler

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())

	e.POST("/messages", messageController.Create)
	e.GET("/messages", messageController.List)
	e.GET("/messages/:id", messageController.Get)

	e.GET("/health", messageController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dtfcapture/internal/broker"
	"dtfcapture/internal/config"
	"dtfcapture/internal/constants"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/secrets"
	"dtfcapture/pkg/bootstrap"
	"dtfcapture/pkg/logging"
	"dtfcapture/pkg/models"
	"dtfcapture/pkg/retry"
)

var (
	configFile string
)

// @title           DTF Capture Service API
// @version         1.0
// @description     Live DTF series queries and capture flow operations

// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "capture-service",
		Short: "DTF daily price capture service",
		Long:  "Captures the daily DTF 90-day rate series, persists it and forwards it downstream",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd(), reprocessCmd(), sweepCmd(), triggerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog(serviceName)

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume capture triggers and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Capture Service")

			app := NewApp(cfg, log)
			defer shutdown(app, log)
			if err := app.Initialize(ctx, true); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Service running")
			if err := app.Serve(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func reprocessCmd() *cobra.Command {
	var captureDate, flowID string

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Replay one flow by capture date, flow id or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			defer shutdown(app, log)
			if err := app.Initialize(ctx, false); err != nil {
				return err
			}

			fc, err := app.Reprocess(ctx, &captureDate, &flowID)
			if err != nil {
				log.ErrorwCtx(ctx, "Reprocess failed", "flow_id", fc.ID.String(), "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reprocessed flow %s for %s\n", fc.ID, fc.DateString())
			return nil
		},
	}

	cmd.Flags().StringVar(&captureDate, "capture-date", "", "Capture date (yyyy-MM-dd)")
	cmd.Flags().StringVar(&flowID, "flow-id", "", "Flow id")
	return cmd
}

func sweepCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "List failed or incomplete flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			app := NewApp(cfg, log)
			defer shutdown(app, log)
			if err := app.Initialize(ctx, false); err != nil {
				return err
			}

			states, err := app.Sweep(ctx, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(states)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", constants.DefaultLimit, "Maximum number of flows to list")
	return cmd
}

// triggerCmd publishes a capture trigger, the same message the scheduler sends.
func triggerCmd() *cobra.Command {
	var captureDate string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Publish a capture trigger to the input topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			msg, err := newTriggerMessage(captureDate)
			if err != nil {
				return err
			}

			base := bootstrap.NewBase(cfg, log)
			if err := base.ResolveSecrets(ctx, secrets.NewEnvProvider(cfg)); err != nil {
				return err
			}
			if err := base.InitProducer(); err != nil {
				return err
			}
			defer base.ShutdownBroker()

			engine := retry.NewEngine(log)
			err = engine.Do(ctx, retry.KindBrokerConnect, "trigger.Publish", func(ctx context.Context) error {
				return base.Producer.Publish(ctx, cfg.Broker.Kafka.InputTopic, msg)
			})
			if err != nil {
				return fmt.Errorf("failed to publish trigger: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published trigger %s\n", string(msg.Key))
			return nil
		},
	}

	cmd.Flags().StringVar(&captureDate, "capture-date", "", "Capture date (yyyy-MM-dd), defaults to today")
	return cmd
}

func newTriggerMessage(captureDate string) (broker.Message, error) {
	id := uuid.New()
	builder := models.NewTriggerBuilder().
		WithID(id.String()).
		WithSource(serviceName)

	if captureDate != "" {
		date, err := flow.ParseDate(captureDate)
		if err != nil {
			return broker.Message{}, fmt.Errorf("invalid capture date %q: %w", captureDate, err)
		}
		builder = builder.WithCaptureDate(date)
	}

	body, err := json.Marshal(builder.Build())
	if err != nil {
		return broker.Message{}, fmt.Errorf("failed to marshal trigger: %w", err)
	}

	return broker.Message{
		Key:   []byte(id.String()),
		Value: body,
		Headers: map[string]string{
			constants.HeaderCorrelationID: id.String(),
			constants.HeaderMessageID:     id.String(),
		},
	}, nil
}

func shutdown(app *App, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Errorw("Shutdown failed", "error", err)
	}
}

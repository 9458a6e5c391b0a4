package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/config"
	"github.com/LeonardoBeccarini/plant_env/internal/services/aggregator"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

func main() {
	var (
		cfgFile  string
		interval time.Duration
	)
	rootCmd := &cobra.Command{
		Use:   "plant-aggregator",
		Short: "Folds step events into per-episode summaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile, interval)
		},
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Minute, "aggregation interval")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string, interval time.Duration) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	mq := cfg.MQTT.RabbitMQConfig
	mq.ClientID = "plant-aggregator"
	client, err := rabbitmq.NewRabbitMQConn(ctx, &mq, logger)
	if err != nil {
		logger.Fatal("failed to connect to MQTT broker", zap.Error(err))
	}

	// nil handler: it is injected by the service
	stepSub := rabbitmq.FormatTopic(cfg.MQTT.StepTopic, "+")
	consumer := rabbitmq.NewConsumer(client, nil, logger, stepSub)
	publisher := rabbitmq.NewPublisher(client, "", logger)

	svc := aggregator.NewDataAggregatorService(consumer, publisher, cfg.MQTT.SummaryTopic, interval, logger)
	logger.Info("data aggregator service is running", zap.String("sub", stepSub), zap.Duration("interval", interval))
	svc.Start(ctx)
	return nil
}

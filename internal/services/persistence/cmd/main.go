package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/config"
	"github.com/LeonardoBeccarini/plant_env/internal/services/persistence"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

func main() {
	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "plant-persistence",
		Short: "Stores step events and episode summaries in InfluxDB",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// --- MQTT ---
	mq := cfg.MQTT.RabbitMQConfig
	mq.ClientID = "plant-persistence"
	mqClient, err := rabbitmq.NewRabbitMQConn(ctx, &mq, logger)
	if err != nil {
		logger.Fatal("mqtt connect failed", zap.Error(err))
	}
	stepSub := rabbitmq.FormatTopic(cfg.MQTT.StepTopic, "+")
	summarySub := rabbitmq.FormatTopic(cfg.MQTT.SummaryTopic, "+")
	consumer := rabbitmq.NewConsumer(mqClient, nil, logger, stepSub, summarySub)

	// --- InfluxDB ---
	opts := influxdb2.DefaultOptions().
		SetBatchSize(cfg.Influx.BatchSize).
		SetFlushInterval(uint(cfg.Influx.FlushInterval / time.Millisecond))
	influxClient := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
	defer influxClient.Close()

	writer := persistence.NewWriter(influxClient.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket), logger)
	querier := persistence.NewInfluxQuerier(influxClient, cfg.Influx.Org, cfg.Influx.Bucket)

	svc, err := persistence.NewService(consumer, writer, querier, logger)
	if err != nil {
		return err
	}

	// --- HTTP ---
	mux := persistence.NewHTTPMux(svc, mqClient, influxClient)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("persistence HTTP listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	logger.Info("persistence running", zap.Strings("subs", []string{stepSub, summarySub}))
	svc.Start(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	logger.Info("persistence: shutdown complete")
	return nil
}

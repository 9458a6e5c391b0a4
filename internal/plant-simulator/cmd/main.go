package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/config"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
	"github.com/LeonardoBeccarini/plant_env/internal/services/controller"
	"github.com/LeonardoBeccarini/plant_env/internal/services/envserver"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

func main() {
	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "plant-sim",
		Short: "Discrete-time plant care simulator",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml in /etc/config or .)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the environment over gRPC (Reset/Step)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgFile)
		},
	}

	var policy string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Tick the plant on a timer, taking actions from MQTT and publishing steps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTicks(cmd.Context(), cfgFile, policy)
		},
	}
	runCmd.Flags().StringVar(&policy, "policy", "none", "fallback policy when no command is latched: none|threshold|random")

	rootCmd.AddCommand(serveCmd, runCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newSimulator(cfg *config.Config) (*plantsim.Simulator, error) {
	var opts []plantsim.Option
	if cfg.Plant.Seed >= 0 {
		opts = append(opts, plantsim.WithSeed(uint64(cfg.Plant.Seed)))
	}
	return plantsim.New(plantsim.DefaultConfig(), opts...)
}

func startHTTP(port int, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func serve(ctx context.Context, cfgFile string) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sim, err := newSimulator(cfg)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}
	grpcServer := envserver.NewServer(envserver.NewHandler(sim, cfg.Plant.ID, logger), logger)

	httpSrv := startHTTP(cfg.HTTP.Port, logger)
	defer shutdownHTTP(httpSrv)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Info("plant environment serving", zap.String("addr", cfg.GRPC.Addr), zap.String("plant", cfg.Plant.ID))
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func runTicks(ctx context.Context, cfgFile, policyName string) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sim, err := newSimulator(cfg)
	if err != nil {
		return err
	}

	var policy plantsim.Policy
	if policyName != "none" {
		policy, err = controller.NewPolicy(policyName, cfg.Controller.SoilGuards, cfg.Controller.WaterReserve,
			uint64(time.Now().UnixNano()), sim.Config())
		if err != nil {
			return fmt.Errorf("%w: %s", err, policyName)
		}
	}

	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT.RabbitMQConfig, logger)
	if err != nil {
		logger.Fatal("MQTT connect failed", zap.Error(err))
	}
	actionTopic := rabbitmq.FormatTopic(cfg.MQTT.ActionTopic, cfg.Plant.ID)
	stepTopic := rabbitmq.FormatTopic(cfg.MQTT.StepTopic, cfg.Plant.ID)
	consumer := rabbitmq.NewConsumer(client, nil, logger, actionTopic)
	publisher := rabbitmq.NewPublisher(client, stepTopic, logger)

	runner := plantsim.NewRunner(sim, plantsim.RunnerConfig{
		PlantID:   cfg.Plant.ID,
		StepTopic: stepTopic,
		MaxSteps:  cfg.Plant.MaxSteps,
	}, policy, consumer, publisher, logger)

	httpSrv := startHTTP(cfg.HTTP.Port, logger)
	defer shutdownHTTP(httpSrv)

	runner.Start(ctx, cfg.Plant.Interval)
	return nil
}

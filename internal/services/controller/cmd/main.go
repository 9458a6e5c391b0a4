package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/config"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
	"github.com/LeonardoBeccarini/plant_env/internal/services/controller"
	"github.com/LeonardoBeccarini/plant_env/internal/services/envserver"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

var _ controller.Env = (*envserver.Client)(nil)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "plant-agent",
		Short: "Drives a simulated plant with a control policy",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml in /etc/config or .)")

	var (
		local    bool
		episodes int
		steps    int
		seed     int64
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Play episodes against the gRPC environment (or an in-process one with --local)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEpisodes(cmd.Context(), cfgFile, local, episodes, steps, seed)
		},
	}
	runCmd.Flags().BoolVar(&local, "local", false, "simulate in process instead of dialing grpc.target")
	runCmd.Flags().IntVar(&episodes, "episodes", 0, "episodes to play (default: controller.episodes)")
	runCmd.Flags().IntVar(&steps, "steps", 0, "steps per episode (default: controller.steps)")
	runCmd.Flags().Int64Var(&seed, "seed", -1, "seed of the first episode, incremented per episode; <0 keeps the source")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Close the loop over MQTT: step events in, action commands out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watch(cmd.Context(), cfgFile)
		},
	}

	rootCmd.AddCommand(runCmd, watchCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildPolicy(cfg *config.Config) (plantsim.Policy, error) {
	return controller.NewPolicy(cfg.Controller.Policy, cfg.Controller.SoilGuards,
		cfg.Controller.WaterReserve, uint64(time.Now().UnixNano()), plantsim.DefaultConfig())
}

func runEpisodes(ctx context.Context, cfgFile string, local bool, episodes, steps int, seed int64) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if episodes <= 0 {
		episodes = cfg.Controller.Episodes
	}
	if steps <= 0 {
		steps = cfg.Controller.Steps
	}
	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	var env controller.Env
	if local {
		sim, err := plantsim.New(plantsim.DefaultConfig())
		if err != nil {
			return err
		}
		env = controller.NewLocalEnv(sim)
	} else {
		client, err := envserver.NewClient(envserver.ClientConfig{
			Target:          cfg.GRPC.Target,
			Timeout:         cfg.GRPC.Timeout,
			BreakerFailures: cfg.GRPC.BreakerFailures,
			BreakerOpenFor:  cfg.GRPC.BreakerOpenFor,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		env = client
	}

	agent := controller.NewAgent(env, policy, cfg.Plant.ID, logger)
	for i := 0; i < episodes; i++ {
		epSeed := seed
		if seed >= 0 {
			epSeed = seed + int64(i)
		}
		res, err := agent.RunEpisode(ctx, epSeed, steps)
		if err != nil {
			return fmt.Errorf("episode %d: %w", i+1, err)
		}
		fmt.Printf("episode=%d steps=%d return=%.2f mean_reward=%.3f mean_soil=%.1f min_water=%.4f pump=%d led=%d condenser=%d\n",
			i+1, res.Steps, res.Return, res.MeanReward, res.MeanSoilHumidity, res.MinWaterLevel,
			res.PumpOn, res.LEDOn, res.CondenserOn)
	}
	return nil
}

func watch(ctx context.Context, cfgFile string) error {
	cfg, logger, err := config.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	mq := cfg.MQTT.RabbitMQConfig
	mq.ClientID = fmt.Sprintf("plant-agent-%s", cfg.Plant.ID)
	client, err := rabbitmq.NewRabbitMQConn(ctx, &mq, logger)
	if err != nil {
		logger.Fatal("MQTT connect failed", zap.Error(err))
	}

	stepSub := rabbitmq.FormatTopic(cfg.MQTT.StepTopic, "+")
	consumer := rabbitmq.NewConsumer(client, nil, logger, stepSub)
	publisher := rabbitmq.NewPublisher(client, "", logger)

	ctrl := controller.NewController(consumer, publisher, policy, cfg.MQTT.ActionTopic, logger)
	logger.Info("controller running", zap.String("sub", stepSub), zap.String("policy", cfg.Controller.Policy))
	ctrl.Start(ctx)
	return nil
}

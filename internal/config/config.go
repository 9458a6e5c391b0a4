// Package config loads the configuration shared by the plant binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Plant      PlantConfig      `mapstructure:"plant"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Influx     InfluxConfig     `mapstructure:"influx"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Controller ControllerConfig `mapstructure:"controller"`
	Log        LogConfig        `mapstructure:"log"`
}

type PlantConfig struct {
	ID       string        `mapstructure:"id"`
	Seed     int64         `mapstructure:"seed"` // <0: time based
	Interval time.Duration `mapstructure:"interval"`
	MaxSteps int           `mapstructure:"max_steps"`
}

type MQTTConfig struct {
	rabbitmq.RabbitMQConfig `mapstructure:",squash"`

	ActionTopic  string `mapstructure:"action_topic"`
	StepTopic    string `mapstructure:"step_topic"`
	SummaryTopic string `mapstructure:"summary_topic"`
}

type InfluxConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type GRPCConfig struct {
	Addr            string        `mapstructure:"addr"`
	Target          string        `mapstructure:"target"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type ControllerConfig struct {
	Policy       string    `mapstructure:"policy"` // threshold | random
	SoilGuards   []float64 `mapstructure:"soil_guards"`
	WaterReserve float64   `mapstructure:"water_reserve"`
	Episodes     int       `mapstructure:"episodes"`
	Steps        int       `mapstructure:"steps"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("plant.id", "plant-1")
	v.SetDefault("plant.seed", -1)
	v.SetDefault("plant.interval", "1s")
	v.SetDefault("plant.max_steps", 1440)

	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "guest")
	v.SetDefault("mqtt.password", "guest")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.max_retries", 5)
	v.SetDefault("mqtt.action_topic", rabbitmq.ActionTopicTemplate)
	v.SetDefault("mqtt.step_topic", rabbitmq.StepTopicTemplate)
	v.SetDefault("mqtt.summary_topic", rabbitmq.SummaryTopicTemplate)

	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "plantenv")
	v.SetDefault("influx.bucket", "plant")
	v.SetDefault("influx.batch_size", 100)
	v.SetDefault("influx.flush_interval", "1s")

	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("grpc.target", "localhost:50051")
	v.SetDefault("grpc.timeout", "2s")
	v.SetDefault("grpc.breaker_failures", 3)
	v.SetDefault("grpc.breaker_open_for", "10s")

	v.SetDefault("http.port", 8080)

	v.SetDefault("controller.policy", "threshold")
	v.SetDefault("controller.soil_guards", []float64{30, 45})
	v.SetDefault("controller.water_reserve", 0.2)
	v.SetDefault("controller.episodes", 1)
	v.SetDefault("controller.steps", 1440)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads file (or config.yaml from /etc/config and the working directory
// when file is empty), then overlays PLANTENV_* environment variables. A .env
// file in the working directory is loaded first if present.
func Load(file string) (*Config, *viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PLANTENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "plantenv-" + cfg.Plant.ID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Plant.ID) == "" {
		return fmt.Errorf("%w: plant.id is empty", ErrInvalid)
	}
	if c.Plant.Interval <= 0 {
		return fmt.Errorf("%w: plant.interval must be positive", ErrInvalid)
	}
	if c.Plant.MaxSteps < 0 {
		return fmt.Errorf("%w: plant.max_steps must not be negative", ErrInvalid)
	}
	switch c.Controller.Policy {
	case "threshold", "random":
	default:
		return fmt.Errorf("%w: unknown controller.policy %q", ErrInvalid, c.Controller.Policy)
	}
	return nil
}

// Watch calls onChange with the re-decoded configuration every time the
// config file changes. Invalid edits are reported through onErr and ignored.
func Watch(v *viper.Viper, onChange func(*Config), onErr func(error)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

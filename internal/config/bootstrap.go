package config

import (
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/logging"
)

// Bootstrap loads the configuration, builds the logger and keeps the log
// level in sync with the config file.
func Bootstrap(file string) (*Config, *zap.Logger, error) {
	cfg, v, err := Load(file)
	if err != nil {
		return nil, nil, err
	}
	logger, lvl, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	if v.ConfigFileUsed() != "" {
		Watch(v, func(c *Config) {
			if err := logging.SetLevel(lvl, c.Log.Level); err != nil {
				logger.Warn("ignoring log level", zap.Error(err))
				return
			}
			logger.Info("config reloaded", zap.String("log_level", c.Log.Level))
		}, func(err error) {
			logger.Warn("config reload rejected", zap.Error(err))
		})
	}
	return cfg, logger, nil
}

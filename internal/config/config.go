package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	Secret      string        `mapstructure:"secret"`
	DatabaseURL string        `mapstructure:"database_url"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	// AdmissionRecheck is the best-effort re-fetch interval for waiting
	// admission watchers.
	AdmissionRecheck time.Duration `mapstructure:"admission_recheck"`
	JoinLimit        int           `mapstructure:"join_limit"`
	JoinWindow       time.Duration `mapstructure:"join_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")
	v.SetDefault("database_url", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("admission_recheck", "5s")
	v.SetDefault("join_limit", 5)
	v.SetDefault("join_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("postgres", cfg.DatabaseURL != "").Msg("configuration ready")
	return &cfg, nil
}

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	Mode        string `mapstructure:"mode"` // debug, release
}

type GameConfig struct {
	DefaultStartingBalance int64         `mapstructure:"default_starting_balance"`
	DisconnectGrace        time.Duration `mapstructure:"disconnect_grace"`
	LogCapacity            int           `mapstructure:"log_capacity"`
	SendQueueSize          int           `mapstructure:"send_queue_size"`
	Heartbeat              time.Duration `mapstructure:"heartbeat"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("game.default_starting_balance", 1000)
	v.SetDefault("game.disconnect_grace", 30*time.Second)
	v.SetDefault("game.log_capacity", 50)
	v.SetDefault("game.send_queue_size", 64)
	v.SetDefault("game.heartbeat", 60*time.Second)
	v.SetDefault("metrics.namespace", "poolroom")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "poolroom")
}

// LoadConfig reads config.yaml from path. A missing file is not an error:
// defaults and POOLROOM_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("poolroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

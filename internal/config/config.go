package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cron       CronConfig       `mapstructure:"cron"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type AuthConfig struct {
	// APIKey protects the whole /v1 surface; empty disables auth (dev only).
	APIKey string `mapstructure:"api_key"`
	// KeySeed feeds the deterministic per-participant key derivation.
	KeySeed string `mapstructure:"key_seed"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DayClose string `mapstructure:"day_close"`
}

// SettlementConfig carries the transfer cost model and the policy version
// used by the scheduled end-of-day close.
type SettlementConfig struct {
	PolicyVersion    string `mapstructure:"policy_version"`
	FixedCostEUR     string `mapstructure:"fixed_cost_eur"`
	VariableCostRate string `mapstructure:"variable_cost_rate"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KYDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.key_seed", "seed")
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.day_close", "0 5 0 * * *")
	v.SetDefault("settlement.policy_version", "")
	v.SetDefault("settlement.fixed_cost_eur", "0.25")
	v.SetDefault("settlement.variable_cost_rate", "0.001")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

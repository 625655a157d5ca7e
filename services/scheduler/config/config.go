package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel          string
	PostgresDSN       string
	RedisAddr         string
	MetricsAddr       string
	OTelEndpoint      string
	SystemUserID      string
	Timezone          string
	StartupDelay      time.Duration
	SweepInterval     time.Duration
	RoutinaryInterval time.Duration
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:          v.GetString("log_level"),
		PostgresDSN:       v.GetString("postgres_dsn"),
		RedisAddr:         v.GetString("redis_addr"),
		MetricsAddr:       v.GetString("metrics_addr"),
		OTelEndpoint:      v.GetString("otel_endpoint"),
		SystemUserID:      v.GetString("system_user_id"),
		Timezone:          v.GetString("timezone"),
		StartupDelay:      v.GetDuration("startup_delay"),
		SweepInterval:     v.GetDuration("sweep_interval"),
		RoutinaryInterval: v.GetDuration("routinary_interval"),
	}
}

package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	// Auth
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours"`

	// Audit trail
	AuditEnabled bool `mapstructure:"audit_enabled"`

	// Session sweeper
	SessionSweepMinutes int `mapstructure:"session_sweep_minutes"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present so 'go run' works without exporting vars.
	// Missing .env is fine (Docker / production inject real env vars).
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("token_ttl_minutes", 60)
	v.SetDefault("session_ttl_hours", 24)
	v.SetDefault("audit_enabled", true)
	v.SetDefault("session_sweep_minutes", 5)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("sidesa")

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("token_ttl_minutes", "TOKEN_TTL_MINUTES")
	_ = v.BindEnv("session_ttl_hours", "SESSION_TTL_HOURS")
	_ = v.BindEnv("audit_enabled", "AUDIT_ENABLED")
	_ = v.BindEnv("session_sweep_minutes", "SESSION_SWEEP_MINUTES")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	return nil
}

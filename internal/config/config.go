package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"ledger-sync-service/internal/calendar"
)

type Config struct {
	ServerAddress string
	Environment   string
	LogLevel      string
	Database      DatabaseConfig
	Migration     MigrationConfig
	Sync          SyncConfig
	Session       SessionConfig
	Redis         RedisConfig
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Params   string

	// IdleReset wipes the memory store after this long without access.
	// Zero disables it.
	IdleReset time.Duration
}

type MigrationConfig struct {
	Dir string
}

type SyncConfig struct {
	APIKey         string
	PaymentsCutoff calendar.Day
	SalesCutoff    calendar.Day
	TxTimeout      time.Duration
	LockTTL        time.Duration
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// RedisConfig is optional; an empty Address disables the redis-backed
// session store and ingestion locks.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

func setDefaults() {
	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORE_DRIVER", DriverMySQL)
	viper.SetDefault("DB_PORT", 3306)
	viper.SetDefault("DB_PARAMS", "parseTime=true&loc=UTC&multiStatements=true")
	viper.SetDefault("MIGRATION_DIR", "migrations")
	viper.SetDefault("PAYMENTS_CUTOFF", "2025-10-01")
	viper.SetDefault("SALES_CUTOFF", "2025-10-01")
	viper.SetDefault("INGEST_TX_TIMEOUT", "30s")
	viper.SetDefault("INGEST_LOCK_TTL", "60s")
	viper.SetDefault("SESSION_TTL", "24h")
	viper.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("MEMORY_IDLE_RESET", "0s")
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Deployments may configure everything through the environment.
		if !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	paymentsCutoff, err := calendar.Parse(viper.GetString("PAYMENTS_CUTOFF"))
	if err != nil {
		return nil, fmt.Errorf("PAYMENTS_CUTOFF: %w", err)
	}
	salesCutoff, err := calendar.Parse(viper.GetString("SALES_CUTOFF"))
	if err != nil {
		return nil, fmt.Errorf("SALES_CUTOFF: %w", err)
	}

	config := &Config{
		ServerAddress: viper.GetString("SERVER_ADDRESS"),
		Environment:   viper.GetString("ENVIRONMENT"),
		LogLevel:      viper.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Driver:    viper.GetString("STORE_DRIVER"),
			Host:      viper.GetString("DB_HOST"),
			Port:      viper.GetInt("DB_PORT"),
			User:      viper.GetString("DB_USER"),
			Password:  viper.GetString("DB_PASSWORD"),
			Name:      viper.GetString("DB_NAME"),
			Params:    viper.GetString("DB_PARAMS"),
			IdleReset: viper.GetDuration("MEMORY_IDLE_RESET"),
		},
		Migration: MigrationConfig{
			Dir: viper.GetString("MIGRATION_DIR"),
		},
		Sync: SyncConfig{
			APIKey:         viper.GetString("SYNC_API_KEY"),
			PaymentsCutoff: paymentsCutoff,
			SalesCutoff:    salesCutoff,
			TxTimeout:      viper.GetDuration("INGEST_TX_TIMEOUT"),
			LockTTL:        viper.GetDuration("INGEST_LOCK_TTL"),
		},
		Session: SessionConfig{
			TTL:           viper.GetDuration("SESSION_TTL"),
			SweepInterval: viper.GetDuration("SESSION_SWEEP_INTERVAL"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("REDIS_ADDRESS"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Sync.APIKey == "" {
		return errors.New("SYNC_API_KEY is required")
	}
	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("DB_HOST and DB_NAME are required for the mysql store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Database.Driver)
	}
	if c.Sync.TxTimeout <= 0 {
		return errors.New("INGEST_TX_TIMEOUT must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations
func (c *Config) GetMigrationDBURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"KIOSK_SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"KIOSK_DB_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"KIOSK_STORAGE_"`
	Printer   PrinterConfig   `yaml:"printer" envPrefix:"KIOSK_PRINTER_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"KIOSK_SCHEDULER_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"KIOSK_AUTH_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"KIOSK_LOG_"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type StorageConfig struct {
	UploadDir   string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MergedDir   string `yaml:"merged_dir" env:"MERGED_DIR"`
	MaxFileSize int64  `yaml:"max_file_size" env:"MAX_FILE_SIZE"`
}

type PrinterConfig struct {
	// Driver selects the print backend: "lp" sends to CUPS, "simulated"
	// sleeps instead of printing.
	Driver         string        `yaml:"driver" env:"DRIVER"`
	Name           string        `yaml:"name" env:"NAME"`
	LPPath         string        `yaml:"lp_path" env:"LP_PATH"`
	SimulatedDelay time.Duration `yaml:"simulated_delay" env:"SIMULATED_DELAY"`
	SimulatedFail  bool          `yaml:"simulated_fail" env:"SIMULATED_FAIL"`
}

type SchedulerConfig struct {
	// AutoPrint releases queued jobs without an explicit print request.
	AutoPrint      bool          `yaml:"auto_print" env:"AUTO_PRINT"`
	PrintDelay     time.Duration `yaml:"print_delay" env:"PRINT_DELAY"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay     time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	PrepareWorkers int           `yaml:"prepare_workers" env:"PREPARE_WORKERS"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

type AuthConfig struct {
	AdminUsername string        `yaml:"admin_username" env:"ADMIN_USERNAME"`
	AdminPassword string        `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	AdminTokenTTL time.Duration `yaml:"admin_token_ttl" env:"ADMIN_TOKEN_TTL"`
	UserTokenTTL  time.Duration `yaml:"user_token_ttl" env:"USER_TOKEN_TTL"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/kiosk.db",
		},
		Storage: StorageConfig{
			UploadDir:   "./data/uploads",
			MergedDir:   "./data/merged",
			MaxFileSize: 10 << 20,
		},
		Printer: PrinterConfig{
			Driver:         "simulated",
			LPPath:         "lp",
			SimulatedDelay: 2 * time.Second,
		},
		Scheduler: SchedulerConfig{
			AutoPrint:      true,
			PrintDelay:     0,
			MaxRetries:     3,
			RetryDelay:     10 * time.Second,
			PrepareWorkers: 2,
			PollInterval:   time.Second,
		},
		Auth: AuthConfig{
			AdminUsername: "admin",
			AdminTokenTTL: 30 * time.Minute,
			UserTokenTTL:  24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML config file, then applies KIOSK_* environment
// overrides on top. A missing file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}

	if c.Storage.MergedDir == "" {
		return fmt.Errorf("merged directory is required")
	}

	if c.Storage.MaxFileSize < 1 {
		return fmt.Errorf("max file size must be positive")
	}

	switch c.Printer.Driver {
	case "lp", "simulated":
	default:
		return fmt.Errorf("invalid printer driver: %s (valid: lp, simulated)", c.Printer.Driver)
	}

	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}

	if c.Scheduler.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be non-negative")
	}

	if c.Scheduler.PrintDelay < 0 {
		return fmt.Errorf("print delay must be non-negative")
	}

	if c.Scheduler.PrepareWorkers < 1 {
		return fmt.Errorf("prepare workers must be at least 1")
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Auth.AdminUsername == "" {
		return fmt.Errorf("admin username is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

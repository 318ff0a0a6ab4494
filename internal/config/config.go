package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	Reports struct {
		FontPath string `yaml:"font_path"`
	} `yaml:"reports"`
}

// LoadConfig reads .env (if present), the YAML file at CONFIG_PATH (default
// config/config.yaml, optional) and then environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config][dotenv][warn] %v", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load decodes the YAML file at path. A missing file yields an empty config.
func Load(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("JWT_SECRET", &c.Auth.JWTSecret)
	setString("DATABASE_URL", &c.Database.DSN)
	setString("DATABASE_DRIVER", &c.Database.Driver)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("SMTP_HOST", &c.Email.SMTPHost)
	setString("SMTP_USER", &c.Email.SMTPUser)
	setString("SMTP_PASSWORD", &c.Email.SMTPPassword)
	setString("SMTP_FROM", &c.Email.FromEmail)
	if err := setInt("SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	return setInt("SMTP_PORT", &c.Email.SMTPPort)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database url is required (database.url or DATABASE_URL)")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("jwt secret must be at least 16 characters (auth.jwt_secret or JWT_SECRET)")
	}
	return nil
}

// EmailEnabled reports whether assignment emails should be sent.
func (c *Config) EmailEnabled() bool {
	return c.Email.SMTPHost != "" && c.Email.FromEmail != ""
}

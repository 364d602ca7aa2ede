package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither a flag nor DINEPOINT_CONFIG names a file.
const DefaultConfigPath = "config.yaml"

// AppConfig holds process-level options resolved from flags.
type AppConfig struct {
	ConfigPath string
	EnvFile    string
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowOrigins    []string      `yaml:"allow-origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	// TimeZone names the zone bare schedule times are interpreted in.
	TimeZone string `yaml:"time-zone"`
}

// DatabaseConfig names the store; the dialect is detected from the DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig controls session token signing.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig enables the redis session store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// SMTPConfig controls password reset email delivery. An empty host logs mails instead.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// ResolveConfigPath picks the config file path from the flag, the environment, or the default.
func ResolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("DINEPOINT_CONFIG")); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads the YAML file at path (a missing file is allowed), loads envFile
// into the process environment when present, and applies environment overrides.
func Load(path, envFile string) (Config, error) {
	cfg := defaults()

	if envFile != "" {
		if errEnv := godotenv.Load(envFile); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load env file %s: %w", envFile, errEnv)
		}
	}

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	if errEnv := applyEnv(&cfg); errEnv != nil {
		return Config{}, errEnv
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.JWT.Expiry <= 0 {
		return errors.New("config: jwt expiry must be positive")
	}
	if c.Server.TimeZone != "" {
		if _, errLoc := time.LoadLocation(c.Server.TimeZone); errLoc != nil {
			return fmt.Errorf("config: time zone %q: %w", c.Server.TimeZone, errLoc)
		}
	}
	return nil
}

// Location returns the configured business time zone, falling back to local time.
func (c ServerConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowOrigins:    []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{DSN: "file:data/dinepoint.db"},
		JWT:      JWTConfig{Expiry: 24 * time.Hour},
		SMTP:     SMTPConfig{Port: 587},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("LISTEN_ADDR", &cfg.Server.Addr)
	setString("TIME_ZONE", &cfg.Server.TimeZone)
	setString("DATABASE_DSN", &cfg.Database.DSN)
	setString("JWT_SECRET", &cfg.JWT.Secret)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SMTP_HOST", &cfg.SMTP.Host)
	setString("SMTP_USERNAME", &cfg.SMTP.Username)
	setString("SMTP_PASSWORD", &cfg.SMTP.Password)
	setString("SMTP_FROM", &cfg.SMTP.From)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FILE", &cfg.Log.File)

	if v, ok := os.LookupEnv("ALLOW_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowOrigins = origins
	}
	if v, ok := os.LookupEnv("JWT_EXPIRY"); ok && strings.TrimSpace(v) != "" {
		d, errParse := time.ParseDuration(strings.TrimSpace(v))
		if errParse != nil {
			return fmt.Errorf("config: JWT_EXPIRY: %w", errParse)
		}
		cfg.JWT.Expiry = d
	}
	for key, dst := range map[string]*int{"SMTP_PORT": &cfg.SMTP.Port, "REDIS_DB": &cfg.Redis.DB} {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, errAtoi := strconv.Atoi(strings.TrimSpace(v))
		if errAtoi != nil {
			return fmt.Errorf("config: %s: %w", key, errAtoi)
		}
		*dst = n
	}
	return nil
}

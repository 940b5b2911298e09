// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "config.json"

// Config captures all service configuration knobs loaded via Viper.
//
// The first eight fields are required; the remaining ones have defaults.
type Config struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	EmailFrom string `mapstructure:"email_from"`
	EmailTo   string `mapstructure:"email_to"`
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	SMTPUser  string `mapstructure:"smtp_user"`
	SMTPPass  string `mapstructure:"smtp_pass"`

	CrashLog           string `mapstructure:"crash_log"`
	ReportPath         string `mapstructure:"report_path"`
	Workers            int    `mapstructure:"workers"`
	QueueDepth         int    `mapstructure:"queue_depth"`
	SMTPTimeoutSeconds int    `mapstructure:"smtp_timeout_seconds"`
	Development        bool   `mapstructure:"development"`
	ServiceName        string `mapstructure:"service_name"`
}

// Load builds a Config from a JSON file plus ACRA_* environment overrides.
// The file is mandatory.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("ACRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crash_log", "crashes.txt")
	v.SetDefault("report_path", "/report")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_depth", 16)
	v.SetDefault("smtp_timeout_seconds", 15)
	v.SetDefault("development", false)
	v.SetDefault("service_name", "acra-collector")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if !validPort(c.Port) {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("email_from is required")
	}
	if strings.TrimSpace(c.EmailTo) == "" {
		return fmt.Errorf("email_to is required")
	}
	if strings.TrimSpace(c.SMTPHost) == "" {
		return fmt.Errorf("smtp_host is required")
	}
	if !validPort(c.SMTPPort) {
		return fmt.Errorf("smtp_port must be between 1 and 65535")
	}
	if c.SMTPUser == "" || c.SMTPPass == "" {
		return fmt.Errorf("smtp_user and smtp_pass are required")
	}
	if strings.TrimSpace(c.CrashLog) == "" {
		return fmt.Errorf("crash_log must not be empty")
	}
	if !strings.HasPrefix(c.ReportPath, "/") {
		return fmt.Errorf("report_path must start with /")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be > 0")
	}
	if c.SMTPTimeoutSeconds <= 0 {
		return fmt.Errorf("smtp_timeout_seconds must be > 0")
	}
	return nil
}

// ListenAddr joins host and port into an address for http.Server.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPTimeout converts the configured SMTP timeout into a duration.
func (c Config) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	if c.SMTPPass != "" {
		c.SMTPPass = "********"
	}
	return c
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

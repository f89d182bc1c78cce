// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail-to-SMS gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// defaultTelstraBaseURL is the Telstra Messaging API v2 root.
const defaultTelstraBaseURL = "https://tapi.telstra.com/v2"

// Config holds the complete application configuration.
type Config struct {
	SMTP    SMTPConfig    `yaml:"smtp"`
	Telstra TelstraConfig `yaml:"telstra"`
	SMS     SMSConfig     `yaml:"sms"`
	Forward ForwardConfig `yaml:"forward"`
	SES     SESConfig     `yaml:"ses"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the inbound SMTP listener configuration.
type SMTPConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// TelstraConfig holds Telstra Messaging API credentials.
type TelstraConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SMSConfig holds the forwarding rule: who may send, and where the SMS goes.
type SMSConfig struct {
	To          string `yaml:"to"`
	FromAddress string `yaml:"from_address"`
}

// ForwardConfig holds the optional message dispositions.
type ForwardConfig struct {
	To                     string `yaml:"to"`
	Provider               string `yaml:"provider"`
	RejectUnexpectedSender bool   `yaml:"reject_unexpected_sender"`
}

// SESConfig holds AWS SES credentials used to relay forwarded mail.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports every missing required value in a single error.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"TELSTRA_API_BASE_URL", c.Telstra.BaseURL},
		{"TELSTRA_API_CLIENT_ID", c.Telstra.ClientID},
		{"TELSTRA_API_CLIENT_SECRET", c.Telstra.ClientSecret},
		{"SMS_TO_ADDRESS", c.SMS.To},
		{"FROM_ADDRESS", c.SMS.FromAddress},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	switch c.Forward.Provider {
	case "", "stdout":
	case "ses":
		if !c.SESConfigured() {
			errs = append(errs, errors.New("FORWARD_PROVIDER=ses requires SES_REGION and SES_SENDER"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FORWARD_PROVIDER %q", c.Forward.Provider))
	}

	if c.SMTP.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("SMTP_MAX_MESSAGE_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// SESConfigured returns true if the SES region and sender are set.
// Access keys are optional; the default AWS credential chain is used
// without them.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// ForwardEnabled returns true if accepted mail should be forwarded.
func (c *Config) ForwardEnabled() bool {
	return c.Forward.To != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.Telstra.BaseURL = defaultTelstraBaseURL
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SMTP.MaxMessageSize = size
		}
	}

	if v := os.Getenv("TELSTRA_API_BASE_URL"); v != "" {
		c.Telstra.BaseURL = v
	}
	if v := os.Getenv("TELSTRA_API_CLIENT_ID"); v != "" {
		c.Telstra.ClientID = v
	}
	if v := os.Getenv("TELSTRA_API_CLIENT_SECRET"); v != "" {
		c.Telstra.ClientSecret = v
	}

	if v := os.Getenv("SMS_TO_ADDRESS"); v != "" {
		c.SMS.To = v
	}
	if v := os.Getenv("FROM_ADDRESS"); v != "" {
		c.SMS.FromAddress = v
	}

	if v := os.Getenv("FORWARD_TO"); v != "" {
		c.Forward.To = v
	}
	if v := os.Getenv("FORWARD_PROVIDER"); v != "" {
		c.Forward.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("REJECT_UNEXPECTED_SENDER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Forward.RejectUnexpectedSender = b
		}
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

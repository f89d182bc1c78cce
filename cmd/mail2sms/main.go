// Package main is the entry point for the mail-to-SMS gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shineum/mail2sms/internal/config"
	"github.com/shineum/mail2sms/internal/email"
	"github.com/shineum/mail2sms/internal/forwarder"
	"github.com/shineum/mail2sms/internal/provider"
	"github.com/shineum/mail2sms/internal/provider/ses"
	"github.com/shineum/mail2sms/internal/provider/stdout"
	"github.com/shineum/mail2sms/internal/smtp"
	"github.com/shineum/mail2sms/internal/telstra"
	smtptls "github.com/shineum/mail2sms/internal/tls"
)

const defaultEnvFile = ".env"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", defaultEnvFile, "path to a dotenv file loaded into the environment")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlsConfig, err := smtptls.LoadOrGenerateTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsMode = "file"
	}

	relay, err := selectRelay(ctx, cfg)
	if err != nil {
		slog.Error("failed to setup forward relay", "error", err)
		os.Exit(1)
	}

	api := telstra.New(telstra.Config{
		BaseURL:      cfg.Telstra.BaseURL,
		ClientID:     cfg.Telstra.ClientID,
		ClientSecret: cfg.Telstra.ClientSecret,
	}, http.DefaultClient)

	fwd := forwarder.New(forwarder.Config{
		FromAddress:            cfg.SMS.FromAddress,
		SMSTo:                  cfg.SMS.To,
		ForwardTo:              cfg.Forward.To,
		RejectUnexpectedSender: cfg.Forward.RejectUnexpectedSender,
	}, api)

	server := smtp.New(smtp.ServerConfig{
		ListenAddr: cfg.SMTP.Listen,
		Hostname:   cfg.SMTP.Hostname,
		Handler: smtp.HandlerFunc(func(ctx context.Context, msg *email.Message) {
			fwd.Handle(ctx, msg)
		}),
		Relay:          relay,
		TLSConfig:      tlsConfig,
		MaxMessageSize: cfg.SMTP.MaxMessageSize,
	})

	slog.Info("starting mail2sms",
		"listen", cfg.SMTP.Listen,
		"telstra_base_url", api.BaseURL(),
		"from_address", cfg.SMS.FromAddress,
		"forward_enabled", cfg.ForwardEnabled(),
		"reject_unexpected_sender", cfg.Forward.RejectUnexpectedSender,
		"tls_mode", tlsMode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	// Blocks until the context is cancelled
	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mail2sms stopped")
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && path == defaultEnvFile && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectRelay chooses the backend for forwarded mail. It returns nil when
// forwarding is disabled. With no explicit FORWARD_PROVIDER, SES is used if
// configured, else stdout.
func selectRelay(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	if !cfg.ForwardEnabled() {
		return nil, nil
	}

	switch cfg.Forward.Provider {
	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("SES relay selected but SES_REGION and SES_SENDER are required")
		}
		return newSESRelay(ctx, cfg)

	case "stdout":
		slog.Info("using stdout relay")
		return stdout.New(), nil

	case "":
		if cfg.SESConfigured() {
			return newSESRelay(ctx, cfg)
		}
		slog.Info("no relay configured, using stdout relay")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown forward provider %q", cfg.Forward.Provider)
	}
}

func newSESRelay(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	slog.Info("using AWS SES relay",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(ctx, ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SES relay: %w", err)
	}
	return p, nil
}

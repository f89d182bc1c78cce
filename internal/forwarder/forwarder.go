// Package forwarder turns a qualifying inbound email into an SMS.
//
// Each invocation runs four steps in order: sender validation, provider
// health check, access token acquisition and SMS submission. The first
// failing step ends the invocation; nothing is retried and nothing is
// carried over to the next invocation.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/mail2sms/internal/email"
	"github.com/shineum/mail2sms/internal/telstra"
)

// Failure categories. Result.Err wraps exactly one of these.
var (
	ErrUnexpectedSender    = errors.New("unexpected from address")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAuthentication      = errors.New("fetching access token")
	ErrSend                = errors.New("sending SMS")
)

// SMSProvider is the messaging API the forwarder drives.
type SMSProvider interface {
	Health(ctx context.Context) (string, error)
	Token(ctx context.Context) (string, error)
	SendSMS(ctx context.Context, accessToken string, msg telstra.SMS) (*telstra.SendResult, error)
}

// Config is the immutable per-process forwarding configuration.
type Config struct {
	// FromAddress is the only envelope sender whose mail is forwarded.
	FromAddress string

	// SMSTo is the destination phone number.
	SMSTo string

	// ForwardTo, when set, receives a copy of every message that passed
	// sender validation, regardless of the SMS outcome.
	ForwardTo string

	// RejectUnexpectedSender makes a sender mismatch refuse the message
	// instead of silently dropping it.
	RejectUnexpectedSender bool
}

// Forwarder handles inbound email events.
type Forwarder struct {
	cfg      Config
	provider SMSProvider
	logger   *slog.Logger
	newID    func() string
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger used for invocation outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// New creates a Forwarder.
func New(cfg Config, provider SMSProvider, opts ...Option) *Forwarder {
	f := &Forwarder{
		cfg:      cfg,
		provider: provider,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handle runs one invocation for msg. Failures are logged and reported in
// the returned Result; they are never propagated to the caller as errors.
func (f *Forwarder) Handle(ctx context.Context, msg *email.Message) Result {
	logger := f.logger.With("invocation_id", f.newID())

	res := f.run(ctx, msg)
	if res.Err != nil {
		logger.Error(res.Err.Error(),
			"stage", res.FailedAt.String(),
			"from", msg.From,
		)
	} else {
		logger.Info(fmt.Sprintf("SMS status: %s (%s)", res.SMS.DeliveryStatus, res.SMS.MessageID),
			"delivery_status", res.SMS.DeliveryStatus,
			"message_id", res.SMS.MessageID,
		)
	}

	f.dispose(ctx, logger, msg, res)
	return res
}

// run is the straight-line pipeline. Every return before the last is an
// early exit for one failed step.
func (f *Forwarder) run(ctx context.Context, msg *email.Message) Result {
	if msg.From != f.cfg.FromAddress {
		return failed(StageSender, fmt.Errorf("%w '%s'", ErrUnexpectedSender, msg.From))
	}

	status, err := f.provider.Health(ctx)
	if err != nil {
		return failed(StageHealth, fmt.Errorf("%w: %w", ErrProviderUnavailable, err))
	}
	if status != telstra.StatusUp {
		return failed(StageHealth, fmt.Errorf("%w: Telstra API is '%s'", ErrProviderUnavailable, status))
	}

	token, err := f.provider.Token(ctx)
	if err != nil {
		return failed(StageAuth, fmt.Errorf("%w: %w", ErrAuthentication, err))
	}

	sent, err := f.provider.SendSMS(ctx, token, telstra.SMS{
		To:   f.cfg.SMSTo,
		Body: Body(msg),
	})
	if err != nil {
		return failed(StageSend, fmt.Errorf("%w: %w", ErrSend, err))
	}

	return Result{SMS: sent}
}

// dispose applies the optional message dispositions. With the zero Config
// it does nothing: the message is neither rejected nor forwarded.
func (f *Forwarder) dispose(ctx context.Context, logger *slog.Logger, msg *email.Message, res Result) {
	if res.FailedAt == StageSender {
		if f.cfg.RejectUnexpectedSender {
			msg.SetReject(ErrUnexpectedSender.Error())
		}
		return
	}

	if f.cfg.ForwardTo == "" {
		return
	}
	if err := msg.Forward(ctx, f.cfg.ForwardTo); err != nil {
		logger.Error("failed to forward message",
			"forward_to", f.cfg.ForwardTo,
			"error", err,
		)
		return
	}
	logger.Info("message forwarded", "forward_to", f.cfg.ForwardTo)
}

// Body composes the SMS text for msg: "<subject> from <sender>".
func Body(msg *email.Message) string {
	subject := msg.Subject
	if subject == "" && msg.Header != nil {
		subject = msg.Header.Get("Subject")
	}
	return fmt.Sprintf("%s from %s", subject, msg.From)
}

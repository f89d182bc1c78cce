// Package ses implements a Provider that relays forwarded mail via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mail2sms/internal/email"
)

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// SESProvider relays raw messages via the AWS SES v2 API.
type SESProvider struct {
	sender string
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESProvider{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		sender: sender,
		client: client,
	}
}

// Relay sends msg to rcpt as a raw message. SES only accepts verified
// identities in the From header, so the original sender moves to Reply-To.
func (s *SESProvider) Relay(ctx context.Context, rcpt string, msg *email.Message) error {
	raw := rewriteHeaders(s.sender, msg)

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{rcpt},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("SES relay to %s failed: %w", rcpt, err)
	}

	slog.Debug("relayed message via SES",
		"rcpt", rcpt,
		"ses_message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// replacedHeaders are dropped from the original header block before relay.
var replacedHeaders = map[string]bool{
	"from":        true,
	"sender":      true,
	"reply-to":    true,
	"return-path": true,
}

// rewriteHeaders returns the raw message with From set to sender and the
// original sender preserved in Reply-To and X-Original-From. The body is
// copied unchanged.
func rewriteHeaders(sender string, msg *email.Message) []byte {
	var buf bytes.Buffer

	originalFrom := msg.From
	if msg.Header != nil && msg.Header.Get("From") != "" {
		originalFrom = msg.Header.Get("From")
	}

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "Reply-To: %s\r\n", originalFrom)
	fmt.Fprintf(&buf, "X-Original-From: %s\r\n", originalFrom)

	head, body := splitMessage(msg.Raw)

	skipping := false
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		// Continuation lines belong to the previous header.
		if line[0] == ' ' || line[0] == '\t' {
			if !skipping {
				buf.WriteString(line + "\r\n")
			}
			continue
		}

		name, _, _ := strings.Cut(line, ":")
		skipping = replacedHeaders[strings.ToLower(strings.TrimSpace(name))]
		if !skipping {
			buf.WriteString(line + "\r\n")
		}
	}

	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// splitMessage separates the header block from the body at the first empty
// line. A message without an empty line is all header.
func splitMessage(raw []byte) (string, []byte) {
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))

	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return string(raw[:crlf]), raw[crlf+4:]
	case lf >= 0:
		return string(raw[:lf]), raw[lf+2:]
	default:
		return string(raw), nil
	}
}

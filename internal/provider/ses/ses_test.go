package ses

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/mail2sms/internal/email"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendErr   error
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func testMessage() *email.Message {
	raw := strings.Join([]string{
		"From: Alerts <alerts@example.org>",
		"Reply-To: noreply@example.org",
		"Return-Path: <bounce@example.org>",
		"To: sms@example.org",
		"Subject: 1 NEW: goodies",
		"X-Custom: folded",
		"  continuation",
		"",
		"Test body",
		"",
		"Second paragraph",
	}, "\r\n")

	return &email.Message{
		From: "alerts@example.org",
		To:   "sms@example.org",
		Header: mail.Header{
			"From":    {"Alerts <alerts@example.org>"},
			"Subject": {"1 NEW: goodies"},
		},
		Subject: "1 NEW: goodies",
		Raw:     []byte(raw),
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("relay@example.org", &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestRelay(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("relay@example.org", mock)

	if err := p.Relay(context.Background(), "archive@example.org", testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if got := *input.FromEmailAddress; got != "relay@example.org" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "relay@example.org")
	}
	if len(input.Destination.ToAddresses) != 1 || input.Destination.ToAddresses[0] != "archive@example.org" {
		t.Errorf("ToAddresses: got %v, want [archive@example.org]", input.Destination.ToAddresses)
	}
	if input.Content.Raw == nil {
		t.Fatal("expected raw content, got nil")
	}
	if input.Content.Simple != nil {
		t.Error("expected no simple content when relaying raw")
	}
}

func TestRelay_RewritesHeaders(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("relay@example.org", mock)

	if err := p.Relay(context.Background(), "archive@example.org", testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(mock.lastInput.Content.Raw.Data)

	relayed, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("relayed message does not parse: %v", err)
	}

	if got := relayed.Header.Get("From"); got != "relay@example.org" {
		t.Errorf("From: got %q, want %q", got, "relay@example.org")
	}
	if got := relayed.Header.Get("Reply-To"); got != "Alerts <alerts@example.org>" {
		t.Errorf("Reply-To: got %q, want %q", got, "Alerts <alerts@example.org>")
	}
	if got := relayed.Header.Get("X-Original-From"); got != "Alerts <alerts@example.org>" {
		t.Errorf("X-Original-From: got %q, want %q", got, "Alerts <alerts@example.org>")
	}
	if got := relayed.Header.Get("Return-Path"); got != "" {
		t.Errorf("Return-Path: got %q, want empty", got)
	}
	if got := relayed.Header.Get("Subject"); got != "1 NEW: goodies" {
		t.Errorf("Subject: got %q, want %q", got, "1 NEW: goodies")
	}
	if got := relayed.Header.Get("X-Custom"); got != "folded continuation" {
		t.Errorf("X-Custom: got %q, want %q", got, "folded continuation")
	}
	if len(relayed.Header["From"]) != 1 {
		t.Errorf("From headers: got %d, want 1", len(relayed.Header["From"]))
	}
	if !strings.HasSuffix(raw, "\r\n\r\nTest body\r\n\r\nSecond paragraph") {
		t.Errorf("body not preserved, got %q", raw)
	}
}

func TestRelay_FallsBackToEnvelopeSender(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("relay@example.org", mock)

	msg := &email.Message{
		From: "envelope@example.org",
		Raw:  []byte("Subject: hi\n\nbody"),
	}
	if err := p.Relay(context.Background(), "archive@example.org", msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(mock.lastInput.Content.Raw.Data)
	if !strings.Contains(raw, "Reply-To: envelope@example.org\r\n") {
		t.Errorf("raw message missing envelope Reply-To, got %q", raw)
	}
	if !strings.HasSuffix(raw, "Subject: hi\r\n\r\nbody") {
		t.Errorf("unexpected raw message %q", raw)
	}
}

func TestRelay_Error(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{sendErr: errors.New("MessageRejected")}
	p := NewWithClient("relay@example.org", mock)

	err := p.Relay(context.Background(), "archive@example.org", testMessage())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "MessageRejected") {
		t.Errorf("error should wrap SES error, got %q", err.Error())
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1 (no retries)", mock.callCount)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantHead string
		wantBody string
	}{
		{name: "crlf", raw: "A: 1\r\nB: 2\r\n\r\nbody", wantHead: "A: 1\r\nB: 2", wantBody: "body"},
		{name: "lf", raw: "A: 1\n\nbody\r\n\r\nmore", wantHead: "A: 1", wantBody: "body\r\n\r\nmore"},
		{name: "headers only", raw: "A: 1\r\n", wantHead: "A: 1\r\n", wantBody: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			head, body := splitMessage([]byte(tt.raw))
			if head != tt.wantHead {
				t.Errorf("head: got %q, want %q", head, tt.wantHead)
			}
			if string(body) != tt.wantBody {
				t.Errorf("body: got %q, want %q", body, tt.wantBody)
			}
		})
	}
}

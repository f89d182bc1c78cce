package parser

import (
	"strings"
	"testing"
)

func TestParse_EnvelopeAndHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Alerts <alerts@example.org>",
		"To: sms@example.org",
		"Subject: 1 NEW: goodies",
		"Message-Id: <test123@example.org>",
		"",
		"Test",
	}, "\r\n"))

	msg, err := Parse("from@example.org", "to@example.org", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.From != "from@example.org" {
		t.Errorf("From: got %q, want %q", msg.From, "from@example.org")
	}
	if msg.To != "to@example.org" {
		t.Errorf("To: got %q, want %q", msg.To, "to@example.org")
	}
	if msg.Subject != "1 NEW: goodies" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "1 NEW: goodies")
	}
	if got := msg.Header.Get("Message-Id"); got != "<test123@example.org>" {
		t.Errorf("Message-Id: got %q, want %q", got, "<test123@example.org>")
	}
	if string(msg.Raw) != string(raw) {
		t.Error("Raw should hold the message exactly as received")
	}
	if msg.Hooks != nil {
		t.Error("Hooks should be left for the caller to attach")
	}
}

func TestParse_CaseInsensitiveSubject(t *testing.T) {
	t.Parallel()

	raw := []byte("subject: lower case key\r\n\r\nbody")

	msg, err := Parse("a@example.org", "b@example.org", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Subject != "lower case key" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "lower case key")
	}
	if got := msg.Header.Get("SUBJECT"); got != "lower case key" {
		t.Errorf("Header.Get(SUBJECT): got %q, want %q", got, "lower case key")
	}
}

func TestParse_HeadersOnly(t *testing.T) {
	t.Parallel()

	msg, err := Parse("a@example.org", "b@example.org", []byte("Subject: no body\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "no body" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "no body")
	}
}

func TestParse_EmptyMessage(t *testing.T) {
	t.Parallel()

	msg, err := Parse("a@example.org", "b@example.org", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "" {
		t.Errorf("Subject: got %q, want empty", msg.Subject)
	}
}

func TestParse_MissingSubject(t *testing.T) {
	t.Parallel()

	msg, err := Parse("a@example.org", "b@example.org", []byte("From: a@example.org\r\n\r\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "" {
		t.Errorf("Subject: got %q, want empty", msg.Subject)
	}
}

func TestParse_BodyWithoutHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare body", raw: "hello\r\n"},
		{name: "not a header line", raw: "this is not a header line\r\n\r\nbody"},
		{name: "leading whitespace", raw: "  indented\r\nSubject: late\r\n\r\nbody"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Parse("a@example.org", "b@example.org", []byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Subject != "" {
				t.Errorf("Subject: got %q, want empty", msg.Subject)
			}
			if len(msg.Header) != 0 {
				t.Errorf("Header: got %v, want empty", msg.Header)
			}
			if string(msg.Raw) != tt.raw {
				t.Errorf("Raw: got %q, want %q", msg.Raw, tt.raw)
			}
			if msg.From != "a@example.org" {
				t.Errorf("From: got %q, want %q", msg.From, "a@example.org")
			}
		})
	}
}

func TestDecodeSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "Hello", want: "Hello"},
		{name: "utf-8 base64", raw: "=?UTF-8?B?SGVsbG8gV29ybGQ=?=", want: "Hello World"},
		{name: "utf-8 quoted-printable", raw: "=?utf-8?q?caf=C3=A9_open?=", want: "café open"},
		{name: "mixed", raw: "Re: =?UTF-8?B?SGk=?= there", want: "Re: Hi there"},
		{name: "unknown charset", raw: "=?x-unknown?q?abc?=", want: "=?x-unknown?q?abc?="},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DecodeSubject(tt.raw); got != tt.want {
				t.Errorf("DecodeSubject(%q): got %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// Package parser turns a raw RFC 5322 message plus its SMTP envelope into an
// email.Message.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/mail2sms/internal/email"
)

// wordDecoder decodes RFC 2047 encoded words. It understands UTF-8,
// ISO-8859-1 and US-ASCII; other charsets leave the subject undecoded.
var wordDecoder = &mime.WordDecoder{}

// Parse builds a Message from the envelope addresses and the raw DATA
// payload. Only the header block is interpreted; the body is kept verbatim
// in Message.Raw.
func Parse(from, to string, raw []byte) (*email.Message, error) {
	header, err := readHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message header: %w", err)
	}

	return &email.Message{
		From:    from,
		To:      to,
		Header:  header,
		Subject: DecodeSubject(header.Get("Subject")),
		Raw:     raw,
	}, nil
}

// readHeader reads the header block. A message made only of headers, with no
// blank separator line, is accepted, and so is one with no headers at all.
func readHeader(raw []byte) (mail.Header, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err == nil {
		return msg.Header, nil
	}

	// mail.ReadMessage rejects an empty header block; treat that as a
	// message with no headers at all.
	if errors.Is(err, io.EOF) && len(bytes.TrimSpace(raw)) == 0 {
		return mail.Header{}, nil
	}

	// A payload that does not open with a header line is all body.
	var protoErr textproto.ProtocolError
	if errors.As(err, &protoErr) {
		slog.Debug("message has no valid header block", "error", err)
		return mail.Header{}, nil
	}
	return nil, err
}

// DecodeSubject decodes RFC 2047 encoded words in a Subject header value.
// If decoding fails the raw value is returned unchanged.
func DecodeSubject(raw string) string {
	if !strings.Contains(raw, "=?") {
		return raw
	}

	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		slog.Debug("failed to decode subject, using raw value",
			"subject", raw,
			"error", err,
		)
		return raw
	}
	return decoded
}

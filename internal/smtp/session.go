package smtp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/mail2sms/internal/email"
	"github.com/shineum/mail2sms/internal/parser"
	"github.com/shineum/mail2sms/internal/provider"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateMailFrom
	stateRcptTo
)

// idleTimeout is the maximum time a session can remain idle before being closed.
const idleTimeout = 60 * time.Second

// maxCommandLine is the longest command line accepted, CRLF included (RFC 5321 4.5.3.1.4).
const maxCommandLine = 512

// Session represents a single SMTP client connection and manages the
// SMTP protocol state machine.
type Session struct {
	conn     net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	state    int
	handler  Handler
	relay    provider.Provider
	hostname string
	maxSize  int64

	// TLS support
	tlsConfig *tls.Config
	tlsActive bool

	// Current transaction
	mailFrom string
	rcptTo   []string
}

// NewSession creates a new SMTP session for the given connection.
func NewSession(conn net.Conn, cfg ServerConfig) *Session {
	cfg.applyDefaults()
	return &Session{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		state:     stateConnected,
		handler:   cfg.Handler,
		relay:     cfg.Relay,
		hostname:  cfg.Hostname,
		maxSize:   cfg.MaxMessageSize,
		tlsConfig: cfg.TLSConfig,
	}
}

// Handle runs the SMTP session, processing commands until the client
// disconnects or an error occurs.
func (s *Session) Handle(ctx context.Context) {
	defer s.conn.Close()

	s.writeLine("220 %s ESMTP mail2sms", s.hostname)

	for {
		select {
		case <-ctx.Done():
			s.writeLine("421 Service shutting down")
			return
		default:
		}

		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Error("failed to set connection deadline", "error", err)
			return
		}

		raw, tooLong, err := readLimitedLine(s.reader, maxCommandLine)
		if err != nil {
			if err != io.EOF {
				slog.Debug("connection read error", "error", err)
			}
			return
		}
		if tooLong {
			s.writeLine("500 5.5.2 Line too long")
			continue
		}

		line := strings.TrimRight(string(raw), "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if done := s.handleCommand(ctx, cmd, arg); done {
			return
		}
	}
}

// handleCommand processes a single SMTP command and returns true if the session should end.
func (s *Session) handleCommand(ctx context.Context, cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		s.handleSTARTTLS()
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		return s.handleDATA(ctx)
	case "RSET":
		s.handleRSET()
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

// handleEHLO processes EHLO/HELO commands.
func (s *Session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.resetTransaction()
	s.state = stateGreeted

	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.hostname, arg)
	if s.tlsConfig != nil && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	s.writeLine("250-8BITMIME")
	s.writeLine("250-SIZE %d", s.maxSize)
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection to TLS.
func (s *Session) handleSTARTTLS() {
	if s.tlsConfig == nil {
		s.writeLine("454 TLS not available")
		return
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Error("TLS handshake failed", "error", err)
		return
	}

	// RFC 3207: the client must greet again after the handshake.
	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.resetTransaction()
	s.state = stateConnected
}

// handleMAIL processes the MAIL FROM command. The null reverse-path
// "<>" is accepted and yields an empty envelope sender.
func (s *Session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.state > stateGreeted {
		s.writeLine("503 Nested MAIL command")
		return
	}

	upper := strings.ToUpper(arg)
	if !strings.HasPrefix(upper, "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	path, params := splitPath(arg[5:])
	addr := extractAddress(path)
	if addr == "" && path != "<>" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	if size, ok := declaredSize(params); ok && size > s.maxSize {
		s.writeLine("552 5.3.4 Message size exceeds fixed limit")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

// handleRCPT processes the RCPT TO command.
func (s *Session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	upper := strings.ToUpper(arg)
	if !strings.HasPrefix(upper, "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	path, _ := splitPath(arg[3:])
	addr := extractAddress(path)
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the message, hands it to the handler and reports the
// handler's disposition to the client. It returns true if the connection
// was lost mid-transfer.
func (s *Session) handleDATA(ctx context.Context) bool {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return false
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	raw, tooBig, err := s.readData()
	if err != nil {
		slog.Error("error reading DATA", "error", err)
		return true
	}
	defer s.resetTransaction()

	if tooBig {
		slog.Warn("message exceeds size limit",
			"from", s.mailFrom,
			"limit", s.maxSize,
		)
		s.writeLine("552 5.3.4 Message size exceeds fixed limit")
		return false
	}

	msg, err := parser.Parse(s.mailFrom, s.rcptTo[0], raw)
	if err != nil {
		slog.Error("failed to parse message", "from", s.mailFrom, "error", err)
		s.writeLine("550 Failed to process message")
		return false
	}

	hooks := &sessionHooks{relay: s.relay}
	msg.Hooks = hooks

	slog.Debug("message received",
		"from", msg.From,
		"to", msg.To,
		"size", msg.Size(),
	)

	s.handler.Handle(ctx, msg)

	if hooks.rejected {
		s.writeLine("550 5.7.1 %s", hooks.reason)
		return false
	}
	s.writeLine("250 OK")
	return false
}

// readData reads dot-stuffed message content up to the terminating line.
// Content past the size limit is consumed and discarded so the session
// stays in sync with the client. Memory use is bounded by the limit plus
// one reader buffer, however long the lines are.
func (s *Session) readData() ([]byte, bool, error) {
	var buf bytes.Buffer
	tooBig := false
	lineStart := true

	for {
		chunk, err := s.reader.ReadSlice('\n')
		if err != nil && err != bufio.ErrBufferFull {
			return nil, false, err
		}
		complete := err == nil

		if lineStart {
			if complete && strings.TrimRight(string(chunk), "\r\n") == "." {
				break
			}
			// Dot-stuffing: lines starting with ".." have the leading dot removed
			if bytes.HasPrefix(chunk, []byte("..")) {
				chunk = chunk[1:]
			}
		}
		lineStart = complete

		if tooBig {
			continue
		}
		if int64(buf.Len()+len(chunk)) > s.maxSize {
			tooBig = true
			buf = bytes.Buffer{}
			continue
		}
		buf.Write(chunk)
	}

	if tooBig {
		return nil, true, nil
	}
	return buf.Bytes(), false, nil
}

// readLimitedLine reads one line including its terminator. A line longer
// than limit is consumed to its end and reported as too long without being
// kept in memory.
func readLimitedLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false

	for {
		chunk, err := r.ReadSlice('\n')
		if err != nil && err != bufio.ErrBufferFull {
			return nil, false, err
		}

		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if err == nil {
			return line, tooLong, nil
		}
	}
}

// handleRSET resets the current transaction state.
func (s *Session) handleRSET() {
	s.resetTransaction()
	s.writeLine("250 OK")
}

// resetTransaction clears the current mail transaction state without
// affecting the greeting.
func (s *Session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil
	if s.state > stateGreeted {
		s.state = stateGreeted
	}
}

// writeLine writes a formatted line to the client, followed by \r\n.
func (s *Session) writeLine(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if _, err := s.writer.WriteString(line + "\r\n"); err != nil {
		slog.Error("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Error("failed to flush to client", "error", err)
	}
}

// sessionHooks are the dispositions a session offers to the handler for
// one message.
type sessionHooks struct {
	relay    provider.Provider
	rejected bool
	reason   string
}

func (h *sessionHooks) Forward(ctx context.Context, rcpt string, msg *email.Message) error {
	if h.relay == nil {
		return email.ErrForwardUnavailable
	}
	return h.relay.Relay(ctx, rcpt, msg)
}

func (h *sessionHooks) Reject(reason string) {
	h.rejected = true
	h.reason = reason
}

// parseCommand splits an SMTP command line into the command verb and its argument.
func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// splitPath separates the path of a MAIL or RCPT argument from any
// trailing ESMTP parameters.
func splitPath(s string) (string, string) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		if end := strings.Index(s, ">"); end >= 0 {
			return s[:end+1], strings.TrimSpace(s[end+1:])
		}
		return s, ""
	}
	path, params, _ := strings.Cut(s, " ")
	return path, strings.TrimSpace(params)
}

// declaredSize returns the value of a SIZE= ESMTP parameter.
func declaredSize(params string) (int64, bool) {
	for _, p := range strings.Fields(params) {
		k, v, ok := strings.Cut(p, "=")
		if !ok || !strings.EqualFold(k, "SIZE") {
			continue
		}
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return size, true
	}
	return 0, false
}

// extractAddress extracts an email address from an SMTP parameter,
// handling both angle-bracket and bare formats.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)

	// Handle angle-bracket format: <user@example.com>
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}

	// Bare address format
	return s
}

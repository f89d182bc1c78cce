package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/shineum/mail2sms/internal/email"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := New(ServerConfig{})
	if s.config.Hostname != "localhost" {
		t.Errorf("Hostname: got %q, want %q", s.config.Hostname, "localhost")
	}
	if s.config.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("MaxMessageSize: got %d, want %d", s.config.MaxMessageSize, defaultMaxMessageSize)
	}
	if s.Addr() != "" {
		t.Errorf("Addr before serving: got %q, want empty", s.Addr())
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	received := make(chan *email.Message, 1)
	s := New(ServerConfig{
		Hostname: "mail.test.com",
		Handler: HandlerFunc(func(_ context.Context, msg *email.Message) {
			received <- msg
		}),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- s.Serve(ctx, ln)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	reader := bufio.NewReader(conn)

	if greeting := readLine(t, reader); !strings.HasPrefix(greeting, "220 mail.test.com") {
		t.Errorf("greeting: got %q", greeting)
	}
	if got := s.Addr(); got != ln.Addr().String() {
		t.Errorf("Addr: got %q, want %q", got, ln.Addr().String())
	}

	sendCmd(t, conn, "HELO client.test.com")
	readLine(t, reader)
	resp := deliver(t, conn, reader, "alerts@example.org", "sms@example.org", "Subject: hi", "", "body")
	if !strings.HasPrefix(resp, "250 ") {
		t.Errorf("DATA reply: got %q, want prefix '250 '", resp)
	}

	select {
	case msg := <-received:
		if msg.Subject != "hi" {
			t.Errorf("Subject: got %q, want %q", msg.Subject, "hi")
		}
	default:
		t.Fatal("handler was not called before the DATA reply")
	}

	expect(t, conn, reader, "QUIT", "221 ")
	conn.Close()

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve: unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServer_ListenAndServe_BadAddress(t *testing.T) {
	t.Parallel()

	s := New(ServerConfig{ListenAddr: "256.0.0.1:-1", Handler: &mockHandler{}})
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Error("expected listen error, got nil")
	}
}

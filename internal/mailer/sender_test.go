package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
)

func TestSMTPSender_Message(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:587", From: "portal@example.com", Username: "portal", Password: "pw"})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	var got *mail.Msg
	s.deliver = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}

	err := s.Send(context.Background(), Mail{To: "ann@example.com", Subject: "Review POL-001", Body: "line one\nline two"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	to, err := got.GetRecipients()
	if err != nil || len(to) != 1 || to[0] != "ann@example.com" {
		t.Errorf("recipients = %v (%v)", to, err)
	}

	var buf bytes.Buffer
	if _, err := got.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"portal@example.com",
		"Subject: Review POL-001",
		"01 Mar 2026 09:00:00",
		"line one",
		"line two",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSMTPSender_ClientOptions(t *testing.T) {
	plain := NewSMTPSender(SMTPConfig{Addr: "localhost:25", From: "portal@example.com"})
	opts, err := plain.clientOptions()
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if len(opts) != 2 {
		t.Errorf("got %d options without credentials, want port and TLS policy only", len(opts))
	}

	authed := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:587", From: "portal@example.com", Username: "portal", Password: "pw"})
	opts, err = authed.clientOptions()
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if len(opts) != 5 {
		t.Errorf("got %d options with credentials, want 5", len(opts))
	}
}

func TestSMTPSender_BadAddress(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "mail.example.com", From: "portal@example.com"})
	err := s.Send(context.Background(), Mail{To: "ann@example.com"})
	if err == nil || !strings.Contains(err.Error(), "parsing smtp address") {
		t.Fatalf("err = %v, want address error", err)
	}
}

func TestSMTPSender_RejectsBadRecipient(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "localhost:25", From: "portal@example.com"})
	s.deliver = func(context.Context, *mail.Msg) error {
		t.Fatal("deliver should not be called")
		return nil
	}
	if err := s.Send(context.Background(), Mail{To: "not an address"}); err == nil {
		t.Fatal("expected an error for an invalid recipient")
	}
}

func TestSMTPSender_WrapsError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "localhost:25", From: "portal@example.com"})
	relayErr := errors.New("550 mailbox unavailable")
	s.deliver = func(context.Context, *mail.Msg) error { return relayErr }

	err := s.Send(context.Background(), Mail{To: "ann@example.com"})
	if !errors.Is(err, relayErr) {
		t.Fatalf("err = %v, want wrapping %v", err, relayErr)
	}
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "localhost:25", From: "portal@example.com"})
	s.deliver = func(context.Context, *mail.Msg) error {
		t.Fatal("deliver should not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Mail{To: "ann@example.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLogSender(t *testing.T) {
	if err := NewLogSender(nil).Send(context.Background(), Mail{To: "ann@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

// Sender delivers a single mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPConfig holds relay settings. Username may be empty for relays that do
// not require authentication.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// SMTPSender delivers mail through an SMTP relay. STARTTLS is used when the
// relay offers it.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, msg *mail.Msg) error
	now     func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{cfg: cfg, now: time.Now}
	s.deliver = s.dialAndSend
	return s
}

func (s *SMTPSender) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.validate(); err != nil {
		return err
	}
	msg, err := s.message(m)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTPSender) message(m Mail) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("mail sender %q: %w", s.cfg.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("mail recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetDateWithValue(s.now().UTC())
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(s.cfg.Addr)
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (s *SMTPSender) clientOptions() ([]mail.Option, error) {
	_, portStr, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parsing smtp address %q: %w", s.cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing smtp port %q: %w", portStr, err)
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts, nil
}

// LogSender writes mail to the log instead of delivering it. It is used when
// no relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, m Mail) error {
	if err := m.validate(); err != nil {
		return err
	}
	s.logger.Info("mail not delivered, no smtp relay configured", "to", m.To, "subject", m.Subject)
	return nil
}

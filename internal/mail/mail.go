// Package mail delivers the emails requested through the send_email tool.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

type Email struct {
	Recipient string
	Subject   string
	Body      string
}

type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender only records the email in the log.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, email Email) error {
	zerolog.Ctx(ctx).Info().
		Str("recipient", email.Recipient).
		Str("subject", email.Subject).
		Int("body_len", len(email.Body)).
		Msg("Email not delivered, no SMTP host configured")
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	Retries  int
}

type SMTPSender struct {
	cfg             SMTPConfig
	initialInterval time.Duration
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &SMTPSender{cfg: cfg, initialInterval: time.Second}
}

// NewSender returns an SMTP sender when a host is configured and a LogSender
// otherwise.
func NewSender(cfg SMTPConfig) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	msg, err := s.message(email)
	if err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)
	attempt := func() error {
		client, err := s.client()
		if err != nil {
			return backoff.Permanent(err)
		}
		sendCtx := ctx
		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
		}
		if err := client.DialAndSendWithContext(sendCtx, msg); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.Retries)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Str("host", s.cfg.Host).Msg("SMTP delivery failed, retrying")
	}
	if err := backoff.RetryNotify(attempt, retry, notify); err != nil {
		return fmt.Errorf("failed to deliver email to %s: %w", email.Recipient, err)
	}

	log.Info().Str("recipient", email.Recipient).Str("subject", email.Subject).Msg("Email delivered")
	return nil
}

func (s *SMTPSender) message(email Email) (*gomail.Msg, error) {
	if strings.TrimSpace(email.Recipient) == "" {
		return nil, errors.New("recipient is required")
	}
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(email.Recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", email.Recipient, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.Body)
	return msg, nil
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

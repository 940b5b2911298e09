// Package mailer delivers notification messages over authenticated,
// encrypted SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/notify"
)

// ErrDelivery wraps every connection, authentication or protocol failure.
var ErrDelivery = errors.New("mail delivery failed")

const (
	implicitTLSPort = 465
	defaultTimeout  = 15 * time.Second
)

// Config holds SMTP server configuration.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
	// TLSConfig replaces the client TLS settings. Nil verifies the server
	// against the system roots and Host.
	TLSConfig *tls.Config
}

// SMTPMailer sends messages through a single SMTP relay. Port 465 uses
// implicit TLS; any other port requires STARTTLS.
type SMTPMailer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an SMTPMailer.
func New(cfg Config, logger *zap.Logger) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp port %d out of range", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}, nil
}

// Send builds msg and delivers it. Malformed addresses are reported as
// notify.ErrInvalidMessage; everything else as ErrDelivery.
func (m *SMTPMailer) Send(ctx context.Context, msg notify.Message) error {
	mm, err := buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("%w: create client: %w", ErrDelivery, err)
	}

	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		m.logger.Error("failed to send email",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	m.logger.Info("email sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if m.cfg.TLSConfig != nil {
		opts = append(opts, mail.WithTLSConfig(m.cfg.TLSConfig))
	}
	// Port goes last so the TLS options above cannot override it.
	return append(opts, mail.WithPort(m.cfg.Port))
}

func buildMessage(msg notify.Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.From(msg.From); err != nil {
		return nil, fmt.Errorf("%w: from address: %w", notify.ErrInvalidMessage, err)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: to address: %w", notify.ErrInvalidMessage, err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mm, nil
}

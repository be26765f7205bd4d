package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP configuration for sending emails.
type Config struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"Shrimp Sense App"`
}

// Validate checks if the Mailer configuration is valid.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("missing SMTP_HOST environment variable")
	}
	if c.Port == 0 {
		return errors.New("missing SMTP_PORT environment variable")
	}
	if c.Username == "" {
		return errors.New("missing SMTP_USERNAME environment variable")
	}
	if c.Password == "" {
		return errors.New("missing SMTP_PASSWORD environment variable")
	}

	return nil
}

// from falls back to the SMTP account when no explicit sender is set.
func (c Config) from() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// Email represents an email message.
type Email struct {
	To      []string
	Subject string
	Body    string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer represents an email sender.
type Mailer struct {
	config Config
	dialer dialer
	logger *zerolog.Logger
}

// NewMailer creates a new Mailer for the given SMTP configuration.
func NewMailer(cfg Config, logger *zerolog.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Mailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}, nil
}

// Send sends a single email. The SMTP exchange is abandoned when ctx is done;
// a send that completes after that point is not reported.
func (m *Mailer) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return errors.New("no recipients specified")
	}

	msg := gomail.NewMessage()
	m.setEmailMessage(msg, email)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

// SendSimple sends a simple text email.
func (m *Mailer) SendSimple(ctx context.Context, to []string, subject, body string) error {
	return m.Send(ctx, Email{
		To:      to,
		Subject: subject,
		Body:    body,
	})
}

// SendResetCode delivers a password reset code to a single address.
func (m *Mailer) SendResetCode(ctx context.Context, to, code string) error {
	body := fmt.Sprintf(
		"You are receiving this because you (or someone else) have requested the reset of the password for your account.\n\n"+
			"Please use the following verification code to reset your password:\n\n"+
			"%s\n\n"+
			"If you did not request this, please ignore this email and your password will remain unchanged.\n",
		code,
	)

	if err := m.SendSimple(ctx, []string{to}, "Password Reset Request", body); err != nil {
		m.logger.Error().Err(err).Msg("failed to send password reset email")
		return err
	}

	m.logger.Info().Msg("password reset email sent")
	return nil
}

func (m *Mailer) setEmailMessage(msg *gomail.Message, email Email) {
	msg.SetAddressHeader("From", m.config.from(), m.config.FromName)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)
}

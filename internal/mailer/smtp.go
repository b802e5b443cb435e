package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/floorreports/internal/model"
)

const (
	deliveryAttempts = 3
	deliveryDelay    = 2 * time.Second

	// DefaultTimeout bounds one SMTP exchange, from dial to QUIT.
	DefaultTimeout = 30 * time.Second
)

// ErrNotConfigured is returned when the SMTP host or sender is missing.
var ErrNotConfigured = errors.New("mailer: not configured")

// Config is the SMTP account and optional PGP key used for delivery.
type Config struct {
	Host         string
	Port         int
	User         string
	Pass         string
	FromAddress  string
	FromName     string
	PGPPublicKey string
}

// NewConfigFromSettings extracts the mail settings from the report settings.
func NewConfigFromSettings(s *model.ReportSettings) *Config {
	if s == nil {
		return &Config{}
	}
	return &Config{
		Host:         s.SMTPHost,
		Port:         s.SMTPPort,
		User:         s.SMTPUser,
		Pass:         s.SMTPPass,
		FromAddress:  s.SMTPFromAddress,
		FromName:     s.SMTPFromName,
		PGPPublicKey: s.PGPPublicKey,
	}
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: SMTP host is empty", ErrNotConfigured)
	}
	if c.FromAddress == "" {
		return fmt.Errorf("%w: sender address is empty", ErrNotConfigured)
	}
	return nil
}

func (c *Config) addr() string {
	port := c.Port
	if port == 0 {
		port = model.DefaultSMTPPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c *Config) auth() smtp.Auth {
	if c.User == "" {
		return nil
	}
	return smtp.PlainAuth("", c.User, c.Pass, c.Host)
}

// Mailer sends emails via SMTP.
type Mailer struct {
	mu     sync.RWMutex
	cfg    *Config
	logger *slog.Logger

	sendFn  func(context.Context, Message) error
	retry   retrypolicy.RetryPolicy[any]
	timeout time.Duration
	now     func() time.Time
}

// New returns a Mailer using cfg. A nil cfg leaves it unconfigured.
func New(cfg *Config) *Mailer {
	if cfg == nil {
		cfg = &Config{}
	}
	m := &Mailer{
		cfg:     cfg,
		logger:  slog.Default(),
		retry:   newRetryPolicy(deliveryDelay),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	m.sendFn = m.smtpSend
	return m
}

func newRetryPolicy(delay time.Duration) retrypolicy.RetryPolicy[any] {
	return retrypolicy.NewBuilder[any]().
		WithMaxAttempts(deliveryAttempts).
		WithDelay(delay).
		ReturnLastFailure().
		Build()
}

// Reconfigure swaps in a new SMTP configuration.
func (m *Mailer) Reconfigure(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// ApplySettings points the mailer at the SMTP account in s.
func (m *Mailer) ApplySettings(s *model.ReportSettings) {
	m.Reconfigure(NewConfigFromSettings(s))
}

// SetTimeout changes how long a single SMTP exchange may take. Non-positive
// values restore DefaultTimeout.
func (m *Mailer) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

func (m *Mailer) config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// CanEncrypt returns nil if a usable PGP public key is configured.
func (m *Mailer) CanEncrypt() error {
	_, err := readKeyRing(m.config().PGPPublicKey)
	return err
}

// Deliver mails doc to a single recipient. Transient failures are retried
// a few times before the last error is returned.
func (m *Mailer) Deliver(ctx context.Context, to string, doc *model.Document, meta model.DeliveryMeta) error {
	cfg := m.config()
	if err := cfg.validate(); err != nil {
		return err
	}

	data := newBodyData(to, meta.GeneratedAt)
	data.Title = doc.Title
	data.Period = meta.PeriodLabel
	body, err := renderBody("report.tmpl", data)
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}

	msg, err := m.compose(cfg, Message{
		To:      []string{to},
		Subject: "KVH " + doc.Title + " - " + meta.PeriodLabel,
		Body:    body,
		Attachments: []Attachment{{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Data:        doc.Data,
		}},
	})
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

// SendTest sends a short plain-text message to check the settings.
func (m *Mailer) SendTest(ctx context.Context, to string) error {
	cfg := m.config()
	if err := cfg.validate(); err != nil {
		return err
	}

	body, err := renderBody("test.tmpl", newBodyData(to, m.now()))
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}
	msg, err := m.compose(cfg, Message{
		To:      []string{to},
		Subject: "Testbericht " + companyName,
		Body:    body,
	})
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

// Ping connects to the SMTP server and authenticates without sending.
func (m *Mailer) Ping(ctx context.Context) error {
	cfg := m.config()
	if err := cfg.validate(); err != nil {
		return err
	}

	c, err := m.dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

// dial opens an SMTP session, upgrades it with STARTTLS when offered and
// logs in. The whole session shares one deadline: the mailer timeout or the
// ctx deadline, whichever comes first.
func (m *Mailer) dial(ctx context.Context, cfg *Config) (*smtp.Client, error) {
	m.mu.RLock()
	timeout := m.timeout
	m.mu.RUnlock()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	d := net.Dialer{Timeout: timeout, Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("mailer: dial: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mailer: set deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mailer: handshake: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			c.Close()
			return nil, fmt.Errorf("mailer: starttls: %w", err)
		}
	}
	if auth := cfg.auth(); auth != nil {
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("mailer: auth: %w", err)
		}
	}
	return c, nil
}

// compose encrypts the message body when a PGP key is configured.
func (m *Mailer) compose(cfg *Config, msg Message) (Message, error) {
	if cfg.PGPPublicKey == "" {
		return msg, nil
	}
	entities, err := readKeyRing(cfg.PGPPublicKey)
	if err != nil {
		return Message{}, err
	}
	encrypted, err := encrypt(mimeBody(msg.Body, msg.Attachments), entities)
	if err != nil {
		return Message{}, fmt.Errorf("pgp encryption: %w", err)
	}
	msg.Encrypted = encrypted
	return msg, nil
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	attempt := 0
	err := failsafe.With(m.retry).WithContext(ctx).Run(func() error {
		attempt++
		err := m.sendFn(ctx, msg)
		if err != nil {
			m.logger.Warn("mailer: send attempt failed", "to", msg.To, "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("mailer: send to %v: %w", msg.To, err)
	}
	return nil
}

func (m *Mailer) smtpSend(ctx context.Context, msg Message) error {
	cfg := m.config()
	c, err := m.dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(cfg.FromAddress); err != nil {
		return fmt.Errorf("mailer: mail from: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("mailer: rcpt %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: data: %w", err)
	}
	if _, err := w.Write([]byte(m.formatMessage(msg))); err != nil {
		w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: end data: %w", err)
	}
	return c.Quit()
}

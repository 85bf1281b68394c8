// api_key_expiry_notifier.go implements the APIKeyExpiryNotifier background job, which
// periodically scans for API keys approaching their expiry date and sends a warning email
// to the owning user. Notification state is persisted with the key (expiry_notified_on) so
// each key is warned about once, across restarts. The job is a no-op when
// notifications.enabled is false or the SMTP host is not configured.
package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/config"
	"github.com/bi-platform/apikeys/internal/db/models"
	"github.com/bi-platform/apikeys/internal/safego"
	"github.com/bi-platform/apikeys/internal/telemetry"
	"github.com/bi-platform/apikeys/internal/users"
)

// Recipients resolves the owner of a key to a mailbox.
type Recipients interface {
	Lookup(id string) (users.User, bool)
}

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// APIKeyExpiryNotifier periodically emails users whose API keys are about to expire.
type APIKeyExpiryNotifier struct {
	store      apikeys.ExpiryStore
	recipients Recipients
	cfg        *config.NotificationsConfig
	mailer     Mailer
	clock      clock.Clock
	interval   time.Duration
	window     time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NotifierOption customises an APIKeyExpiryNotifier.
type NotifierOption func(*APIKeyExpiryNotifier)

// WithMailer replaces the SMTP mailer.
func WithMailer(m Mailer) NotifierOption {
	return func(n *APIKeyExpiryNotifier) { n.mailer = m }
}

// WithClock sets the time source used for the expiry window.
func WithClock(c clock.Clock) NotifierOption {
	return func(n *APIKeyExpiryNotifier) { n.clock = c }
}

// NewAPIKeyExpiryNotifier creates a new APIKeyExpiryNotifier.
// The check interval defaults to 24h and the warning window to 7 days.
func NewAPIKeyExpiryNotifier(
	store apikeys.ExpiryStore,
	recipients Recipients,
	cfg *config.NotificationsConfig,
	opts ...NotifierOption,
) *APIKeyExpiryNotifier {
	hours := cfg.APIKeyExpiryCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	days := cfg.APIKeyExpiryWarningDays
	if days <= 0 {
		days = 7
	}
	n := &APIKeyExpiryNotifier{
		store:      store,
		recipients: recipients,
		cfg:        cfg,
		mailer:     NewSMTPMailer(cfg.SMTP),
		clock:      clock.System{},
		interval:   time.Duration(hours) * time.Hour,
		window:     time.Duration(days) * 24 * time.Hour,
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start runs the expiry-notification loop until ctx is cancelled or Stop is called.
// It checks once immediately, then on the configured interval.
func (n *APIKeyExpiryNotifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		slog.Info("api key expiry notifier disabled", "reason", "notifications.enabled=false")
		return
	}
	if n.cfg.SMTP.Host == "" {
		slog.Info("api key expiry notifier disabled", "reason", "notifications.smtp.host not set")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("api key expiry notifier started", "interval", n.interval, "window", n.window)

	n.tick(ctx)
	for {
		select {
		case <-ticker.C:
			n.tick(ctx)
		case <-n.stopChan:
			slog.Info("api key expiry notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("api key expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit. Safe to call more than once.
func (n *APIKeyExpiryNotifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopChan) })
}

func (n *APIKeyExpiryNotifier) tick(ctx context.Context) {
	safego.Run("api key expiry check", func() {
		if _, err := n.RunCheck(ctx); err != nil {
			slog.Error("api key expiry check failed", "error", err)
		}
	})
}

// RunCheck performs one pass: it emails the owner of every key expiring inside the warning
// window and stamps the key so it is not warned about again. Keys whose owner has no known
// email are skipped and left unstamped. It returns the number of warnings sent.
func (n *APIKeyExpiryNotifier) RunCheck(ctx context.Context) (int, error) {
	now := n.clock.Now()
	keys, err := n.store.FindExpiring(ctx, now, n.window)
	if err != nil {
		return 0, fmt.Errorf("failed to query expiring keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	slog.Info("api keys approaching expiry", "count", len(keys))

	sent := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		user, ok := n.recipients.Lookup(key.UserID)
		if !ok || user.Email == "" {
			slog.Debug("no email for key owner, skipping expiry warning", "key_id", key.ID, "user_id", key.UserID)
			continue
		}

		subject, body := composeExpiryEmail(user, key, now)
		if err := n.mailer.Send(ctx, user.Email, subject, body); err != nil {
			slog.Warn("failed to send expiry warning", "key_id", key.ID, "user_id", key.UserID, "error", err)
			continue
		}
		telemetry.APIKeyExpiryNotificationsSentTotal.Inc()
		sent++

		if err := n.store.MarkExpiryNotified(ctx, key.ID, now); err != nil {
			slog.Error("failed to mark expiry warning sent", "key_id", key.ID, "error", err)
		}
	}
	return sent, nil
}

// composeExpiryEmail builds the warning subject and body. Only the key prefix is included.
func composeExpiryEmail(user users.User, key *models.APIKey, now time.Time) (subject, body string) {
	expiresOn := *key.ExpiresOn
	daysLeft := int(math.Ceil(expiresOn.Sub(now).Hours() / 24))
	if daysLeft < 0 {
		daysLeft = 0
	}

	name := user.Name
	if name == "" {
		name = user.ID
	}

	subject = fmt.Sprintf("Action Required: API key '%s' expires in %d day(s)", oneLine(key.Name), daysLeft)
	body = strings.Join([]string{
		fmt.Sprintf("Hello %s,", name),
		"",
		fmt.Sprintf("Your API key '%s' (%s...) in workspace '%s' will expire on %s (%d day(s) from now).",
			oneLine(key.Name), key.KeyPrefix, oneLine(key.WorkspaceName), expiresOn.UTC().Format(time.RFC1123), daysLeft),
		"",
		"To avoid service disruption, create a replacement key before the expiry date",
		"and update any clients that use this one.",
		"",
		"If you no longer need this key, no action is required.",
	}, "\r\n")
	return subject, body
}

// oneLine replaces control characters with spaces so a value cannot start a new header or line.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// SMTPMailer sends mail with net/smtp.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates a mailer for the given server settings.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers a plain-text message. UseTLS selects implicit TLS (SMTPS) and falls back to
// STARTTLS through smtp.SendMail when the TLS dial fails.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		oneLine(m.cfg.From), oneLine(to), oneLine(subject),
	)
	msg := []byte(headers + body + "\r\n")

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, m.cfg.From, []string{to}, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}

// Package recovery resets forgotten master passwords through a one-time
// token mailed to the address on file.
package recovery

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/JoaoSantosCodes/SecureVault/internal/auth"
)

const DefaultTicketTTL = 30 * time.Minute

var (
	ErrRateLimited    = errors.New("recovery: too many reset requests")
	ErrMailerDisabled = errors.New("recovery: no mailer configured")
)

// Registry is the part of auth.Registry the service needs.
type Registry interface {
	UserByEmail(email string) (string, auth.Profile, error)
	IssueResetTicket(username string, ttl time.Duration) (string, time.Time, error)
	RedeemResetTicket(username, token, newPassword string) error
}

type Service struct {
	reg     Registry
	mailer  Mailer
	limiter *multiLimiter
	ttl     time.Duration
	logger  *log.Logger
}

type Option func(*Service)

func WithTicketTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRateLimit allows burst requests per email, refilled at one per every.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(s *Service) { s.limiter = newMultiLimiter(rate.Every(every), burst, every*time.Duration(burst)) }
}

func NewService(reg Registry, mailer Mailer, opts ...Option) *Service {
	s := &Service{
		reg:     reg,
		mailer:  mailer,
		limiter: newMultiLimiter(rate.Every(10*time.Minute), 3, time.Hour),
		ttl:     DefaultTicketTTL,
		logger:  log.New(io.Discard),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RequestReset mails a reset token to email if it belongs to a user. An
// unknown address is not an error, so callers cannot enumerate accounts.
func (s *Service) RequestReset(email string) error {
	if s.mailer == nil || !s.mailer.Enabled() {
		return ErrMailerDisabled
	}
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return fmt.Errorf("%w: email required", auth.ErrInvalidArgument)
	}
	if !s.limiter.allow(key) {
		s.logger.Warn("reset request rate limited", "email", maskForLog(key))
		return ErrRateLimited
	}

	username, _, err := s.reg.UserByEmail(key)
	if errors.Is(err, auth.ErrUserNotFound) {
		s.logger.Debug("reset requested for unknown email", "email", maskForLog(key))
		return nil
	}
	if err != nil {
		return err
	}

	token, expires, err := s.reg.IssueResetTicket(username, s.ttl)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("A password reset was requested for SecureVault user %q.\n\n"+
		"Token: %s\n\nRun `vaultctl recover complete --user %s` and paste the token before %s UTC.\n\n"+
		"If you did not request this, ignore the message.",
		username, token, username, expires.UTC().Format(time.RFC3339))
	if err := s.mailer.Send(Message{To: key, Subject: "Your SecureVault password reset token", Body: body}); err != nil {
		return err
	}
	s.logger.Info("reset ticket issued", "user", username, "expires", expires)
	return nil
}

// CompleteReset sets a new master password if token matches the user's
// outstanding, unexpired ticket. The ticket is consumed on success.
func (s *Service) CompleteReset(username, token, newPassword string) error {
	if err := s.reg.RedeemResetTicket(username, strings.TrimSpace(token), newPassword); err != nil {
		s.logger.Warn("reset redeem failed", "user", username, "err", err)
		return err
	}
	s.logger.Info("password reset", "user", username)
	return nil
}

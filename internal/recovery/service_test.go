package recovery

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaoSantosCodes/SecureVault/internal/auth"
	"github.com/JoaoSantosCodes/SecureVault/internal/config"
	"github.com/JoaoSantosCodes/SecureVault/internal/logging"
)

type captureMailer struct {
	sent []Message
}

func (c *captureMailer) Send(m Message) error {
	c.sent = append(c.sent, m)
	return nil
}

func (c *captureMailer) Enabled() bool { return true }

var tokenLine = regexp.MustCompile(`Token: (\S+)`)

func setup(t *testing.T) (*auth.Registry, *captureMailer) {
	t.Helper()
	reg, err := auth.OpenRegistry(t.TempDir(), auth.WithIterations(1000))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	_, err = reg.CreateUser("carol", "old-pw", "carol@example.com", false)
	require.NoError(t, err)
	return reg, &captureMailer{}
}

func TestResetFlow(t *testing.T) {
	reg, m := setup(t)
	svc := NewService(reg, m)

	require.NoError(t, svc.RequestReset("  Carol@Example.com"))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "carol@example.com", m.sent[0].To)
	match := tokenLine.FindStringSubmatch(m.sent[0].Body)
	require.Len(t, match, 2)

	assert.ErrorIs(t, svc.CompleteReset("carol", "bogus", "new-pw"), auth.ErrInvalidResetToken)
	require.NoError(t, svc.CompleteReset("carol", match[1], "new-pw"))
	assert.True(t, reg.VerifyPassword("carol", "new-pw"))
	assert.False(t, reg.VerifyPassword("carol", "old-pw"))

	// single use
	assert.ErrorIs(t, svc.CompleteReset("carol", match[1], "again"), auth.ErrInvalidResetToken)
}

func TestUnknownEmailIsSilent(t *testing.T) {
	reg, m := setup(t)
	svc := NewService(reg, m)
	require.NoError(t, svc.RequestReset("nobody@example.com"))
	assert.Empty(t, m.sent)
}

func TestRateLimited(t *testing.T) {
	reg, m := setup(t)
	svc := NewService(reg, m, WithRateLimit(time.Hour, 2))
	require.NoError(t, svc.RequestReset("carol@example.com"))
	require.NoError(t, svc.RequestReset("carol@example.com"))
	assert.ErrorIs(t, svc.RequestReset("carol@example.com"), ErrRateLimited)
	assert.Len(t, m.sent, 2)
}

func TestMailerDisabled(t *testing.T) {
	reg, _ := setup(t)
	mailer := NewMailer(config.SMTPConfig{Port: "587"}, logging.Discard())
	assert.False(t, mailer.Enabled())
	assert.ErrorIs(t, NewService(reg, mailer).RequestReset("carol@example.com"), ErrMailerDisabled)
}

func TestNewMailerDefaults(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Host: " smtp.example.com ", From: "vault@example.com"}, logging.Discard())
	sm, ok := m.(*SMTPMailer)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com:587", sm.addr())
	assert.Equal(t, "starttls", sm.cfg.Security)
	assert.Nil(t, sm.auth(sm.cfg.Host))
}

func TestMessageFormat(t *testing.T) {
	raw := string(message("from@x", "to@y", "Hi", "body"))
	assert.Contains(t, raw, "From: from@x\r\n")
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "\r\n\r\nbody\r\n")
	assert.Equal(t, "c***m", maskForLog("carol@example.com"))
	assert.Equal(t, "(none)", maskForLog(""))
}

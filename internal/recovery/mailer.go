package recovery

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/JoaoSantosCodes/SecureVault/internal/config"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(m Message) error
	Enabled() bool
}

type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *log.Logger
}

// NewMailer returns an SMTP mailer, or a NoopMailer when no host or sender
// is configured.
func NewMailer(cfg config.SMTPConfig, logger *log.Logger) Mailer {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	if cfg.Security == "" {
		cfg.Security = "starttls"
	}
	if cfg.Host == "" || cfg.From == "" {
		logger.Debug("mailer disabled; smtp host or from missing")
		return NoopMailer{}
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	logger.Info("mailer enabled", "host", cfg.Host, "port", cfg.Port, "security", cfg.Security, "user", maskForLog(cfg.User))
	return &SMTPMailer{cfg: cfg, logger: logger}
}

type NoopMailer struct{}

func (NoopMailer) Send(Message) error { return nil }
func (NoopMailer) Enabled() bool      { return false }

func (m *SMTPMailer) Enabled() bool { return true }

func (m *SMTPMailer) Send(msg Message) error {
	raw := message(m.cfg.From, msg.To, msg.Subject, msg.Body)
	var err error
	switch m.cfg.Security {
	case "ssl", "smtps":
		err = m.sendSSL(msg.To, raw)
	case "none":
		err = smtp.SendMail(m.addr(), m.auth(m.cfg.Host), m.cfg.From, []string{msg.To}, raw)
	default:
		err = m.sendStartTLS(msg.To, raw)
	}
	if err != nil {
		m.logger.Warn("mail delivery failed", "to", maskForLog(msg.To), "err", err)
		return fmt.Errorf("recovery: send mail: %w", err)
	}
	m.logger.Debug("mail sent", "to", maskForLog(msg.To))
	return nil
}

func (m *SMTPMailer) sendStartTLS(to string, msg []byte) error {
	client, err := smtp.Dial(m.addr())
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	return m.deliver(client, to, msg)
}

func (m *SMTPMailer) sendSSL(to string, msg []byte) error {
	conn, err := tls.Dial("tcp", m.addr(), &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	return m.deliver(client, to, msg)
}

func (m *SMTPMailer) deliver(client *smtp.Client, to string, msg []byte) error {
	if a := m.auth(m.cfg.Host); a != nil {
		if err := client.Auth(a); err != nil {
			return err
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (m *SMTPMailer) auth(host string) smtp.Auth {
	if m.cfg.User == "" || m.cfg.Pass == "" {
		return nil
	}
	return smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, host)
}

func (m *SMTPMailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, m.cfg.Port)
}

func message(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func maskForLog(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 2 {
		return "***"
	}
	return s[:1] + "***" + s[len(s)-1:]
}

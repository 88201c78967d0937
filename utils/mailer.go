package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/classifieds/config"
)

// ErrMailNotConfigured is returned when SMTP settings are missing.
var ErrMailNotConfigured = errors.New("smtp not configured")

// Mail is one outgoing message.
type Mail struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
}

// SMTPMailer delivers mail synchronously over SMTP.
type SMTPMailer struct {
	cfg config.AppConfig
}

// NewSMTPMailer creates a mailer from SMTP settings.
func NewSMTPMailer(cfg config.AppConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers m. The context bounds the whole SMTP conversation.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	cfg := s.cfg
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return ErrMailNotConfigured
	}
	if len(m.To) == 0 {
		return nil
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	msg := buildMessage(cfg, m)

	if !cfg.SMTPTLS {
		// Plain SMTP without TLS (not recommended)
		return smtp.SendMail(addr, auth, cfg.SMTPFrom, m.To, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if cfg.SMTPUsername != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.SMTPFrom); err != nil {
		return err
	}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(cfg config.AppConfig, m Mail) []byte {
	fromName := cfg.SMTPFromName
	if fromName == "" {
		fromName = "Classifieds"
	}
	contentType := "text/plain; charset=UTF-8"
	if m.HTML {
		contentType = "text/html; charset=UTF-8"
	}
	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), cfg.SMTPFrom)},
		{"To", strings.Join(m.To, ", ")},
		{"Subject", mime.BEncoding.Encode("UTF-8", m.Subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", contentType},
	}
	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(m.Body)
	return []byte(msg.String())
}

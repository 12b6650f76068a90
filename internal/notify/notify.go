// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify delivers account emails.

[Sender] is the transport: [SMTPSender] in deployed environments and
[LogSender] for local development. [Mailer] renders the templates in
templates/ and hands finished messages to a Sender.
*/
package notify

//go:generate mockgen -destination=mocks/sender.go -package=mocks github.com/taibuivan/shopauth/internal/notify Sender

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
)

// Message is one outbound email. Body is HTML.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(context context.Context, message Message) error
}

// # Log Transport

// LogSender writes messages to the request logger instead of sending them.
// The body is logged at debug level so codes are visible only when DEBUG is on.
type LogSender struct{}

// NewLogSender creates a development sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send implements [Sender].
func (LogSender) Send(context context.Context, message Message) error {
	logger := ctxutil.GetLogger(context)
	logger.InfoContext(context, "mail_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
	)
	logger.DebugContext(context, "mail_body", slog.String("body", message.Body))
	return nil
}

// # SMTP Transport

// SMTPConfig addresses the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender relays messages through an SMTP server. STARTTLS is negotiated
// whenever the server offers it.
type SMTPSender struct {
	config SMTPConfig
	send   sendFunc
	now    func() time.Time
}

// NewSMTPSender creates a relay-backed sender.
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config, send: smtp.SendMail, now: time.Now}
}

// Send implements [Sender].
func (sender *SMTPSender) Send(context context.Context, message Message) error {
	if err := context.Err(); err != nil {
		return fmt.Errorf("smtp_send_cancelled: %w", err)
	}

	var auth smtp.Auth
	if sender.config.Username != "" {
		auth = smtp.PlainAuth("", sender.config.Username, sender.config.Password, sender.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", sender.config.Host, sender.config.Port)
	if err := sender.send(addr, auth, sender.config.From, []string{message.To}, sender.compose(message)); err != nil {
		return fmt.Errorf("smtp_send_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "mail_sent",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
	)
	return nil
}

// compose builds the RFC 5322 message. Header values are stripped of line
// breaks so user-controlled fields cannot inject headers.
func (sender *SMTPSender) compose(message Message) []byte {
	clean := strings.NewReplacer("\r", "", "\n", "")

	var builder strings.Builder
	headers := [][2]string{
		{"From", sender.config.From},
		{"To", message.To},
		{"Subject", message.Subject},
		{"Date", sender.now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	for _, header := range headers {
		builder.WriteString(header[0])
		builder.WriteString(": ")
		builder.WriteString(clean.Replace(header[1]))
		builder.WriteString("\r\n")
	}
	builder.WriteString("\r\n")
	builder.WriteString(message.Body)
	return []byte(builder.String())
}

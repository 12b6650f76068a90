// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/otp"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// codeCopy is the per-flow wording of a code email.
type codeCopy struct {
	Subject string
	Intro   string
}

var codeCopies = map[otp.Type]codeCopy{
	otp.TypeVerification:  {Subject: "Confirm your email address", Intro: "Use this code to confirm your email address."},
	otp.TypeMFA:           {Subject: "Your sign-in code", Intro: "Use this code to finish signing in."},
	otp.TypePasswordReset: {Subject: "Reset your password", Intro: "Use this code to choose a new password."},
}

// Mailer renders account emails and hands them to a [Sender].
type Mailer struct {
	sender  Sender
	appName string
}

// NewMailer creates a mailer. appName appears in greetings and footers.
func NewMailer(sender Sender, appName string) *Mailer {
	return &Mailer{sender: sender, appName: appName}
}

/*
SendCode mails a one-time code.

Parameters:
  - context: context.Context
  - user: *account.User (recipient)
  - issued: otp.Issued (the cleartext code and its flow)

Returns:
  - error: rendering or transport failures
*/
func (mailer *Mailer) SendCode(context context.Context, user *account.User, issued otp.Issued) error {
	wording, ok := codeCopies[issued.Type]
	if !ok {
		return fmt.Errorf("notify_unknown_code_type: %s", issued.Type)
	}

	body, err := mailer.render("code.html", map[string]any{
		"AppName": mailer.appName,
		"Name":    displayName(user),
		"Intro":   wording.Intro,
		"Code":    issued.Code,
		"Minutes": int(time.Until(issued.ExpiresAt).Round(time.Minute).Minutes()),
	})
	if err != nil {
		return err
	}

	return mailer.sender.Send(context, Message{To: user.Email, Subject: wording.Subject, Body: body})
}

// SendPasswordChanged tells the user their password was changed and every
// other device was signed out.
func (mailer *Mailer) SendPasswordChanged(context context.Context, user *account.User) error {
	body, err := mailer.render("password_changed.html", map[string]any{
		"AppName": mailer.appName,
		"Name":    displayName(user),
	})
	if err != nil {
		return err
	}

	return mailer.sender.Send(context, Message{To: user.Email, Subject: "Your password was changed", Body: body})
}

func (mailer *Mailer) render(name string, data map[string]any) (string, error) {
	var buffer bytes.Buffer
	if err := templates.ExecuteTemplate(&buffer, name, data); err != nil {
		return "", fmt.Errorf("notify_render_failed: %w", err)
	}
	return buffer.String(), nil
}

func displayName(user *account.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import "net/smtp"

// SetSendFunc swaps the SMTP transport in tests.
func SetSendFunc(sender *SMTPSender, send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error) {
	sender.send = send
}

// Package mailer sends transactional mail over SMTP with STARTTLS.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"biashara-service/config"
)

type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer creates a new SMTP mailer
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers a single HTML email
func (m *Mailer) Send(toEmail, subject, htmlBody string) error {
	from := m.cfg.FromAddr
	if from == "" {
		from = m.cfg.Username
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.cfg.FromName, from)
	fmt.Fprintf(&msg, "To: %s\r\n", toEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, from, []string{toEmail}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendInvitation sends a team invitation email
func (m *Mailer) SendInvitation(toEmail, toName, businessName, invitedBy, role, token, customMessage string) error {
	subject := fmt.Sprintf("You're invited to join %s on Biashara Pro", businessName)

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>You're invited to join %s!</h2>", businessName)
	fmt.Fprintf(&body, "<p>Hi %s,</p>", toName)
	fmt.Fprintf(&body, "<p>%s has invited you to join <strong>%s</strong> as a <strong>%s</strong>.</p>",
		invitedBy, businessName, role)
	if customMessage != "" {
		fmt.Fprintf(&body, "<p><em>%q</em></p>", customMessage)
	}
	fmt.Fprintf(&body, "<p>Accept your invitation with token: <code>%s</code></p>", token)
	body.WriteString("<p>This invitation expires in 7 days.</p>")

	return m.Send(toEmail, subject, body.String())
}

// SendReceipt sends a payment receipt email
func (m *Mailer) SendReceipt(toEmail, customerName string, amount float64, transactionID, receiptNumber string) error {
	subject := "Payment Receipt - Biashara Pro"

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>Payment Received</h2>")
	fmt.Fprintf(&body, "<p>Hi %s,</p>", customerName)
	fmt.Fprintf(&body, "<p>We received your payment of <strong>KES %.2f</strong>.</p>", amount)
	fmt.Fprintf(&body, "<p>Reference: %s</p>", transactionID)
	if receiptNumber != "" {
		fmt.Fprintf(&body, "<p>M-Pesa receipt: %s</p>", receiptNumber)
	}
	body.WriteString("<p>Thank you for your business.</p>")

	return m.Send(toEmail, subject, body.String())
}

package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ── Africa's Talking SMS Adapter ──────────────────────────────────────────────
// In production, replace the stub with the Africa's Talking SMS API.
// Docs: https://developers.africastalking.com/

type africasTalkingSMS struct {
	apiKey   string
	username string
	senderID string
	logger   *logrus.Logger
}

func NewAfricasTalkingSMS(apiKey, username, senderID string, logger *logrus.Logger) SMSSender {
	return &africasTalkingSMS{apiKey: apiKey, username: username, senderID: senderID, logger: logger}
}

func (s *africasTalkingSMS) SendSMS(ctx context.Context, phone, message string) error {
	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// POST https://api.africastalking.com/version1/messaging
	//   Headers: apiKey, Accept: application/json
	//   Form: username, to: phone, message, from: senderID
	// ──────────────────────────────────────────────────────────────────────────

	s.logger.WithFields(logrus.Fields{
		"to":      phone,
		"message": message,
	}).Info("sms sent (sandbox)")
	return nil
}

// ── SMTP Email Adapter ────────────────────────────────────────────────────────

type smtpEmail struct {
	host     string
	from     string
	password string
	logger   *logrus.Logger
}

func NewSMTPEmail(host, from, password string, logger *logrus.Logger) EmailSender {
	return &smtpEmail{host: host, from: from, password: password, logger: logger}
}

func (s *smtpEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// smtp.SendMail(host, smtp.PlainAuth("", from, password, hostname), from,
	// []string{to}, rendered message)
	// ──────────────────────────────────────────────────────────────────────────

	s.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("email sent (sandbox)")
	return nil
}

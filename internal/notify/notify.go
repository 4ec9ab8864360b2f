package notify

import "context"

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// EmailSender delivers an email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Contact is what the dispatcher needs to reach someone.
type Contact struct {
	Email string
	Phone string
}

// Directory resolves a user or vendor ID to their contact details.
type Directory interface {
	ContactForUser(ctx context.Context, userID string) (Contact, error)
	ContactForVendor(ctx context.Context, vendorID string) (Contact, error)
}

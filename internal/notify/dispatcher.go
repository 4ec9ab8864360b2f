package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/metrics"
)

const sendTimeout = 10 * time.Second

// TokenIssuer mints order confirmation tokens for delivery notifications.
// auth.Service satisfies it.
type TokenIssuer interface {
	OrderConfirmationToken(orderID, buyerID string) (string, error)
}

// Dispatcher turns domain events into customer and vendor notifications. It
// satisfies events.Handler. Notification delivery is best effort: failures
// are logged and counted, never retried into the calling flow.
type Dispatcher struct {
	sms       SMSSender
	email     EmailSender
	directory Directory
	tokens    TokenIssuer
	baseURL   string
	logger    *logrus.Logger
}

func NewDispatcher(sms SMSSender, email EmailSender, directory Directory, tokens TokenIssuer, baseURL string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{sms: sms, email: email, directory: directory, tokens: tokens, baseURL: baseURL, logger: logger}
}

func (d *Dispatcher) Name() string { return "notifications" }

func (d *Dispatcher) Handle(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	switch evt.Type {
	case events.TypeOrderPlaced:
		d.toVendor(ctx, evt, "New order received",
			fmt.Sprintf("You have a new order %s. Open your dashboard to accept it.", str(evt.Data["tracking_number"])))
	case events.TypeOrderDispatched:
		d.toBuyer(ctx, evt, "Your order is on the way",
			fmt.Sprintf("Order %s was picked up by %s.", str(evt.Data["tracking_number"]), str(evt.Data["courier_name"])))
	case events.TypeOrderDelivered:
		d.deliveredToBuyer(ctx, evt)
	case events.TypeOrderDisputed:
		d.toVendor(ctx, evt, "Order disputed",
			fmt.Sprintf("Order %s was disputed: %s", str(evt.Data["tracking_number"]), str(evt.Data["reason"])))
	case events.TypeOrderCancelled:
		d.toVendor(ctx, evt, "Order cancelled",
			fmt.Sprintf("Order %s was cancelled.", str(evt.Data["tracking_number"])))
	case events.TypePayoutSettled:
		d.payoutSettled(ctx, evt)
	}
}

// deliveredToBuyer includes a signed confirmation link so the customer can
// release the vendor's earnings without logging in.
func (d *Dispatcher) deliveredToBuyer(ctx context.Context, evt events.Event) {
	buyerID := str(evt.Data["buyer_id"])
	body := fmt.Sprintf("Order %s has been delivered.", str(evt.Data["tracking_number"]))
	if token, err := d.tokens.OrderConfirmationToken(evt.Key, buyerID); err == nil {
		body = fmt.Sprintf("%s Confirm receipt: %s/api/v1/auth/confirm-order?token=%s", body, d.baseURL, token)
	} else {
		d.logger.WithError(err).WithField("order_id", evt.Key).Error("failed to mint confirmation token")
	}
	d.sendBoth(ctx, buyerContact, buyerID, "Order delivered", body)
}

func (d *Dispatcher) payoutSettled(ctx context.Context, evt events.Event) {
	vendorID := str(evt.Data["vendor_id"])
	var subject, body string
	if ok, _ := evt.Data["success"].(bool); ok {
		subject = "Payout completed"
		body = fmt.Sprintf("Your payout of KES %v has been sent.", evt.Data["amount"])
	} else {
		subject = "Payout failed"
		body = fmt.Sprintf("Your payout of KES %v failed and the funds are back in your balance. Reason: %s",
			evt.Data["amount"], str(evt.Data["reason"]))
	}
	d.sendBoth(ctx, vendorContact, vendorID, subject, body)
}

func (d *Dispatcher) toBuyer(ctx context.Context, evt events.Event, subject, body string) {
	d.sendBoth(ctx, buyerContact, str(evt.Data["buyer_id"]), subject, body)
}

func (d *Dispatcher) toVendor(ctx context.Context, evt events.Event, subject, body string) {
	d.sendBoth(ctx, vendorContact, str(evt.Data["vendor_id"]), subject, body)
}

type contactKind int

const (
	buyerContact contactKind = iota
	vendorContact
)

func (d *Dispatcher) sendBoth(ctx context.Context, kind contactKind, id, subject, body string) {
	if id == "" {
		return
	}
	var contact Contact
	var err error
	if kind == vendorContact {
		contact, err = d.directory.ContactForVendor(ctx, id)
	} else {
		contact, err = d.directory.ContactForUser(ctx, id)
	}
	if err != nil {
		d.logger.WithError(err).WithField("recipient", id).Warn("no contact details for notification")
		return
	}

	if contact.Email != "" {
		if err := d.email.SendEmail(ctx, contact.Email, subject, body); err != nil {
			metrics.NotificationFailuresTotal.WithLabelValues("email").Inc()
			d.logger.WithError(err).WithField("recipient", id).Error("email notification failed")
		}
	}
	if contact.Phone != "" {
		if err := d.sms.SendSMS(ctx, contact.Phone, body); err != nil {
			metrics.NotificationFailuresTotal.WithLabelValues("sms").Inc()
			d.logger.WithError(err).WithField("recipient", id).Error("sms notification failed")
		}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

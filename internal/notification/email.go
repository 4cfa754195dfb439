// Package notification sends transactional mail to customers.
package notification

import (
	"fmt"
	"strings"

	mail "gopkg.in/mail.v2"

	"github.com/rgo-organic/storefront-system/internal/model"
)

// Sender delivers order notifications. Implementations are best-effort
// collaborators: callers log failures and never roll back order state
// because of them.
type Sender interface {
	SendOrderReceipt(user *model.User, order *model.Order) error
	SendPaymentConfirmation(user *model.User, order *model.Order) error
	SendPasswordReset(user *model.User, token string) error
}

// NopSender discards all notifications. Used when SMTP is not configured.
type NopSender struct{}

// SendOrderReceipt implements Sender.
func (NopSender) SendOrderReceipt(*model.User, *model.Order) error { return nil }

// SendPaymentConfirmation implements Sender.
func (NopSender) SendPaymentConfirmation(*model.User, *model.Order) error { return nil }

// SendPasswordReset implements Sender.
func (NopSender) SendPasswordReset(*model.User, string) error { return nil }

// SMTPSender delivers notifications over SMTP.
type SMTPSender struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTPSender creates a sender for the given SMTP server and from address.
func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: mail.NewDialer(host, port, user, password),
		from:   from,
	}
}

// SendOrderReceipt mails the order summary to the customer.
func (s *SMTPSender) SendOrderReceipt(user *model.User, order *model.Order) error {
	subject := fmt.Sprintf("Your order %s at RGO Organic Millets", order.Number)
	return s.send(user.Email, subject, receiptHTML(order))
}

// SendPaymentConfirmation mails a payment confirmation to the customer.
func (s *SMTPSender) SendPaymentConfirmation(user *model.User, order *model.Order) error {
	subject := fmt.Sprintf("Payment received for order %s", order.Number)
	body := fmt.Sprintf("<p>We have received your payment. Order %s is confirmed.</p>%s",
		order.Number, receiptHTML(order))
	return s.send(user.Email, subject, body)
}

// SendPasswordReset mails the reset token to the account holder. The token
// is short-lived; the mail says so.
func (s *SMTPSender) SendPasswordReset(user *model.User, token string) error {
	body := fmt.Sprintf(
		"<p>We received a request to reset the password of your RGO Organic Millets account.</p>"+
			"<p>Your reset code is <strong>%s</strong>. It expires in 10 minutes.</p>"+
			"<p>If you did not request this, you can ignore this mail.</p>",
		token)
	return s.send(user.Email, "Reset your RGO Organic Millets password", body)
}

func (s *SMTPSender) send(to, subject, html string) error {
	if to == "" {
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func receiptHTML(order *model.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<h2>Thanks for your order %s</h2>", order.Number)
	fmt.Fprintf(&b, "<p>Status: %s • Payment: %s</p>", order.OrderStatus, order.PaymentStatus)
	b.WriteString("<table width=\"100%\" cellpadding=\"6\"><tr><th align=\"left\">Item</th><th align=\"right\">Qty</th><th align=\"right\">Price</th><th align=\"right\">Total</th></tr>")

	for _, it := range order.Items {
		name := it.Name
		if it.Grade != "" {
			name = fmt.Sprintf("%s (%s)", it.Name, it.Grade)
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td align=\"right\">%d %s</td><td align=\"right\">₹%.2f</td><td align=\"right\">₹%.2f</td></tr>",
			name, it.Quantity, it.Unit, rupees(it.PriceCents), rupees(it.TotalCents))
	}

	fmt.Fprintf(&b, "<tr><td colspan=\"3\" align=\"right\"><strong>Subtotal</strong></td><td align=\"right\">₹%.2f</td></tr>", rupees(order.SubtotalCents))
	fmt.Fprintf(&b, "<tr><td colspan=\"3\" align=\"right\">Tax</td><td align=\"right\">₹%.2f</td></tr>", rupees(order.TaxCents))
	fmt.Fprintf(&b, "<tr><td colspan=\"3\" align=\"right\">Shipping</td><td align=\"right\">₹%.2f</td></tr>", rupees(order.ShippingCents))
	fmt.Fprintf(&b, "<tr><td colspan=\"3\" align=\"right\"><strong>Total</strong></td><td align=\"right\"><strong>₹%.2f</strong></td></tr>", rupees(order.TotalCents))
	b.WriteString("</table>")

	return b.String()
}

func rupees(cents int64) float64 {
	return float64(cents) / 100
}

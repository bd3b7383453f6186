package services

import (
	"fmt"
	"log"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"gopkg.in/gomail.v2"
)

// Notifier is the fire-and-forget outbound channel for cashout events.
// Delivery failure never rolls back a state transition; callers log and
// move on.
type Notifier interface {
	CashoutRequested(user *models.User, cashout *models.Cashout) error
	CashoutApproved(user *models.User, cashout *models.Cashout) error
	CashoutRejected(user *models.User, cashout *models.Cashout, reason string) error
	CashoutCompleted(user *models.User, cashout *models.Cashout) error
}

// MailNotifier sends via SMTP using gomail.
type MailNotifier struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
}

func NewMailNotifier(cfg config.MailConfig) *MailNotifier {
	return &MailNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *MailNotifier) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.SupportEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return n.dialer.DialAndSend(m)
}

// CashoutRequested alerts the operations inbox about a new request.
func (n *MailNotifier) CashoutRequested(user *models.User, cashout *models.Cashout) error {
	tier := "Free User"
	if user.IsPremium {
		tier = "Premium User"
	}
	body := fmt.Sprintf(`<h2>New Cashout Request</h2>
<p><strong>User:</strong> %s (%s)</p>
<p><strong>Amount:</strong> $%.2f</p>
<p><strong>PayPal Email:</strong> %s</p>
<p><strong>Account:</strong> %s</p>
<p>Please process this request in the admin dashboard.</p>`,
		user.DisplayName, user.Email, cashout.Amount, cashout.PaypalEmail, tier)
	return n.send(n.cfg.PayoutsEmail, fmt.Sprintf("New Cashout Request: $%.2f", cashout.Amount), body)
}

func (n *MailNotifier) CashoutApproved(user *models.User, cashout *models.Cashout) error {
	body := fmt.Sprintf(`<h2>Cashout Request Approved</h2>
<p>Hello %s,</p>
<p>Your cashout request for $%.2f has been approved and is being processed.</p>
<p>You should receive payment to your PayPal account (%s) within 24 hours.</p>
<p>Thank you for using Step Rewards!</p>`,
		user.DisplayName, cashout.Amount, cashout.PaypalEmail)
	return n.send(user.Email, "Your Cashout Request Has Been Approved", body)
}

func (n *MailNotifier) CashoutRejected(user *models.User, cashout *models.Cashout, reason string) error {
	if reason == "" {
		reason = "No reason provided"
	}
	body := fmt.Sprintf(`<h2>Cashout Request Rejected</h2>
<p>Hello %s,</p>
<p>Unfortunately, your cashout request for $%.2f has been rejected.</p>
<p><strong>Reason:</strong> %s</p>
<p>The funds have been returned to your available balance. Please reach out to support if you have any questions.</p>`,
		user.DisplayName, cashout.Amount, reason)
	return n.send(user.Email, "Your Cashout Request Has Been Rejected", body)
}

func (n *MailNotifier) CashoutCompleted(user *models.User, cashout *models.Cashout) error {
	body := fmt.Sprintf(`<h2>Cashout Completed</h2>
<p>Hello %s,</p>
<p>Your cashout of $%.2f has been completed and sent to your PayPal account (%s).</p>
<p>Thank you for using Step Rewards!</p>`,
		user.DisplayName, cashout.Amount, cashout.PaypalEmail)
	return n.send(user.Email, "Your Cashout Has Been Completed", body)
}

// logNotify wraps a best-effort send with the standard failure log line.
func logNotify(what string, err error) {
	if err != nil {
		log.Printf("[NOTIFY] %s notification failed: %v", what, err)
	}
}

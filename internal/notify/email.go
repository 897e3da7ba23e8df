// Package notify sends customer-facing emails. Delivery is best-effort:
// callers log failures and move on, the order flow never depends on SMTP.
package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/go-faster/errors"
	gomail "gopkg.in/gomail.v2"

	"github.com/int-market-project/international-market/internal/domain/order"
)

// SMTPConfig carries the SMTP transport settings of the mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether the config is complete enough to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

var statusUpdateTmpl = template.Must(template.New("status_update").Parse(`<html>
  <body>
    <h2>International Market &mdash; Order Update</h2>
    <p>Hi {{.Name}},</p>
    <p>Your order <strong>#{{.OrderID}}</strong> status is now:</p>
    <p style="font-size:18px;font-weight:bold;">{{.Status}}</p>
    <hr/>
    <p>{{.Message}}</p>
  </body>
</html>`))

// Mailer sends transactional emails over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewMailer creates a Mailer from the given SMTP settings.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// SendStatusUpdate emails the customer that their order moved to a new
// status. When adminMessage is empty a generic line is used instead.
func (m *Mailer) SendStatusUpdate(to, customerName string, o *order.Order, adminMessage string) error {
	name := customerName
	if name == "" {
		name = "Customer"
	}
	msg := adminMessage
	if msg == "" {
		msg = fmt.Sprintf("Your order #%d status is now: %s.", o.ID, o.Status)
	}

	var body bytes.Buffer
	err := statusUpdateTmpl.Execute(&body, struct {
		Name    string
		OrderID int64
		Status  order.Status
		Message string
	}{
		Name:    name,
		OrderID: o.ID,
		Status:  o.Status,
		Message: msg,
	})
	if err != nil {
		return errors.Wrap(err, "render status update")
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.cfg.From)
	mail.SetHeader("To", to)
	mail.SetHeader("Subject", fmt.Sprintf("Order #%d status update", o.ID))
	mail.SetBody("text/plain", msg)
	mail.AddAlternative("text/html", body.String())

	if err := m.dialer.DialAndSend(mail); err != nil {
		return errors.Wrap(err, "send status update")
	}
	return nil
}

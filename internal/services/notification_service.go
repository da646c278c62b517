// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/models"
)

type NotificationService struct {
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{config: config}
}

// SendSigningOtp emails a signing code to the party that requested it.
func (s *NotificationService) SendSigningOtp(ctx context.Context, msg OtpMessage) error {
	tmpl := s.getEmailTemplate("signing_otp")

	data := map[string]interface{}{
		"Username":    msg.Username,
		"Code":        msg.Code,
		"Role":        strings.ToLower(string(msg.Role)),
		"ContractURL": fmt.Sprintf("%s/contracts/%s", s.config.Frontend.BaseURL, msg.ContractID),
		"ExpiresAt":   msg.ExpiresAt.UTC().Format(time.RFC1123),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(ctx, msg.To, tmpl.Subject, body)
}

// SendContractSigned tells both parties the contract is fully signed.
func (s *NotificationService) SendContractSigned(ctx context.Context, contract *models.Contract, recipients []models.User) error {
	tmpl := s.getEmailTemplate("contract_signed")

	var failed []string
	for _, user := range recipients {
		data := map[string]interface{}{
			"Username":    user.Username,
			"ContractID":  contract.ID,
			"ContractURL": fmt.Sprintf("%s/contracts/%s", s.config.Frontend.BaseURL, contract.ID),
		}

		body, err := s.renderTemplate(tmpl.Body, data)
		if err != nil {
			return fmt.Errorf("failed to render email template: %w", err)
		}

		if err := s.sendEmail(ctx, user.Email, tmpl.Subject, body); err != nil {
			logrus.WithError(err).WithField("to", user.Email).Warn("Failed to send contract signed email")
			failed = append(failed, user.Email)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to notify %s", strings.Join(failed, ", "))
	}
	return nil
}

// Helper methods
func (s *NotificationService) sendEmail(ctx context.Context, to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email would be sent")
		return nil
	}

	host := s.config.Email.SMTPHost
	addr := net.JoinHostPort(host, s.config.Email.SMTPPort)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.config.Email.SMTPUsername != "" {
		auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.config.Email.FromEmail); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.composeMessage(to, subject, body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (s *NotificationService) composeMessage(to, subject, body string) []byte {
	from := s.config.Email.FromEmail
	if s.config.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.Email.FromName, s.config.Email.FromEmail)
	}
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, subject, body))
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"signing_otp": {
			Subject: "Your contract signing code",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Use the code below to sign the contract as {{.Role}}:</p>
	<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
	<p>The code expires at {{.ExpiresAt}} and can be used once.</p>
	<a href="{{.ContractURL}}">Open contract</a>
</body>
</html>`,
		},
		"contract_signed": {
			Subject: "Contract signed by both parties",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Contract {{.ContractID}} has been signed by both parties.</p>
	<a href="{{.ContractURL}}">View contract</a>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}

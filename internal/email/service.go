// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	// Simple multipart message
	boundary := "boundary-smartfactory"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// EscalationData holds data for escalation notice emails
type EscalationData struct {
	AppName   string
	ItemTitle string
	ItemKind  string
	RungName  string
	Reason    string
	ActionURL string
}

// AssignmentData holds data for incident assignment emails
type AssignmentData struct {
	AppName        string
	IncidentTitle  string
	DepartmentName string
	Priority       string
	ActionURL      string
}

// SendEscalationEmail notifies recipients that an item moved up the
// escalation chain. The subject is localized, Vietnamese by default with
// Japanese for ja recipients.
func (s *Service) SendEscalationEmail(to []string, language string, data EscalationData) error {
	if data.AppName == "" {
		data.AppName = "SmartFactory Connect"
	}

	subject := fmt.Sprintf("[%s] Sự cố đã được chuyển cấp: %s", data.AppName, data.ItemTitle)
	if language == "ja" {
		subject = fmt.Sprintf("[%s] エスカレーション通知: %s", data.AppName, data.ItemTitle)
	}

	html, err := renderTemplate(escalationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render escalation template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendAssignmentEmail notifies recipients that an incident was assigned to
// their department.
func (s *Service) SendAssignmentEmail(to []string, language string, data AssignmentData) error {
	if data.AppName == "" {
		data.AppName = "SmartFactory Connect"
	}

	subject := fmt.Sprintf("[%s] Sự cố mới được giao: %s", data.AppName, data.IncidentTitle)
	if language == "ja" {
		subject = fmt.Sprintf("[%s] 新しいインシデント割り当て: %s", data.AppName, data.IncidentTitle)
	}

	html, err := renderTemplate(assignmentEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render assignment template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const escalationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #cc3300; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #cc3300; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .meta { background: #f6f6f6; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Escalation notice</h2>

    <p>The {{.ItemKind}} <strong>{{.ItemTitle}}</strong> has been escalated to <strong>{{.RungName}}</strong>.</p>

    <div class="meta">
        <p><strong>Reason:</strong> {{.Reason}}</p>
    </div>

    {{if .ActionURL}}
    <p>
        <a href="{{.ActionURL}}" class="button">Open item</a>
    </p>
    {{end}}

    <div class="footer">
        <p>You received this email because you are the responsible handler at this level.</p>
    </div>
</body>
</html>`

const assignmentEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .meta { background: #f6f6f6; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>New incident assignment</h2>

    <p>The incident <strong>{{.IncidentTitle}}</strong> has been assigned to <strong>{{.DepartmentName}}</strong>.</p>

    <div class="meta">
        <p><strong>Priority:</strong> {{.Priority}}</p>
    </div>

    {{if .ActionURL}}
    <p>
        <a href="{{.ActionURL}}" class="button">Open incident</a>
    </p>
    {{end}}

    <div class="footer">
        <p>You received this email because your department is responsible for this incident.</p>
    </div>
</body>
</html>`

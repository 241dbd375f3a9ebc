package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"runwayiq/config"
)

type EmailData struct {
	Subject  string
	To       []string
	CC       []string
	Template string
	Data     interface{}
	FromName string
}

// DigestTask is one line of the daily task digest
type DigestTask struct {
	Title    string
	LeadName string
	Points   int
	Priority string
}

// DigestData feeds the "digest" template
type DigestData struct {
	Name        string
	Date        string
	Tasks       []DigestTask
	TotalPoints int
	Year        int
}

// Embedded email templates
var emailTemplates = map[string]string{
	"digest": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; margin: 20px 0; }
        td, th { padding: 6px 8px; border-bottom: 1px solid #eee; text-align: left; }
        .points { font-weight: bold; color: #3498db; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Your tasks for {{.Date}}</h2>
    </div>

    <p>Hi {{.Name}}, you have {{len .Tasks}} task{{if ne (len .Tasks) 1}}s{{end}} due today.</p>

    <table>
        <tr><th>Task</th><th>Lead</th><th>Priority</th><th>Points</th></tr>
        {{range .Tasks}}<tr><td>{{.Title}}</td><td>{{.LeadName}}</td><td>{{.Priority}}</td><td class="points">{{.Points}}</td></tr>
        {{end}}
    </table>

    <p>Up for grabs today: <span class="points">{{.TotalPoints}} points</span></p>

    <div class="footer">
        <p>© {{.Year}} RunwayIQ</p>
    </div>
</body>
</html>`,
}

// MessageSender delivers composed messages; *gomail.Dialer satisfies it
type MessageSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	Sender    MessageSender
	FromEmail string
}

// NewMailer returns a mailer backed by SMTP, or an error when SMTP is not configured
func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, config.NotConfigured("SMTP")
	}
	return &Mailer{
		Sender:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		FromEmail: cfg.FromEmail,
	}, nil
}

// Render executes a named template against data
func Render(name string, data interface{}) (string, error) {
	tmplContent, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}

	tmpl, err := template.New(name).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

func (m *Mailer) Send(data EmailData) error {
	if len(data.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	if data.FromName == "" {
		data.FromName = "RunwayIQ"
	}

	body, err := Render(data.Template, data.Data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.FromEmail, data.FromName)
	msg.SetHeader("To", data.To...)
	if len(data.CC) > 0 {
		msg.SetHeader("Cc", data.CC...)
	}
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body)

	if err := m.Sender.DialAndSend(msg); err != nil {
		RecordIntegrationError("smtp")
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// SendDigest mails one owner the tasks due on date
func (m *Mailer) SendDigest(to string, data DigestData) error {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	for _, t := range data.Tasks {
		data.TotalPoints += t.Points
	}
	return m.Send(EmailData{
		Subject:  fmt.Sprintf("Today's tasks (%d) - %s", len(data.Tasks), data.Date),
		To:       []string{to},
		Template: "digest",
		Data:     data,
	})
}

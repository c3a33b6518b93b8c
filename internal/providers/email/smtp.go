package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

const templateDonationThanks = "donation_thanks.html"

var ErrNoRecipients = errors.New("email has no recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg       Config
	templates *template.Template
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{
		cfg:       cfg,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		send:      smtp.SendMail,
	}
}

// Send delivers one HTML message.
func (p *SMTPProvider) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", p.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(htmlBody)

	return p.send(addr, auth, p.cfg.From, to, msg.Bytes())
}

func (p *SMTPProvider) SendDonationThanks(ctx context.Context, to string, data DonationThanks) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipients
	}
	var body bytes.Buffer
	if err := p.templates.ExecuteTemplate(&body, templateDonationThanks, data); err != nil {
		return fmt.Errorf("render donation thanks: %w", err)
	}
	return p.Send(ctx, []string{to}, data.subject(), body.String())
}

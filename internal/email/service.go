// Package email sends share notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppURL   string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) sender() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := buildMessage(s.sender(), to, subject, textBody, htmlBody)
	return s.send(s.server, s.auth, s.config.From, to, msg)
}

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	boundary := "boundary-screenplay"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// ShareNotice tells a grantee that a script was shared with them. The
// sharing password is never mailed; the owner passes it on separately.
type ShareNotice struct {
	To          string
	SharedBy    string
	ScriptID    string
	ScriptTitle string
	AccessLevel string
	Protected   bool
}

type shareNoticeData struct {
	ShareNotice
	AppName   string
	ScriptURL string
}

func (s *Service) SendShareNotice(notice ShareNotice) error {
	data := shareNoticeData{
		ShareNotice: notice,
		AppName:     "Screenplay",
		ScriptURL:   strings.TrimRight(s.config.AppURL, "/") + "/scripts/" + notice.ScriptID,
	}
	subject := fmt.Sprintf("%s shared \"%s\" with you", notice.SharedBy, notice.ScriptTitle)

	html, err := renderTemplate(shareNoticeTmpl, data)
	if err != nil {
		return fmt.Errorf("render share notice: %w", err)
	}
	text := fmt.Sprintf("%s gave you %s access to \"%s\".\r\nOpen it at %s",
		notice.SharedBy, notice.AccessLevel, notice.ScriptTitle, data.ScriptURL)
	if notice.Protected {
		text += "\r\nThis script is password protected. Ask the owner for the password."
	}
	return s.SendHTMLEmail([]string{notice.To}, subject, text, html)
}

var shareNoticeTmpl = template.Must(template.New("share").Parse(shareNoticeTemplate))

func renderTemplate(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const shareNoticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ScriptTitle}} was shared with you</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #222; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #222; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>{{.SharedBy}} gave you <strong>{{.AccessLevel}}</strong> access to <em>{{.ScriptTitle}}</em>.</p>

    <p>
        <a href="{{.ScriptURL}}" class="button">Open Script</a>
    </p>
    {{if .Protected}}
    <div class="warning">
        This script is password protected. Ask the owner for the password.
    </div>
    {{end}}
    <div class="footer">
        <p>You received this because someone shared a script with {{.To}}.</p>
    </div>
</body>
</html>`

package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/verification"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "Verify Your Email"

// genericSalutation replaces a missing first name.
const genericSalutation = "there"

// htmlTmpl is the verification email body. html/template escapes .Name and
// validates .Link as a URL in the href attribute.
var htmlTmpl = htmltemplate.Must(htmltemplate.New("verify").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;
     font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation"
         style="background-color:#f4f4f5;padding:40px 16px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" role="presentation"
               style="max-width:600px;width:100%;background-color:#ffffff;border-radius:12px;">
          <tr>
            <td style="padding:36px 40px;font-size:14px;line-height:1.7;color:#374151;">
              <p style="margin:0 0 16px;">Dear {{.Name}},</p>
              <p style="margin:0 0 16px;">Please confirm your email address by opening your verification link:</p>
              <p style="margin:0 0 24px;">
                <a href="{{.Link}}" target="_blank"
                   style="display:inline-block;padding:10px 20px;background-color:#6366f1;
                          color:#ffffff;text-decoration:none;border-radius:6px;">Verify email</a>
              </p>
              <p style="margin:0 0 16px;word-break:break-all;">
                Or paste this address into your browser: <a href="{{.Link}}" target="_blank">{{.Link}}</a>
              </p>
              {{- if .TTL}}
              <p style="margin:0;font-size:12px;color:#9ca3af;">This link expires in {{.TTL}}.</p>
              {{- end}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`))

var textTmpl = texttemplate.Must(texttemplate.New("verify").Parse(`Dear {{.Name}},

Please confirm your email address by opening your verification link:

{{.Link}}
{{if .TTL}}
This link expires in {{.TTL}}.
{{end}}`))

// Composer renders verification emails. Sender and subject are fixed per
// deployment.
type Composer struct {
	From    string
	Subject string
	// LinkTTL is only advertised in the body; it is not enforced here.
	LinkTTL time.Duration
}

type templateData struct {
	Subject string
	Name    string
	Link    string
	TTL     string
}

// Render builds the verification message for id.
func (c Composer) Render(id event.UserIdentity, link verification.Link) (Message, error) {
	if id.Email == "" {
		return Message{}, fmt.Errorf("render: identity has no email")
	}
	if link.Target == nil {
		return Message{}, fmt.Errorf("render: empty verification link")
	}

	subject := c.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	name := strings.TrimSpace(id.FirstName)
	if name == "" {
		name = genericSalutation
	}

	data := templateData{
		Subject: subject,
		Name:    name,
		Link:    link.String(),
		TTL:     humanDuration(c.LinkTTL),
	}

	var html bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("rendering html body: %w", err)
	}
	var text bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering text body: %w", err)
	}

	return Message{
		From:     c.From,
		To:       id.Email,
		Subject:  subject,
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}

// humanDuration formats whole minutes or hours; zero yields "".
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0 && d >= time.Hour:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		n := int(d.Round(time.Minute) / time.Minute)
		if n <= 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
}

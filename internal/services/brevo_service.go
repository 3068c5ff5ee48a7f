package services

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// BrevoService sends transactional email through Brevo.
type BrevoService struct {
	client    *brevo.APIClient
	FromEmail string
	FromName  string
}

// NewBrevoService creates a Brevo mailer. basePath overrides the API host and
// may be empty.
func NewBrevoService(apiKey, fromEmail, fromName, basePath string) *BrevoService {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)
	if basePath != "" {
		cfg.BasePath = basePath
	}
	return &BrevoService{
		client:    brevo.NewAPIClient(cfg),
		FromEmail: fromEmail,
		FromName:  fromName,
	}
}

// SendEmail sends one message to a single recipient.
func (s *BrevoService) SendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To:          []brevo.SendSmtpEmailTo{{Email: to}},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	}

	_, resp, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	return nil
}

// textToHTML wraps a chat message in a minimal email body. The message
// already uses a small HTML subset, so only line breaks need converting.
func textToHTML(subject, text string) string {
	body := strings.ReplaceAll(strings.TrimSpace(text), "\n", "<br>\n")
	return `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>` + html.EscapeString(subject) + `</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
` + body + `
</div>
</body>
</html>`
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// stripTags turns a chat message into plain text.
func stripTags(text string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
}

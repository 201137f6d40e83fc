package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"closingflow/internal/utils"
)

type EmailAttachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

// OutboundEmail is one message to deliver. InReplyTo/References become
// RFC 5322 threading headers so recipient clients keep the conversation
// together.
type OutboundEmail struct {
	ToName      string
	ToAddress   string
	Subject     string
	Body        string
	InReplyTo   string
	References  []string
	Attachments []EmailAttachment
}

// DeliveryResult reports the identifiers a successful delivery produced.
// ProviderMessageID is the RFC 5322 Message-ID we stamped on the mail;
// replies will reference it.
type DeliveryResult struct {
	ProviderID        string
	ProviderMessageID string
}

type Mailer interface {
	Send(ctx context.Context, email OutboundEmail) (*DeliveryResult, error)
}

// SendGridMailer delivers through SendGrid. Sandbox mode validates the
// payload without actually sending, which is what tests and staging use.
type SendGridMailer struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
	sandbox     bool
}

func NewSendGridMailer(apiKey, fromName, fromAddress string, sandbox bool) *SendGridMailer {
	return &SendGridMailer{
		client:      sendgrid.NewSendClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
		sandbox:     sandbox,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, email OutboundEmail) (*DeliveryResult, error) {
	from := mail.NewEmail(m.fromName, m.fromAddress)
	to := mail.NewEmail(email.ToName, email.ToAddress)
	message := mail.NewSingleEmail(from, email.Subject, to, email.Body, "")

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), mailDomain(m.fromAddress))
	message.SetHeader("Message-ID", messageID)
	if email.InReplyTo != "" {
		message.SetHeader("In-Reply-To", email.InReplyTo)
	}
	if len(email.References) > 0 {
		message.SetHeader("References", strings.Join(email.References, " "))
	}

	for _, a := range email.Attachments {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		att.SetType(a.ContentType)
		att.SetFilename(a.FileName)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &utils.DeliveryError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	providerID := resp.Headers["X-Message-Id"]
	result := &DeliveryResult{ProviderMessageID: messageID}
	if len(providerID) > 0 {
		result.ProviderID = providerID[0]
	}
	return result, nil
}

func mailDomain(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "closingflow.local"
}

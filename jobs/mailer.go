package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// Attachment is a file attached to a Message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a plain text e-mail with optional attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func buildMessage(from string, msg Message, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("mail: sender %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now)
	m.SetMessageIDWithValue(uuid.NewString() + "@finpilot")
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, att := range msg.Attachments {
		err := m.AttachReader(att.Name, bytes.NewReader(att.Data),
			mail.WithFileContentType(mail.ContentType(att.ContentType)))
		if err != nil {
			return nil, fmt.Errorf("mail: attach %s: %w", att.Name, err)
		}
	}
	return m, nil
}

type smtpDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends mail through an unauthenticated SMTP relay such as Mailpit.
type SMTPMailer struct {
	from   string
	now    func() time.Time
	dialer smtpDialer
}

// NewSMTPMailer builds an SMTPMailer. STARTTLS is used when the relay offers it.
func NewSMTPMailer(host string, port int, from string) (*SMTPMailer, error) {
	if host == "" {
		return nil, errors.New("smtp: host not configured")
	}
	client, err := mail.NewClient(host, mail.WithPort(port), mail.WithTLSPolicy(mail.TLSOpportunistic))
	if err != nil {
		return nil, fmt.Errorf("smtp: client: %w", err)
	}
	return &SMTPMailer{from: from, now: time.Now, dialer: client}, nil
}

// Send composes msg and hands it to the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	built, err := buildMessage(m.from, msg, m.now())
	if err != nil {
		return err
	}
	if err := m.dialer.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", msg.To, err)
	}
	return nil
}

// SESMailer sends mail through Amazon SES as raw MIME messages.
type SESMailer struct {
	client sesiface.SESAPI
	from   string
	now    func() time.Time
}

// NewSESMailer creates a mailer for region using the default AWS credential chain.
func NewSESMailer(region, from string) (*SESMailer, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("ses: aws session: %w", err)
	}
	return NewSESMailerWithClient(ses.New(sess), from), nil
}

// NewSESMailerWithClient wraps an existing client.
func NewSESMailerWithClient(client sesiface.SESAPI, from string) *SESMailer {
	return &SESMailer{client: client, from: from, now: time.Now}
}

// Send renders msg to MIME and submits it with SendRawEmail.
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	built, err := buildMessage(m.from, msg, m.now())
	if err != nil {
		return err
	}
	var raw bytes.Buffer
	if _, err := built.WriteTo(&raw); err != nil {
		return fmt.Errorf("ses: render message: %w", err)
	}
	_, err = m.client.SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(m.from),
		Destinations: []*string{aws.String(msg.To)},
		RawMessage:   &ses.RawMessage{Data: raw.Bytes()},
	})
	if err != nil {
		return fmt.Errorf("ses: send to %s: %w", msg.To, err)
	}
	return nil
}

package notify

import "context"

// EmailNotifier sends plain-text booking notifications through an EmailSender.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	return n.sender.Send(ctx, EmailMessage{
		To:      to,
		Subject: subject,
		Body:    body,
	})
}

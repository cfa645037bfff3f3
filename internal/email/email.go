// Package email delivers workflow notifications, such as the notice sent to
// the validator when a report is escalated.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRecipient is returned when a message has no usable recipient.
var ErrNoRecipient = errors.New("email recipient is required")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EscalationNotice builds the message sent to the validator when reportID is
// escalated by actor.
func EscalationNotice(to, reportID, actor, remarks string) Message {
	body := fmt.Sprintf("Report %s has been escalated to you by %s.\n", reportID, actor)
	if strings.TrimSpace(remarks) != "" {
		body += "\nRemarks: " + remarks + "\n"
	}
	body += "\nPlease review the report timeline and record a validation decision.\n"
	return Message{
		To:      to,
		Subject: "Report " + reportID + " escalated for validation",
		Body:    body,
	}
}

// headerValue strips CR and LF so user-controlled values cannot inject headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// render formats msg as an RFC 5322 message with CRLF line endings.
func render(from string, msg Message) []byte {
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return []byte(strings.Join([]string{
		"From: " + headerValue(from),
		"To: " + headerValue(msg.To),
		"Subject: " + headerValue(msg.Subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n"))
}

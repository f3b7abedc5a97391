package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // text/plain content

		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render prepares the final text and HTML bodies. Plain bodies are escaped
// into a minimal HTML alternative.
func (m *EmailMessage) Render() error {
	if m.TextContent == "" {
		m.TextContent = m.BodyStr
	}
	if m.HTMLContent == "" && m.TextContent != "" {
		var buff bytes.Buffer
		if _, err := fmt.Fprintf(&buff, "<html><body><p>%s</p></body></html>", htmltmpl.HTMLEscapeString(m.TextContent)); err != nil {
			return err
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one outgoing email.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment

	// Encrypted is an armored PGP message holding the full MIME body. When
	// set it replaces Body and Attachments on the wire.
	Encrypted []byte
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// formatMessage renders msg with headers, ready for the SMTP DATA command.
func (m *Mailer) formatMessage(msg Message) string {
	cfg := m.config()

	var buf bytes.Buffer
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domainOf(cfg.FromAddress))
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.Encrypted != nil:
		writeEncrypted(&buf, msg.Encrypted)
	case len(msg.Attachments) > 0:
		writeMultipart(&buf, msg.Body, msg.Attachments)
	default:
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(normalizeNewlines(msg.Body))
	}
	return buf.String()
}

// mimeBody renders the inner MIME entity (Content-Type header plus body)
// that gets encrypted for PGP/MIME.
func mimeBody(body string, attachments []Attachment) []byte {
	var buf bytes.Buffer
	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(normalizeNewlines(body))
		return buf.Bytes()
	}
	writeMultipart(&buf, body, attachments)
	return buf.Bytes()
}

func writeMultipart(buf *bytes.Buffer, body string, attachments []Attachment) {
	var parts bytes.Buffer
	writer := multipart.NewWriter(&parts)

	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, _ := writer.CreatePart(textHeader)
	textPart.Write([]byte(normalizeNewlines(body)))

	for _, att := range attachments {
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", att.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))

		attPart, _ := writer.CreatePart(attHeader)
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		// 76-character lines per RFC 2045
		for i := 0; i < len(encoded); i += 76 {
			end := min(i+76, len(encoded))
			attPart.Write([]byte(encoded[i:end] + "\r\n"))
		}
	}

	writer.Close()
	buf.Write(parts.Bytes())
}

// writeEncrypted wraps an armored payload in a PGP/MIME envelope (RFC 3156).
func writeEncrypted(buf *bytes.Buffer, armored []byte) {
	var parts bytes.Buffer
	envelope := multipart.NewWriter(&parts)

	fmt.Fprintf(buf, "Content-Type: multipart/encrypted; protocol=\"application/pgp-encrypted\"; boundary=%s\r\n\r\n", envelope.Boundary())

	versionHeader := textproto.MIMEHeader{}
	versionHeader.Set("Content-Type", "application/pgp-encrypted")
	versionPart, _ := envelope.CreatePart(versionHeader)
	versionPart.Write([]byte("Version: 1\r\n"))

	encHeader := textproto.MIMEHeader{}
	encHeader.Set("Content-Type", "application/octet-stream; name=\"encrypted.asc\"")
	encPart, _ := envelope.CreatePart(encHeader)
	encPart.Write(armored)

	envelope.Close()
	buf.Write(parts.Bytes())
}

// sanitizeHeader strips line breaks so a value cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

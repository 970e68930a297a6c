// Package email provides test helpers for constructing raw RFC 5322 email
// messages as they appear inside mbox exports.
package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// LabelHeader is the header Gmail exports use for label annotations.
const LabelHeader = "X-Gmail-Labels"

type header struct {
	key, value string
}

type part struct {
	contentType string
	encoding    string
	disposition string
	body        string
}

// MessageBuilder constructs MIME messages with a fluent API.
// By default, messages use \n line endings matching Go raw string literals.
type MessageBuilder struct {
	from        string
	to          string
	subject     string
	date        string
	contentType string
	body        string
	headers     []header
	extraParts  []part
	multipart   string // multipart subtype, "" for a single-part message
	boundary    string
	crlf        bool
}

// NewMessage creates a MessageBuilder with sensible defaults.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:     "sender@example.com",
		to:       "recipient@example.com",
		date:     "Mon, 01 Jan 2024 12:00:00 +0000",
		subject:  "Test Message",
		body:     "This is a test message body.",
		boundary: "boundary123",
	}
}

// From sets the From header. An empty value omits it.
func (b *MessageBuilder) From(v string) *MessageBuilder { b.from = v; return b }

// To sets the To header. An empty value omits it.
func (b *MessageBuilder) To(v string) *MessageBuilder { b.to = v; return b }

// Subject sets the Subject header. An empty value omits it.
func (b *MessageBuilder) Subject(v string) *MessageBuilder { b.subject = v; return b }

// Date sets the Date header. An empty value omits it.
func (b *MessageBuilder) Date(v string) *MessageBuilder { b.date = v; return b }

// ContentType overrides the Content-Type of the main body part.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

// Body sets the main body text.
func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// Header adds an arbitrary header. Repeated keys produce repeated headers.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	b.headers = append(b.headers, header{key, value})
	return b
}

// Labels adds one X-Gmail-Labels header holding the comma-joined labels.
func (b *MessageBuilder) Labels(labels ...string) *MessageBuilder {
	return b.Header(LabelHeader, strings.Join(labels, ","))
}

// Boundary sets the multipart boundary string.
func (b *MessageBuilder) Boundary(v string) *MessageBuilder { b.boundary = v; return b }

// HTMLAlternative turns the message into multipart/alternative with html
// following the main body.
func (b *MessageBuilder) HTMLAlternative(html string) *MessageBuilder {
	b.multipart = "alternative"
	b.extraParts = append(b.extraParts, part{contentType: `text/html; charset="utf-8"`, body: html})
	return b
}

// WithAttachment turns the message into multipart/mixed and appends a
// base64-encoded attachment.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	if b.multipart == "" {
		b.multipart = "mixed"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.extraParts = append(b.extraParts, part{
		contentType: fmt.Sprintf("%s; name=%q", contentType, filename),
		encoding:    "base64",
		disposition: fmt.Sprintf("attachment; filename=%q", filename),
		body:        base64.StdEncoding.EncodeToString(data),
	})
	return b
}

// CRLF switches to \r\n line endings.
func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// Bytes builds the complete message.
func (b *MessageBuilder) Bytes() []byte {
	nl := "\n"
	if b.crlf {
		nl = "\r\n"
	}
	var s strings.Builder
	line := func(v string) { s.WriteString(v + nl) }

	for _, h := range []header{{"From", b.from}, {"To", b.to}, {"Subject", b.subject}, {"Date", b.date}} {
		if h.value != "" {
			line(h.key + ": " + h.value)
		}
	}
	for _, h := range b.headers {
		line(h.key + ": " + h.value)
	}

	mainType := b.contentType
	if mainType == "" {
		mainType = `text/plain; charset="utf-8"`
	}

	if b.multipart == "" {
		line("Content-Type: " + mainType)
		line("")
		line(b.body)
		return []byte(s.String())
	}

	line("MIME-Version: 1.0")
	line(fmt.Sprintf("Content-Type: multipart/%s; boundary=%q", b.multipart, b.boundary))
	line("")
	parts := append([]part{{contentType: mainType, body: b.body}}, b.extraParts...)
	for _, p := range parts {
		line("--" + b.boundary)
		line("Content-Type: " + p.contentType)
		if p.disposition != "" {
			line("Content-Disposition: " + p.disposition)
		}
		if p.encoding != "" {
			line("Content-Transfer-Encoding: " + p.encoding)
		}
		line("")
		line(p.body)
	}
	line("--" + b.boundary + "--")
	return []byte(s.String())
}

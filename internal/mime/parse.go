package mime

import (
	"time"
)

// DefaultLabelHeaders are the headers Gmail exports use for label
// annotations.
var DefaultLabelHeaders = []string{"X-Gmail-Labels"}

// Message is the email record derived from one archive message, plus the
// raw label annotation values it carried.
type Message struct {
	ID          string
	Subject     string
	From        string
	To          string
	Date        string // Date header text, as found
	SentAt      time.Time
	Content     string
	ContentType string

	// LabelValues holds every occurrence of every label header, undecoded
	// and unsplit.
	LabelValues []string
}

// Parser builds Messages from raw bytes.
type Parser struct {
	// LabelHeaders lists the annotation headers to collect. Empty means
	// DefaultLabelHeaders.
	LabelHeaders []string

	Extractor Extractor
}

// Parse derives the email record for raw. It only fails when neither
// MIME parser can make sense of the message; charset and transfer
// encoding problems are absorbed.
func (p *Parser) Parse(raw []byte) (*Message, error) {
	t, err := readTree(raw)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:      ContentHash(raw),
		Subject: DecodeHeader(t.header("Subject")),
		From:    DecodeHeader(t.header("From")),
		To:      DecodeHeader(t.header("To")),
		Date:    DecodeHeader(t.header("Date")),
		Content: p.Extractor.Extract(t.root),
	}
	if sentAt, ok := ParseDate(msg.Date); ok {
		msg.SentAt = sentAt
	}
	msg.ContentType = InferContentType(msg.Content)

	headers := p.LabelHeaders
	if len(headers) == 0 {
		headers = DefaultLabelHeaders
	}
	for _, h := range headers {
		msg.LabelValues = append(msg.LabelValues, t.values(h)...)
	}
	return msg, nil
}

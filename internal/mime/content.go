package mime

import (
	"strings"

	"github.com/wesm/mboxvault/internal/textutil"
)

// Content types assigned to email records.
const (
	ContentTypePlain = "text/plain"
	ContentTypeHTML  = "text/html"
)

// Node is the view of a parsed MIME tree the extractor needs. Adapters
// exist for go-message entities and for enmime parts.
type Node interface {
	// IsMultipart reports whether the node is a multipart container.
	IsMultipart() bool
	// Parts returns the direct children of a multipart node, in order.
	Parts() []Node
	// ContentType is the lower-cased media type without parameters.
	ContentType() string
	// Charset is the declared charset parameter, or "" when absent.
	Charset() string
	// Payload returns the transfer-decoded body. Bytes are returned even
	// alongside an error when some of the body could be recovered.
	Payload() ([]byte, error)
}

// Extractor pulls the display body out of a message.
type Extractor struct {
	// DetectCharset runs undeclared-charset payloads through charset
	// detection before falling back to U+FFFD replacement.
	DetectCharset bool
}

// Extract returns the text of the first text/plain or text/html part of a
// multipart message (depth-first, document order), or "" when there is
// none. For a single-part message the message's own payload is used,
// whatever its type. Invalid bytes never fail extraction.
func (x Extractor) Extract(n Node) string {
	target := n
	if n.IsMultipart() {
		target = firstTextPart(n)
		if target == nil {
			return ""
		}
	}
	data, _ := target.Payload()
	if len(data) == 0 {
		return ""
	}
	if x.DetectCharset && target.Charset() == "" {
		return textutil.EnsureUTF8(string(data))
	}
	return textutil.SanitizeUTF8(string(data))
}

func firstTextPart(n Node) Node {
	for _, p := range n.Parts() {
		if p.IsMultipart() {
			if found := firstTextPart(p); found != nil {
				return found
			}
			continue
		}
		if isTextBody(p.ContentType()) {
			return p
		}
	}
	return nil
}

func isTextBody(mediaType string) bool {
	return mediaType == ContentTypePlain || mediaType == ContentTypeHTML
}

// InferContentType classifies content as HTML when its trimmed text starts
// with '<'. Declared MIME types are deliberately not consulted.
func InferContentType(content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), "<") {
		return ContentTypeHTML
	}
	return ContentTypePlain
}

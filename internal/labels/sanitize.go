// Package labels cleans Gmail-style label annotations and expands nested
// label paths into per-level membership rows.
package labels

import (
	"regexp"
	"strings"

	"github.com/wesm/mboxvault/internal/mime"
)

// DefaultExclusions are the system and meta labels never persisted. Entries
// match as case-insensitive prefixes of the cleaned label.
var DefaultExclusions = []string{
	"Inbox",
	"Sent",
	"Unread",
	"Opened",
	"Starred",
	"Important",
	"Chat",
	"Archived",
	"Drafts",
	"Draft",
	"Spam",
	"Trash",
	"Category",
	// IMAP system flags and keywords
	`\Seen`,
	`\Answered`,
	`\Flagged`,
	`\Deleted`,
	`\Draft`,
	`\Recent`,
	`\Important`,
	`\Starred`,
	`\Inbox`,
	`\Sent`,
	"$",
}

var (
	encodedWordArtifact = regexp.MustCompile(`=\?[^?\s]*\?[QqBb]\?[^?\s]*\?=`)
	encodedWordPrefix   = regexp.MustCompile(`=\?[^?\s]*\?[QqBb]\?`)
	encodedWordSuffix   = regexp.MustCompile(`\?=`)
)

// Sanitizer cleans raw label tokens and rejects the ones that should not
// become label rows.
type Sanitizer struct {
	exclusions []string // lower-cased
}

// NewSanitizer returns a Sanitizer using DefaultExclusions plus extra.
// Blank extra entries are ignored.
func NewSanitizer(extra []string) *Sanitizer {
	s := &Sanitizer{}
	for _, e := range append(append([]string(nil), DefaultExclusions...), extra...) {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		s.exclusions = append(s.exclusions, strings.ToLower(e))
	}
	return s
}

// Clean normalizes a single comma-split label token. ok is false when the
// label is empty, excluded or contains non-ASCII characters; rejections
// are routine and not errors.
func (s *Sanitizer) Clean(raw string) (label string, ok bool) {
	label = Normalize(raw)
	if label == "" {
		return "", false
	}
	lower := strings.ToLower(label)
	for _, e := range s.exclusions {
		if strings.HasPrefix(lower, e) {
			return "", false
		}
	}
	for i := 0; i < len(label); i++ {
		if label[i] >= 0x80 {
			return "", false
		}
	}
	return label, true
}

// Normalize applies the cleanup steps of Clean without classifying:
// encoded words are decoded, leftover encoded-word fragments stripped,
// underscores turned into spaces and whitespace collapsed.
func Normalize(raw string) string {
	s := raw
	if strings.Contains(s, "=?") {
		s = mime.DecodeHeader(s)
	}
	s = encodedWordArtifact.ReplaceAllString(s, "")
	s = encodedWordPrefix.ReplaceAllString(s, "")
	s = encodedWordSuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

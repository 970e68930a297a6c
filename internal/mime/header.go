// Package mime turns raw archive messages into email records: RFC 2047
// header decoding, body extraction, content-type inference and the
// content-hash identifier.
package mime

import (
	"fmt"
	"io"
	gomime "mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"

	"github.com/wesm/mboxvault/internal/textutil"
)

// encodedWordRe matches a single RFC 2047 encoded word.
var encodedWordRe = regexp.MustCompile(`=\?[^?\s]+\?[QqBb]\?[^?\s]*\?=`)

var unfolder = strings.NewReplacer("\r\n", "", "\n", "")

// wordDecoder converts encoded words through go-message's charset table,
// with textutil's alias table as a second chance.
var wordDecoder = &gomime.WordDecoder{CharsetReader: charsetReader}

// rawWordDecoder undoes only the Q/B transfer encoding and hands the bytes
// back untouched. Used when the declared charset cannot be honoured.
var rawWordDecoder = &gomime.WordDecoder{
	CharsetReader: func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	},
}

func charsetReader(name string, input io.Reader) (io.Reader, error) {
	if r, err := charset.Reader(name, input); err == nil {
		return r, nil
	}
	if enc := textutil.GetEncodingByName(name); enc != nil {
		return enc.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", name)
}

// DecodeHeader decodes a raw header value that may mix RFC 2047 encoded
// words with plain text. Each encoded word is decoded on its own, so one
// bad segment never spoils its neighbours: an unknown charset falls back
// to UTF-8 with U+FFFD for invalid bytes, and a malformed payload is kept
// verbatim. Whitespace between two adjacent encoded words is dropped.
// An empty value yields "".
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	raw = unfolder.Replace(raw)
	if !strings.Contains(raw, "=?") {
		return textutil.SanitizeUTF8(raw)
	}

	var sb strings.Builder
	last := 0
	prevEncoded := false
	for _, loc := range encodedWordRe.FindAllStringIndex(raw, -1) {
		gap := raw[last:loc[0]]
		if !prevEncoded || strings.TrimSpace(gap) != "" {
			sb.WriteString(gap)
		}
		sb.WriteString(decodeWord(raw[loc[0]:loc[1]]))
		prevEncoded = true
		last = loc[1]
	}
	sb.WriteString(raw[last:])
	return textutil.SanitizeUTF8(sb.String())
}

func decodeWord(word string) string {
	if s, err := wordDecoder.Decode(word); err == nil {
		return s
	}
	if s, err := rawWordDecoder.Decode(word); err == nil {
		return textutil.SanitizeUTF8(s)
	}
	return word
}

// Package textutil provides text cleanup and charset helpers shared by the
// header decoder, the content extractor and the CLI output.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// SanitizeUTF8 replaces every invalid byte with U+FFFD.
// Each bad byte gets its own replacement character.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.WriteString(s[i : i+size])
		i += size
	}
	return sb.String()
}

// fallbackEncodings are tried in order when detection is inconclusive.
// Single-byte Western encodings first; they cover most legacy mail.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it tries
// charset detection, then a list of common legacy encodings, and finally
// falls back to SanitizeUTF8.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= minConfidence {
		if enc := GetEncodingByName(res.Charset); enc != nil {
			if out, ok := decodeStrict(enc, data); ok {
				return out
			}
		}
	}

	for _, enc := range fallbackEncodings {
		if out, ok := decodeStrict(enc, data); ok {
			return out
		}
	}
	return SanitizeUTF8(s)
}

func decodeStrict(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

var charsetNameCleaner = strings.NewReplacer("-", "", "_", "", " ", "")

// GetEncodingByName maps an IANA charset name (or a common alias) to an
// encoding. Matching ignores case, '-' and '_'. Returns nil when unknown.
func GetEncodingByName(name string) encoding.Encoding {
	switch charsetNameCleaner.Replace(strings.ToLower(strings.TrimSpace(name))) {
	case "utf8":
		return unicode.UTF8
	case "windows1252", "cp1252":
		return charmap.Windows1252
	case "iso88591", "latin1", "l1":
		return charmap.ISO8859_1
	case "iso885915", "latin9":
		return charmap.ISO8859_15
	case "iso88592", "latin2":
		return charmap.ISO8859_2
	case "windows1250", "cp1250":
		return charmap.Windows1250
	case "windows1251", "cp1251":
		return charmap.Windows1251
	case "shiftjis", "sjis":
		return japanese.ShiftJIS
	case "eucjp":
		return japanese.EUCJP
	case "iso2022jp":
		return japanese.ISO2022JP
	case "euckr", "ksc56011987":
		return korean.EUCKR
	case "gb2312", "gbk", "cp936":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "koi8r":
		return charmap.KOI8R
	case "koi8u":
		return charmap.KOI8U
	}
	return nil
}

// Truncate shortens s to at most width terminal cells, appending "..."
// when something was cut. Wide runes (CJK, emoji) count as two cells.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "...")
}

// FirstLine returns the first line of s, ignoring leading line breaks.
// Useful for turning multi-line driver errors into log-friendly text.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

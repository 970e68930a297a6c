package mime

import (
	"testing"
	"unicode/utf8"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Quarterly report", "Quarterly report"},
		{"base64 utf-8", "=?UTF-8?B?SGVsbG8gV29ybGQ=?=", "Hello World"},
		{"q latin1", "=?ISO-8859-1?Q?Caf=E9?= au lait", "Café au lait"},
		{"q underscores", "=?utf-8?q?two_words?=", "two words"},
		{"mixed plain and encoded", "Re: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?= from Bob", "Re: Grüße from Bob"},
		{"adjacent words join", "=?UTF-8?Q?abc?= =?UTF-8?Q?def?=", "abcdef"},
		{"adjacent words across fold", "=?UTF-8?Q?abc?=\r\n =?UTF-8?Q?def?=", "abcdef"},
		{"mixed charsets", "=?ISO-8859-1?Q?M=FCnchen?= / =?UTF-8?B?5p2x5Lqs?=", "München / 東京"},
		{"windows-1252 alias", "=?cp1252?Q?=93quoted=94?=", "“quoted”"},
		{"unknown charset falls back to utf-8", "=?x-bogus?Q?caf=C3=A9?=", "café"},
		{"unknown charset invalid bytes replaced", "=?x-bogus?Q?bad=FF?=", "bad�"},
		{"malformed base64 kept verbatim", "=?UTF-8?B?!!!?=", "=?UTF-8?B?!!!?="},
		{"raw 8-bit header", "caf\xe9", "caf�"},
		{"folded plain header", "a long\r\n subject", "a long subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeHeader(tt.in)
			if got != tt.want {
				t.Errorf("DecodeHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("DecodeHeader(%q) returned invalid UTF-8", tt.in)
			}
		})
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("From: a@example.com\r\nSubject: x\r\n\r\nbody"))
	b := ContentHash([]byte("From: a@example.com\r\nSubject: x\r\n\r\nbody"))
	c := ContentHash([]byte("Subject: x\r\nFrom: a@example.com\r\n\r\nbody"))

	if a != b {
		t.Errorf("identical bytes hashed differently: %s vs %s", a, b)
	}
	if a == c {
		t.Error("reordered headers must produce a different identity")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
	if want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"; ContentHash(nil) != want {
		t.Errorf("ContentHash(nil) = %s, want %s", ContentHash(nil), want)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
		want   string
	}{
		{"Mon, 01 Jan 2024 12:00:00 +0000", true, "2024-01-01T12:00:00Z"},
		{"Tue, 2 Jan 2024 08:30:00 -0500 (EST)", true, "2024-01-02T13:30:00Z"},
		{"2 Jan 2024 08:30:00 +0100", true, "2024-01-02T07:30:00Z"},
		{"2024-03-04 05:06:07", true, "2024-03-04T05:06:07Z"},
		{"sometime last week", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got.Format("2006-01-02T15:04:05Z07:00") != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02T15:04:05Z07:00"), tt.want)
		}
	}
}

package testutil

import (
	"bytes"
	"regexp"
	"testing"
)

// DefaultFromLine is the separator line MboxBuilder uses unless told otherwise.
const DefaultFromLine = "From MAILER-DAEMON Mon Jan  1 12:00:00 2024"

var fromLineRe = regexp.MustCompile(`(?m)^(>*From )`)

// MboxBuilder assembles an mboxrd archive in memory.
type MboxBuilder struct {
	buf bytes.Buffer
}

// NewMbox returns an empty MboxBuilder.
func NewMbox() *MboxBuilder {
	return &MboxBuilder{}
}

// Add appends a message under DefaultFromLine.
func (b *MboxBuilder) Add(raw []byte) *MboxBuilder {
	return b.AddWithFromLine(DefaultFromLine, raw)
}

// AddWithFromLine appends a message under the given separator line. Body
// lines starting with "From " (after any '>' quoting) gain one more '>'.
// A message without a trailing newline gets one, and a blank line
// separates it from the next message.
func (b *MboxBuilder) AddWithFromLine(fromLine string, raw []byte) *MboxBuilder {
	b.buf.WriteString(fromLine)
	b.buf.WriteByte('\n')
	b.buf.Write(fromLineRe.ReplaceAll(raw, []byte(">$1")))
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		b.buf.WriteByte('\n')
	}
	b.buf.WriteByte('\n')
	return b
}

// AddRaw appends bytes verbatim, for malformed archive tests.
func (b *MboxBuilder) AddRaw(data []byte) *MboxBuilder {
	b.buf.Write(data)
	return b
}

// Bytes returns the archive built so far.
func (b *MboxBuilder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// WriteMbox writes an archive of msgs to dir/name and returns its path.
func WriteMbox(t *testing.T, dir, name string, msgs ...[]byte) string {
	t.Helper()
	b := NewMbox()
	for _, m := range msgs {
		b.Add(m)
	}
	return WriteFile(t, dir, name, b.Bytes())
}

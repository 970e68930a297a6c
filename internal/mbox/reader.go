// Package mbox splits an mbox archive into individual RFC 5322 messages.
//
// Both mboxo and mboxrd exports are accepted. Body lines that begin with
// one or more '>' followed by "From " lose a single leading '>' when read,
// which undoes mboxrd quoting. A line only counts as a message separator
// when it starts with "From " and carries a recognisable timestamp, so a
// stray "From here on..." sentence in a body does not split a message.
package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const maxLineBytes = 32 << 20 // 32 MiB

var (
	// ErrMessageTooLarge is returned (wrapped) by Next for a message that
	// exceeds the configured size cap. The message is skipped and the
	// reader stays usable.
	ErrMessageTooLarge = errors.New("mbox message exceeds max size")

	// ErrNotMbox is returned by Validate when no separator line is found.
	ErrNotMbox = errors.New("no \"From \" separator found (not an mbox file?)")
)

// Message is one message from an archive.
type Message struct {
	// Ordinal is the 1-based position of the message in the archive.
	Ordinal int

	// FromLine is the separator line without its line ending.
	FromLine string

	// Raw holds the message headers and body exactly as stored, minus the
	// separator line, the blank line that precedes the next separator,
	// and mboxrd quoting.
	Raw []byte
}

// Reader reads messages one at a time; memory use is bounded by the
// largest single message.
type Reader struct {
	br *bufio.Reader

	pendingFrom string
	hasPending  bool
	eof         bool
	count       int

	maxMessageBytes int64
	unescapeFrom    bool
}

// NewReader returns a Reader with no size cap and mboxrd unescaping on.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br:           bufio.NewReaderSize(r, 64<<10),
		unescapeFrom: true,
	}
}

// NewReaderWithMaxMessageBytes returns a Reader that rejects messages larger
// than maxMessageBytes. Values <= 0 disable the cap.
func NewReaderWithMaxMessageBytes(r io.Reader, maxMessageBytes int64) *Reader {
	rd := NewReader(r)
	rd.maxMessageBytes = maxMessageBytes
	return rd
}

// SetUnescapeFrom turns mboxrd unquoting of ">From " lines on or off.
func (r *Reader) SetUnescapeFrom(enabled bool) {
	r.unescapeFrom = enabled
}

// Count reports how many messages have been started so far, including one
// that Next rejected. After an error from Next it is that message's ordinal.
func (r *Reader) Count() int {
	return r.count
}

// Next returns the next message, or io.EOF once the archive is exhausted.
func (r *Reader) Next() (*Message, error) {
	if !r.hasPending {
		if r.eof {
			return nil, io.EOF
		}
		if err := r.seekSeparator(); err != nil {
			return nil, err
		}
	}

	r.count++
	msg := &Message{Ordinal: r.count, FromLine: r.pendingFrom}
	r.hasPending = false

	var buf bytes.Buffer
	tooLarge := false
	for {
		line, err := r.readLine()
		if len(line) > 0 {
			if IsSeparatorLine(line) {
				r.pendingFrom = string(bytes.TrimRight(line, "\r\n"))
				r.hasPending = true
				break
			}
			if r.unescapeFrom {
				line = unescapeFrom(line)
			}
			if r.maxMessageBytes > 0 && int64(buf.Len()+len(line)) > r.maxMessageBytes {
				tooLarge = true
				buf.Reset()
			}
			if !tooLarge {
				buf.Write(line)
			}
		}
		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message %d: %w", r.count, err)
		}
	}

	if tooLarge {
		return nil, fmt.Errorf("message %d: %w (limit %d bytes)", r.count, ErrMessageTooLarge, r.maxMessageBytes)
	}
	msg.Raw = trimSeparatorBlank(buf.Bytes())
	return msg, nil
}

// seekSeparator skips any preamble before the first separator line.
func (r *Reader) seekSeparator() error {
	for {
		line, err := r.readLine()
		if IsSeparatorLine(line) {
			r.pendingFrom = string(bytes.TrimRight(line, "\r\n"))
			r.hasPending = true
			if err == io.EOF {
				r.eof = true
			}
			return nil
		}
		if err == io.EOF {
			r.eof = true
			return io.EOF
		}
		if err != nil {
			return err
		}
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var out []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		out = append(out, chunk...)
		if len(out) > maxLineBytes {
			return nil, fmt.Errorf("mbox line exceeds %d bytes", maxLineBytes)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return out, err
	}
}

// trimSeparatorBlank drops the single empty line that mbox writers put
// before the next "From " separator.
func trimSeparatorBlank(raw []byte) []byte {
	switch {
	case bytes.HasSuffix(raw, []byte("\r\n\r\n")):
		return raw[:len(raw)-2]
	case bytes.HasSuffix(raw, []byte("\n\n")):
		return raw[:len(raw)-1]
	}
	return raw
}

// unescapeFrom removes one leading '>' from lines matching ^>+From .
func unescapeFrom(line []byte) []byte {
	if len(line) == 0 || line[0] != '>' {
		return line
	}
	i := 0
	for i < len(line) && line[i] == '>' {
		i++
	}
	if bytes.HasPrefix(line[i:], fromPrefix) {
		return line[1:]
	}
	return line
}

// Validate reads up to maxBytes from r and reports ErrNotMbox unless a
// separator line shows up.
func Validate(r io.Reader, maxBytes int64) error {
	if maxBytes <= 0 {
		return fmt.Errorf("validate mbox: maxBytes must be > 0")
	}
	br := bufio.NewReader(io.LimitReader(r, maxBytes))
	for {
		line, err := br.ReadBytes('\n')
		if IsSeparatorLine(line) {
			return nil
		}
		if err == io.EOF {
			return ErrNotMbox
		}
		if err != nil {
			return err
		}
	}
}

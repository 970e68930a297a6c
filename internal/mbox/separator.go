package mbox

import (
	"bytes"
	"strings"
)

var fromPrefix = []byte("From ")

// IsSeparatorLine reports whether line (with or without its line ending)
// is an mbox "From " separator. Beyond the prefix it requires a sender
// token followed by something that looks like a ctime/asctime timestamp:
// a clock (hh:mm or hh:mm:ss) and a four-digit year, in any order, which
// covers Gmail Takeout, Thunderbird ("From - ...") and mutt exports.
func IsSeparatorLine(line []byte) bool {
	if !bytes.HasPrefix(line, fromPrefix) {
		return false
	}
	fields := strings.Fields(string(bytes.TrimRight(line[len(fromPrefix):], "\r\n")))
	if len(fields) < 3 {
		return false
	}
	var hasClock, hasYear bool
	for _, f := range fields[1:] {
		switch {
		case isClock(f):
			hasClock = true
		case isYear(f):
			hasYear = true
		}
	}
	return hasClock && hasYear
}

func isClock(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if len(p) < 1 || len(p) > 2 || !allDigits(p) {
			return false
		}
	}
	return true
}

func isYear(s string) bool {
	return len(s) == 4 && allDigits(s) && (s[0] == '1' || s[0] == '2')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

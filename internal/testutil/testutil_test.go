package testutil

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/wesm/mboxvault/internal/mbox"
)

func TestNewTestStore(t *testing.T) {
	st := NewTestStore(t)

	stats, err := st.GetStats()
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.EmailCount != 0 {
		t.Errorf("expected 0 emails, got %d", stats.EmailCount)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path := WriteFile(t, dir, "subdir/nested/test.txt", []byte("nested content"))
	MustExist(t, filepath.Join(dir, "subdir", "nested"))
	if got := string(ReadFile(t, path)); got != "nested content" {
		t.Errorf("content = %q", got)
	}
	MustNotExist(t, filepath.Join(dir, "does-not-exist.txt"))
}

func TestValidateRelativePath(t *testing.T) {
	dir := t.TempDir()
	absPath, err := filepath.Abs("/some/path.txt")
	if err != nil {
		t.Fatalf("failed to get absolute path: %v", err)
	}

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute path", absPath, true},
		{"escape dot dot", "../escape.txt", true},
		{"escape dot dot nested", "subdir/../../escape.txt", true},
		{"escape just dot dot", "..", true},
		{"simple", "archive.mbox", false},
		{"nested", "a/b/c/deep.mbox", false},
		{"current dir", "./current.mbox", false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRelativePath(dir, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRelativePath() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMboxBuilder_RoundTrip(t *testing.T) {
	msgs := [][]byte{
		[]byte("Subject: one\n\nFrom the top\n>From quoted\n"),
		[]byte("Subject: two\n\nno trailing newline"),
	}
	b := NewMbox()
	for _, m := range msgs {
		b.Add(m)
	}

	r := mbox.NewReader(bytes.NewReader(b.Bytes()))
	var got [][]byte
	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, m.Raw)
	}
	if len(got) != 2 {
		t.Fatalf("read %d messages, want 2", len(got))
	}
	if !bytes.Equal(got[0], msgs[0]) {
		t.Errorf("message 1 = %q, want %q", got[0], msgs[0])
	}
	if want := append(append([]byte(nil), msgs[1]...), '\n'); !bytes.Equal(got[1], want) {
		t.Errorf("message 2 = %q, want %q", got[1], want)
	}
}

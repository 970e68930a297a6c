package importer_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/testutil"
	"github.com/wesm/mboxvault/internal/testutil/email"
)

func TestProcessAll_MovesCompletedArchives(t *testing.T) {
	st := testutil.NewTestStore(t)
	root := t.TempDir()
	inbox := filepath.Join(root, "mbox")
	done := filepath.Join(root, "processed")

	testutil.WriteMbox(t, inbox, "2024-02.mbox", email.NewMessage().Subject("feb").Labels("Work").Bytes())
	testutil.WriteMbox(t, inbox, "2024-01.MBOX", email.NewMessage().Subject("jan").Bytes())
	testutil.WriteFile(t, inbox, "broken.mbox", []byte("this is not an archive\n"))
	testutil.WriteFile(t, inbox, "notes.txt", []byte("ignored\n"))

	bs, err := newPipeline(importer.Options{}).ProcessAll(context.Background(), st, inbox, done)
	testutil.MustNoErr(t, err, "ProcessAll")

	testutil.AssertStrings(t, bs.Moved,
		filepath.Join(done, "2024-01.MBOX"),
		filepath.Join(done, "2024-02.mbox"),
	)
	if len(bs.Failed) != 1 || filepath.Base(bs.Failed[0].Archive) != "broken.mbox" {
		t.Fatalf("Failed = %+v, want broken.mbox", bs.Failed)
	}
	if !errors.Is(bs.Failed[0].Err, mbox.ErrNotMbox) {
		t.Errorf("failure error = %v, want ErrNotMbox", bs.Failed[0].Err)
	}
	if bs.Processed != 2 || bs.Succeeded != 2 {
		t.Errorf("totals = %d processed, %d succeeded", bs.Processed, bs.Succeeded)
	}

	testutil.MustExist(t, filepath.Join(inbox, "broken.mbox"))
	testutil.MustExist(t, filepath.Join(inbox, "notes.txt"))
	testutil.MustNotExist(t, filepath.Join(inbox, "2024-02.mbox"))
	if got := count(t, st, "emails"); got != 2 {
		t.Errorf("emails = %d, want 2", got)
	}
}

func TestProcessAll_MovesArchiveWithMessageFailures(t *testing.T) {
	st := testutil.NewTestStore(t)
	root := t.TempDir()
	inbox := filepath.Join(root, "mbox")
	done := filepath.Join(root, "processed")

	big := email.NewMessage().Body(string(make([]byte, 2048))).Bytes()
	testutil.WriteMbox(t, inbox, "a.mbox", big, email.NewMessage().Bytes())

	bs, err := newPipeline(importer.Options{MaxMessageBytes: 1024}).ProcessAll(context.Background(), st, inbox, done)
	testutil.MustNoErr(t, err, "ProcessAll")

	if bs.FailedMessages != 1 || len(bs.Moved) != 1 {
		t.Errorf("FailedMessages = %d, Moved = %v", bs.FailedMessages, bs.Moved)
	}
	testutil.MustExist(t, filepath.Join(done, "a.mbox"))
}

func TestProcessAll_CustomExtension(t *testing.T) {
	st := testutil.NewTestStore(t)
	root := t.TempDir()
	inbox := filepath.Join(root, "in")

	testutil.WriteMbox(t, inbox, "a.mbx", email.NewMessage().Bytes())
	testutil.WriteMbox(t, inbox, "b.mbox", email.NewMessage().Subject("b").Bytes())

	bs, err := newPipeline(importer.Options{Extension: ".mbx"}).ProcessAll(context.Background(), st, inbox, filepath.Join(root, "out"))
	testutil.MustNoErr(t, err, "ProcessAll")
	if len(bs.Moved) != 1 || filepath.Base(bs.Moved[0]) != "a.mbx" {
		t.Errorf("Moved = %v, want a.mbx only", bs.Moved)
	}
}

func TestProcessAll_MissingArchiveDir(t *testing.T) {
	st := testutil.NewTestStore(t)
	root := t.TempDir()

	_, err := newPipeline(importer.Options{}).ProcessAll(context.Background(), st, filepath.Join(root, "nope"), filepath.Join(root, "out"))
	if !errors.Is(err, importer.ErrArchiveDirMissing) {
		t.Fatalf("err = %v, want ErrArchiveDirMissing", err)
	}
}

func TestProcessAll_CancelledLeavesArchives(t *testing.T) {
	st := testutil.NewTestStore(t)
	root := t.TempDir()
	inbox := filepath.Join(root, "mbox")
	testutil.WriteMbox(t, inbox, "a.mbox", email.NewMessage().Bytes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPipeline(importer.Options{}).ProcessAll(ctx, st, inbox, filepath.Join(root, "out"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	testutil.MustExist(t, filepath.Join(inbox, "a.mbox"))
}

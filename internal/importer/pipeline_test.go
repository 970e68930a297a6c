package importer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/mime"
	"github.com/wesm/mboxvault/internal/store"
	"github.com/wesm/mboxvault/internal/testutil"
	"github.com/wesm/mboxvault/internal/testutil/email"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(opts importer.Options) *importer.Pipeline {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return importer.NewPipeline(opts)
}

type labelRow struct {
	Label  string
	Parent string // "<nil>" for NULL
}

func labelRows(t *testing.T, st *store.Store, emailID string) []labelRow {
	t.Helper()
	rows, err := st.DB().Query(`
		SELECT label, COALESCE(parent_label, '<nil>') FROM labels
		WHERE email_id = ? ORDER BY label`, emailID)
	testutil.MustNoErr(t, err, "query labels")
	defer rows.Close()
	var out []labelRow
	for rows.Next() {
		var r labelRow
		testutil.MustNoErr(t, rows.Scan(&r.Label, &r.Parent), "scan label")
		out = append(out, r)
	}
	testutil.MustNoErr(t, rows.Err(), "iterate labels")
	return out
}

func count(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var n int
	testutil.MustNoErr(t, st.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n), "count "+table)
	return n
}

func process(t *testing.T, p *importer.Pipeline, st *store.Store, path string) *importer.Summary {
	t.Helper()
	sum, err := p.ProcessArchive(context.Background(), st, path)
	testutil.MustNoErr(t, err, "ProcessArchive")
	return sum
}

func TestProcessArchive_NestedLabelMaterializesEveryLevel(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().Labels("A/B/C").Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw)

	sum := process(t, newPipeline(importer.Options{}), st, path)

	want := []labelRow{{"A", "<nil>"}, {"A/B", "A"}, {"A/B/C", "A/B"}}
	if diff := cmp.Diff(want, labelRows(t, st, mime.ContentHash(raw))); diff != "" {
		t.Errorf("label rows mismatch (-want +got):\n%s", diff)
	}
	if sum.Processed != 1 || sum.Succeeded != 1 || sum.LabelsWritten != 3 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestProcessArchive_StoresEmailRecord(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().
		From("=?UTF-8?Q?J=C3=B6rg?= <jorg@example.com>").
		To("team@example.com").
		Subject("=?ISO-8859-1?Q?R=E9sum=E9?=").
		Date("Tue, 02 Jan 2024 08:30:00 -0500").
		Body("Plain body").
		Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw)

	process(t, newPipeline(importer.Options{}), st, path)

	got, err := st.GetEmail(mime.ContentHash(raw))
	testutil.MustNoErr(t, err, "GetEmail")
	if got == nil {
		t.Fatal("email not stored under its content hash")
	}
	if got.Subject != "Résumé" || got.Sender != "Jörg <jorg@example.com>" || got.Recipient != "team@example.com" {
		t.Errorf("headers = %q / %q / %q", got.Subject, got.Sender, got.Recipient)
	}
	if got.Date != "Tue, 02 Jan 2024 08:30:00 -0500" {
		t.Errorf("Date = %q", got.Date)
	}
	if got.SentAt == nil || got.SentAt.Unix() != 1704202200 {
		t.Errorf("SentAt = %v", got.SentAt)
	}
	if strings.TrimSpace(got.Content) != "Plain body" || got.ContentType != mime.ContentTypePlain {
		t.Errorf("content = %q (%s)", got.Content, got.ContentType)
	}
}

func TestProcessArchive_ReingestIsIdempotent(t *testing.T) {
	st := testutil.NewTestStore(t)
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox",
		email.NewMessage().Subject("one").Labels("Work/Projects", "Personal").Bytes(),
		email.NewMessage().Subject("two").Labels("Work").Bytes(),
	)
	p := newPipeline(importer.Options{})

	first := process(t, p, st, path)
	emails, rows := count(t, st, "emails"), count(t, st, "labels")

	second := process(t, p, st, path)
	if got := count(t, st, "emails"); got != emails {
		t.Errorf("emails after re-ingest = %d, want %d", got, emails)
	}
	if got := count(t, st, "labels"); got != rows {
		t.Errorf("labels after re-ingest = %d, want %d", got, rows)
	}
	if emails != 2 || rows != 4 {
		t.Errorf("first run stored %d emails, %d labels; want 2, 4", emails, rows)
	}
	if first.LabelsWritten != 4 || second.LabelsWritten != 0 || second.LabelsExisting != 4 {
		t.Errorf("label counts: first %+v, second %+v", first, second)
	}
}

func TestProcessArchive_SystemLabelsNeverPersisted(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().
		Labels("Inbox", "Category_Updates", "category promotions", "Unread", "Work").
		Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw)

	sum := process(t, newPipeline(importer.Options{}), st, path)

	want := []labelRow{{"Work", "<nil>"}}
	if diff := cmp.Diff(want, labelRows(t, st, mime.ContentHash(raw))); diff != "" {
		t.Errorf("label rows mismatch (-want +got):\n%s", diff)
	}
	if sum.LabelsRejected != 4 {
		t.Errorf("LabelsRejected = %d, want 4", sum.LabelsRejected)
	}
}

func TestProcessArchive_NonASCIILabelsNeverPersisted(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().
		Labels("Café", "=?UTF-8?B?5pel5pys?=", "Travel/Paris").
		Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw)

	process(t, newPipeline(importer.Options{}), st, path)

	want := []labelRow{{"Travel", "<nil>"}, {"Travel/Paris", "Travel"}}
	if diff := cmp.Diff(want, labelRows(t, st, mime.ContentHash(raw))); diff != "" {
		t.Errorf("label rows mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessArchive_ConfiguredLabelHeadersAndExclusions(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().
		Labels("FromGmailHeader").
		Header("X-GM-LABELS", "Receipts/2024,Projects").
		Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw)

	p := newPipeline(importer.Options{
		LabelHeaders:  []string{"X-GM-LABELS"},
		ExcludeLabels: []string{"receipts"},
	})
	process(t, p, st, path)

	want := []labelRow{{"Projects", "<nil>"}}
	if diff := cmp.Diff(want, labelRows(t, st, mime.ContentHash(raw))); diff != "" {
		t.Errorf("label rows mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessArchive_HTMLInference(t *testing.T) {
	st := testutil.NewTestStore(t)
	html := email.NewMessage().ContentType(`text/html; charset="utf-8"`).Body("  <html><body>Hi</body></html>").Bytes()
	declaredHTML := email.NewMessage().ContentType(`text/html; charset="utf-8"`).Body("Hi <b>there</b>").Bytes()
	alt := email.NewMessage().Body("plain first").HTMLAlternative("<p>html second</p>").Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", html, declaredHTML, alt)

	process(t, newPipeline(importer.Options{}), st, path)

	for raw, want := range map[string]string{
		string(html):         mime.ContentTypeHTML,
		string(declaredHTML): mime.ContentTypePlain,
		string(alt):          mime.ContentTypePlain,
	} {
		got, err := st.GetEmail(mime.ContentHash([]byte(raw)))
		testutil.MustNoErr(t, err, "GetEmail")
		if got == nil || got.ContentType != want {
			t.Errorf("content type for %q = %+v, want %s", firstLine(raw), got, want)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func TestProcessArchive_IdenticalMessagesShareOneRow(t *testing.T) {
	st := testutil.NewTestStore(t)
	raw := email.NewMessage().Labels("Work").Bytes()
	other := email.NewMessage().Subject("different").Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", raw, other, raw)

	sum := process(t, newPipeline(importer.Options{}), st, path)

	if sum.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", sum.Succeeded)
	}
	if got := count(t, st, "emails"); got != 2 {
		t.Errorf("emails = %d, want 2", got)
	}
	if got := count(t, st, "labels"); got != 1 {
		t.Errorf("labels = %d, want 1", got)
	}
}

func TestProcessArchive_InvalidBytesReplacedAndArchiveContinues(t *testing.T) {
	st := testutil.NewTestStore(t)
	bad := email.NewMessage().Subject("bad bytes").Body("caf\xe9 \xff\xfe end").Bytes()
	good := email.NewMessage().Subject("after").Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", bad, good)

	sum := process(t, newPipeline(importer.Options{}), st, path)
	if sum.Succeeded != 2 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	got, err := st.GetEmail(mime.ContentHash(bad))
	testutil.MustNoErr(t, err, "GetEmail")
	if got == nil {
		t.Fatal("bad-bytes email not stored")
	}
	testutil.AssertValidUTF8(t, got.Content)
	testutil.AssertContainsAll(t, got.Content, "caf", "�", "end")

	after, err := st.GetEmail(mime.ContentHash(good))
	testutil.MustNoErr(t, err, "GetEmail after")
	if after == nil {
		t.Error("message after the bad one was not stored")
	}
}

func TestProcessArchive_OversizedMessageSkipped(t *testing.T) {
	st := testutil.NewTestStore(t)
	small := email.NewMessage().Subject("small").Bytes()
	huge := email.NewMessage().Subject("huge").Body(strings.Repeat("x", 4096)).Bytes()
	tail := email.NewMessage().Subject("tail").Bytes()
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", small, huge, tail)

	sum := process(t, newPipeline(importer.Options{MaxMessageBytes: 1024}), st, path)

	if sum.Processed != 3 || sum.Succeeded != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	f := sum.Failures[0]
	if f.Ordinal != 2 || !errors.Is(f.Err, mbox.ErrMessageTooLarge) {
		t.Errorf("failure = %+v, want ordinal 2 ErrMessageTooLarge", f)
	}
	if got := count(t, st, "emails"); got != 2 {
		t.Errorf("emails = %d, want 2", got)
	}
}

func TestProcessArchive_SmallCheckpointInterval(t *testing.T) {
	st := testutil.NewTestStore(t)
	var msgs [][]byte
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		msgs = append(msgs, email.NewMessage().Subject(s).Labels("Batch/"+s).Bytes())
	}
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", msgs...)

	sum := process(t, newPipeline(importer.Options{CheckpointInterval: 2}), st, path)

	if sum.Succeeded != 5 {
		t.Errorf("Succeeded = %d, want 5", sum.Succeeded)
	}
	if got := count(t, st, "emails"); got != 5 {
		t.Errorf("emails = %d, want 5", got)
	}
	if got := count(t, st, "labels"); got != 10 {
		t.Errorf("labels = %d, want 10", got)
	}
}

func TestProcessArchive_NotAnMbox(t *testing.T) {
	st := testutil.NewTestStore(t)
	path := testutil.WriteFile(t, t.TempDir(), "notes.mbox", []byte("just some notes\nnothing else\n"))

	sum, err := newPipeline(importer.Options{}).ProcessArchive(context.Background(), st, path)
	if !errors.Is(err, mbox.ErrNotMbox) {
		t.Fatalf("err = %v, want ErrNotMbox", err)
	}
	if sum != nil {
		t.Errorf("summary = %+v, want nil", sum)
	}
	if got := count(t, st, "emails"); got != 0 {
		t.Errorf("emails = %d, want 0", got)
	}
}

func TestProcessArchive_MissingFile(t *testing.T) {
	st := testutil.NewTestStore(t)
	_, err := newPipeline(importer.Options{}).ProcessArchive(context.Background(), st, filepath.Join(t.TempDir(), "nope.mbox"))
	if err == nil {
		t.Fatal("expected error for a missing archive")
	}
}

func TestProcessArchive_EmptyFile(t *testing.T) {
	st := testutil.NewTestStore(t)
	path := testutil.WriteFile(t, t.TempDir(), "empty.mbox", nil)

	sum := process(t, newPipeline(importer.Options{}), st, path)
	if sum.Processed != 0 {
		t.Errorf("Processed = %d, want 0", sum.Processed)
	}
}

func TestProcessArchive_CancelledContext(t *testing.T) {
	st := testutil.NewTestStore(t)
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox", email.NewMessage().Bytes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := newPipeline(importer.Options{}).ProcessArchive(ctx, st, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum == nil || sum.Processed != 0 {
		t.Errorf("summary = %+v, want empty summary", sum)
	}
}

func TestProcessArchive_Metrics(t *testing.T) {
	st := testutil.NewTestStore(t)
	reg := prometheus.NewRegistry()
	m := importer.NewMetrics(reg)
	path := testutil.WriteMbox(t, t.TempDir(), "a.mbox",
		email.NewMessage().Subject("one").Labels("A/B", "Inbox").Bytes(),
		email.NewMessage().Subject("two").Body(strings.Repeat("y", 4096)).Bytes(),
	)

	process(t, newPipeline(importer.Options{Metrics: m, MaxMessageBytes: 1024}), st, path)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"messages ok", promtest.ToFloat64(m.Messages.WithLabelValues("ok")), 1},
		{"messages failed", promtest.ToFloat64(m.Messages.WithLabelValues("failed")), 1},
		{"labels written", promtest.ToFloat64(m.Labels.WithLabelValues("written")), 2},
		{"labels rejected", promtest.ToFloat64(m.Labels.WithLabelValues("rejected")), 1},
		{"archives completed", promtest.ToFloat64(m.Archives.WithLabelValues("completed")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

type recordingProgress struct {
	events []string
}

func (r *recordingProgress) OnStart(archive string) {
	r.events = append(r.events, "start "+filepath.Base(archive))
}

func (r *recordingProgress) OnProgress(processed, failed int) {
	r.events = append(r.events, fmt.Sprintf("progress %d/%d", processed, failed))
}

func (r *recordingProgress) OnComplete(s *importer.Summary, err error) {
	if err != nil {
		r.events = append(r.events, "failed")
		return
	}
	r.events = append(r.events, fmt.Sprintf("done %d", s.Processed))
}

func TestProcessArchive_ReportsProgress(t *testing.T) {
	st := testutil.NewTestStore(t)
	dir := t.TempDir()

	msgs := make([][]byte, 0, 150)
	for i := 0; i < 150; i++ {
		msgs = append(msgs, email.NewMessage().Subject(fmt.Sprintf("m%d", i)).Bytes())
	}
	good := testutil.WriteMbox(t, dir, "a.mbox", msgs...)
	bad := testutil.WriteFile(t, dir, "b.mbox", []byte("not mail\n"))

	prog := &recordingProgress{}
	p := newPipeline(importer.Options{Progress: prog})
	_, err := p.ProcessArchive(context.Background(), st, good)
	testutil.MustNoErr(t, err, "ProcessArchive")
	if _, err := p.ProcessArchive(context.Background(), st, bad); err == nil {
		t.Fatal("expected error for non-mbox archive")
	}

	want := []string{"start a.mbox", "progress 100/0", "done 150", "start b.mbox", "failed"}
	if diff := cmp.Diff(want, prog.events); diff != "" {
		t.Errorf("progress events mismatch (-want +got):\n%s", diff)
	}
}

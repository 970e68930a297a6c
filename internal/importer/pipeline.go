// Package importer ingests mbox archives into the store: one message at a
// time, each in its own savepoint, with periodic checkpoint commits.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/wesm/mboxvault/internal/labels"
	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/mime"
	"github.com/wesm/mboxvault/internal/store"
)

const (
	// DefaultCheckpointInterval is the number of attempted messages between
	// checkpoint commits.
	DefaultCheckpointInterval = 1000

	// DefaultMaxMessageBytes caps a single message read from an archive.
	DefaultMaxMessageBytes int64 = 128 << 20 // 128 MiB

	// DefaultExtension selects archive files in ProcessAll.
	DefaultExtension = ".mbox"

	validateBytes = 8 << 20 // 8 MiB

	progressEvery = 100
)

// Progress receives ingest progress for one archive at a time.
type Progress interface {
	OnStart(archive string)
	OnProgress(processed, failed int)
	OnComplete(summary *Summary, err error)
}

// NullProgress discards progress.
type NullProgress struct{}

func (NullProgress) OnStart(string)             {}
func (NullProgress) OnProgress(int, int)        {}
func (NullProgress) OnComplete(*Summary, error) {}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	CheckpointInterval int
	MaxMessageBytes    int64

	// Extension is the archive file suffix ProcessAll looks for.
	Extension string

	// LabelHeaders lists the annotation headers to read labels from.
	LabelHeaders []string

	// ExcludeLabels extends the sanitizer's exclusion prefixes.
	ExcludeLabels []string

	// DetectCharset enables charset detection for body parts without a
	// declared charset.
	DetectCharset bool

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *Metrics

	// Progress is optional; defaults to NullProgress.
	Progress Progress
}

// Result is the outcome of one message.
type Result struct {
	Ordinal int
	EmailID string // empty when the message could not be parsed
	Err     error
}

// Summary describes one archive run.
type Summary struct {
	Archive        string
	Processed      int // messages attempted
	Succeeded      int
	Failed         int
	LabelsWritten  int
	LabelsExisting int
	LabelsRejected int
	Failures       []Result
	Duration       time.Duration
}

// Pipeline turns archive messages into email and label rows.
type Pipeline struct {
	parser  *mime.Parser
	builder *labels.Builder
	opts    Options
	log     *slog.Logger
}

// NewPipeline returns a Pipeline with opts applied over the defaults.
func NewPipeline(opts Options) *Pipeline {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = DefaultCheckpointInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.Progress == nil {
		opts.Progress = NullProgress{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		parser: &mime.Parser{
			LabelHeaders: opts.LabelHeaders,
			Extractor:    mime.Extractor{DetectCharset: opts.DetectCharset},
		},
		builder: labels.NewBuilder(labels.NewSanitizer(opts.ExcludeLabels)),
		opts:    opts,
		log:     log,
	}
}

// ProcessArchive ingests every message of the archive at path. Per-message
// failures are logged, recorded in the summary and skipped. An error is
// returned only when the archive cannot be opened or read as mbox, when
// a commit fails, or when ctx is cancelled; in the last case the work done
// so far is committed and the partial summary is returned with ctx.Err().
func (p *Pipeline) ProcessArchive(ctx context.Context, st *store.Store, path string) (*Summary, error) {
	start := time.Now()
	p.opts.Progress.OnStart(path)
	summary, err := p.processArchive(ctx, st, path)
	if summary != nil {
		summary.Duration = time.Since(start)
	}
	p.opts.Progress.OnComplete(summary, err)

	status := "completed"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "interrupted"
	case err != nil:
		status = "failed"
	}
	p.opts.Metrics.archive(status, time.Since(start))
	return summary, err
}

func (p *Pipeline) processArchive(ctx context.Context, st *store.Store, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("archive %q is not a regular file", path)
	}
	// An empty file is an archive with no messages.
	if fi.Size() > 0 {
		if err := mbox.Validate(f, validateBytes); err != nil {
			return nil, fmt.Errorf("validate archive %s: %w", path, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek archive: %w", err)
		}
	}

	batch, err := st.BeginBatch()
	if err != nil {
		return nil, err
	}
	defer func() { _ = batch.Rollback() }()

	summary := &Summary{Archive: path}
	r := mbox.NewReaderWithMaxMessageBytes(f, p.opts.MaxMessageBytes)

	for {
		if err := ctx.Err(); err != nil {
			if cerr := batch.Commit(); cerr != nil {
				return summary, errors.Join(err, cerr)
			}
			p.log.Info("archive interrupted", "archive", path, "processed", summary.Processed)
			return summary, err
		}

		msg, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil && !errors.Is(err, mbox.ErrMessageTooLarge) {
			if cerr := batch.Commit(); cerr != nil {
				return summary, errors.Join(err, cerr)
			}
			return summary, fmt.Errorf("read archive %s: %w", path, err)
		}

		var res Result
		if err != nil {
			res = Result{Ordinal: r.Count(), Err: err}
		} else {
			res = p.ingest(batch, msg, summary)
		}

		summary.Processed++
		if res.Err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, res)
			p.log.Warn("failed to ingest message", "archive", path, "ordinal", res.Ordinal, "error", res.Err)
		} else {
			summary.Succeeded++
		}
		p.opts.Metrics.message(res.Err == nil)
		if summary.Processed%progressEvery == 0 {
			p.opts.Progress.OnProgress(summary.Processed, summary.Failed)
		}

		if summary.Processed%p.opts.CheckpointInterval == 0 {
			if err := batch.Checkpoint(); err != nil {
				return summary, fmt.Errorf("checkpoint after %d messages: %w", summary.Processed, err)
			}
			p.log.Debug("checkpoint", "archive", path, "processed", summary.Processed)
		}
	}

	if err := batch.Commit(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ingest parses one message and writes it inside a savepoint.
func (p *Pipeline) ingest(batch *store.Batch, msg *mbox.Message, summary *Summary) (res Result) {
	res.Ordinal = msg.Ordinal

	parsed, err := p.parse(msg.Raw)
	if err != nil {
		res.Err = err
		return res
	}
	res.EmailID = parsed.ID

	var lres labels.Result
	err = batch.Apply(func(w *store.Writer) error {
		if err := w.UpsertEmail(toEmail(parsed)); err != nil {
			return err
		}
		var err error
		lres, err = p.builder.Build(w, parsed.ID, parsed.LabelValues)
		return err
	})
	if err != nil {
		res.Err = err
		return res
	}

	summary.LabelsWritten += lres.Written
	summary.LabelsExisting += lres.Existing
	summary.LabelsRejected += lres.Rejected
	p.opts.Metrics.labels(lres.Written, lres.Existing, lres.Rejected)
	return res
}

// parse runs the MIME parser, turning a parser panic on hostile input
// into a per-message error.
func (p *Pipeline) parse(raw []byte) (msg *mime.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, fmt.Errorf("parse message: panic: %v", r)
		}
	}()
	return p.parser.Parse(raw)
}

func toEmail(m *mime.Message) *store.Email {
	e := &store.Email{
		EmailSummary: store.EmailSummary{
			ID:          m.ID,
			Subject:     m.Subject,
			Sender:      m.From,
			Recipient:   m.To,
			Date:        m.Date,
			ContentType: m.ContentType,
		},
		Content: m.Content,
	}
	if !m.SentAt.IsZero() {
		sentAt := m.SentAt
		e.SentAt = &sentAt
	}
	return e
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const savepointName = "email_write"

// Batch is a long-running write transaction used by ingestion. Each
// message is applied inside its own savepoint so one bad message can be
// discarded without losing the rest of the batch; Checkpoint makes the
// work so far durable and starts a new transaction.
type Batch struct {
	db      *sql.DB
	tx      *sql.Tx
	pending int
}

// BeginBatch opens a write batch.
func (s *Store) BeginBatch() (*Batch, error) {
	return beginBatch(s.db)
}

func beginBatch(db *sql.DB) (*Batch, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{db: db, tx: tx}, nil
}

// Pending returns the number of messages applied since the last checkpoint.
func (b *Batch) Pending() int {
	return b.pending
}

// Apply runs fn inside a savepoint. When fn fails its writes are rolled
// back and the batch stays usable; the error from fn is returned.
func (b *Batch) Apply(fn func(w *Writer) error) error {
	if b.tx == nil {
		return errors.New("batch is closed")
	}
	if _, err := b.tx.Exec("SAVEPOINT " + savepointName); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(&Writer{tx: b.tx}); err != nil {
		if _, rbErr := b.tx.Exec("ROLLBACK TO " + savepointName); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		if _, relErr := b.tx.Exec("RELEASE " + savepointName); relErr != nil {
			return errors.Join(err, fmt.Errorf("release savepoint: %w", relErr))
		}
		return err
	}
	if _, err := b.tx.Exec("RELEASE " + savepointName); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	b.pending++
	return nil
}

// Checkpoint commits the current transaction and opens a new one.
func (b *Batch) Checkpoint() error {
	if err := b.Commit(); err != nil {
		return err
	}
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	b.tx = tx
	return nil
}

// Commit commits the current transaction and closes the batch.
func (b *Batch) Commit() error {
	if b.tx == nil {
		return errors.New("batch is closed")
	}
	tx := b.tx
	b.tx = nil
	b.pending = 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards uncommitted work. It is a no-op on a closed batch.
func (b *Batch) Rollback() error {
	if b.tx == nil {
		return nil
	}
	tx := b.tx
	b.tx = nil
	b.pending = 0
	return tx.Rollback()
}

// Writer performs the writes for one message inside a Batch savepoint.
type Writer struct {
	tx *sql.Tx
}

// UpsertEmail inserts e or replaces the columns of the existing row with
// the same id. Label rows of an existing email are left alone.
func (w *Writer) UpsertEmail(e *Email) error {
	_, err := w.tx.Exec(`
		INSERT INTO emails (id, subject, sender, recipient, date, content, content_type, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			sender = excluded.sender,
			recipient = excluded.recipient,
			date = excluded.date,
			content = excluded.content,
			content_type = excluded.content_type,
			sent_at = excluded.sent_at
	`, e.ID, e.Subject, e.Sender, e.Recipient, e.Date, e.Content, e.ContentType, timeToUnix(e.SentAt))
	if err != nil {
		return fmt.Errorf("upsert email: %w", err)
	}
	return nil
}

// InsertLabel adds a label membership row unless (emailID, label) already
// exists. An empty parent is stored as NULL.
func (w *Writer) InsertLabel(emailID, label, parent string) (bool, error) {
	var parentArg any
	if parent != "" {
		parentArg = parent
	}
	res, err := w.tx.Exec(
		`INSERT OR IGNORE INTO labels (email_id, label, parent_label) VALUES (?, ?, ?)`,
		emailID, label, parentArg,
	)
	if err != nil {
		return false, fmt.Errorf("insert label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert label: %w", err)
	}
	return n > 0, nil
}

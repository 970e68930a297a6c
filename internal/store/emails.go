package store

import (
	"database/sql"
	"time"
)

// EmailSummary is an email row without its body, as used in listings.
type EmailSummary struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	Date        string     `json:"date"`
	ContentType string     `json:"content_type"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Email is a full email row.
type Email struct {
	EmailSummary
	Content string `json:"content"`
}

const summaryColumns = "e.id, e.subject, e.sender, e.recipient, e.date, e.content_type, e.sent_at"

// recencyOrder lists dated emails newest first, then undated ones by their
// header text.
const recencyOrder = "e.sent_at IS NULL, e.sent_at DESC, e.date DESC, e.id"

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, extra ...any) (EmailSummary, error) {
	var e EmailSummary
	var sentAt sql.NullInt64
	dest := append([]any{&e.ID, &e.Subject, &e.Sender, &e.Recipient, &e.Date, &e.ContentType, &sentAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	e.SentAt = unixToTime(sentAt)
	return e, nil
}

func unixToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func timeToUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

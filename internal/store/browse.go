package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LabelSummary is a label path with the number of emails carrying it.
type LabelSummary struct {
	Label      string `json:"label"`
	EmailCount int64  `json:"email_count"`
}

// LabelPair is a distinct (label, parent) pair. Parent is "" at the top level.
type LabelPair struct {
	Label  string
	Parent string
}

func (s *Store) labelSummaries(where string, args ...any) ([]LabelSummary, error) {
	rows, err := s.db.Query(`
		SELECT label, COUNT(*) FROM labels
		WHERE `+where+`
		GROUP BY label
		ORDER BY label
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelSummary
	for rows.Next() {
		var l LabelSummary
		if err := rows.Scan(&l.Label, &l.EmailCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TopLevelLabels returns labels without a parent.
func (s *Store) TopLevelLabels() ([]LabelSummary, error) {
	out, err := s.labelSummaries("parent_label IS NULL")
	if err != nil {
		return nil, fmt.Errorf("list top-level labels: %w", err)
	}
	return out, nil
}

// AllLabels returns every label with its email count.
func (s *Store) AllLabels() ([]LabelSummary, error) {
	out, err := s.labelSummaries("1 = 1")
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return out, nil
}

// ChildLabels returns the direct children of label.
func (s *Store) ChildLabels(label string) ([]LabelSummary, error) {
	out, err := s.labelSummaries("parent_label = ?", label)
	if err != nil {
		return nil, fmt.Errorf("list child labels: %w", err)
	}
	return out, nil
}

// DescendantLabels returns every label below label at any depth, sorted.
func (s *Store) DescendantLabels(label string) ([]string, error) {
	rows, err := s.db.Query(`
		WITH RECURSIVE descendants(label) AS (
			SELECT label FROM labels WHERE parent_label = ?
			UNION
			SELECT l.label FROM labels l
			JOIN descendants d ON l.parent_label = d.label
		)
		SELECT label FROM descendants ORDER BY label
	`, label)
	if err != nil {
		return nil, fmt.Errorf("list descendant labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan descendant label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ParentLabel returns the parent of label. found is false when no email
// carries the label; parent is "" for a top-level label.
func (s *Store) ParentLabel(label string) (parent string, found bool, err error) {
	var p sql.NullString
	err = s.db.QueryRow(`SELECT parent_label FROM labels WHERE label = ? LIMIT 1`, label).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get parent label: %w", err)
	}
	return p.String, true, nil
}

// LabelPairs returns every distinct (label, parent) pair.
func (s *Store) LabelPairs() ([]LabelPair, error) {
	rows, err := s.db.Query(`SELECT DISTINCT label, parent_label FROM labels ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list label pairs: %w", err)
	}
	defer rows.Close()

	var out []LabelPair
	for rows.Next() {
		var p LabelPair
		var parent sql.NullString
		if err := rows.Scan(&p.Label, &parent); err != nil {
			return nil, fmt.Errorf("scan label pair: %w", err)
		}
		p.Parent = parent.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) listSummaries(query string, args ...any) ([]EmailSummary, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmailSummary
	for rows.Next() {
		e, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EmailsByLabel returns emails carrying exactly label, newest first, along
// with the total number of matches.
func (s *Store) EmailsByLabel(label string, limit, offset int) ([]EmailSummary, int64, error) {
	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM labels WHERE label = ?`, label).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count emails by label: %w", err)
	}
	out, err := s.listSummaries(`
		SELECT `+summaryColumns+`
		FROM emails e
		JOIN labels l ON l.email_id = e.id
		WHERE l.label = ?
		ORDER BY `+recencyOrder+`
		LIMIT ? OFFSET ?
	`, label, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list emails by label: %w", err)
	}
	return out, total, nil
}

// escapeLike escapes LIKE wildcards so the user's text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchEmails returns emails whose subject, sender or content contains
// query, newest first. An empty query lists every email.
func (s *Store) SearchEmails(query string, limit, offset int) ([]EmailSummary, int64, error) {
	where := "1 = 1"
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		where = `(e.subject LIKE ? ESCAPE '\' OR e.sender LIKE ? ESCAPE '\' OR e.content LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern)
	}

	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM emails e WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}
	out, err := s.listSummaries(`
		SELECT `+summaryColumns+`
		FROM emails e
		WHERE `+where+`
		ORDER BY `+recencyOrder+`
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search emails: %w", err)
	}
	return out, total, nil
}

// GetEmail returns the email with the given id, or nil when there is none.
func (s *Store) GetEmail(id string) (*Email, error) {
	var content string
	summary, err := scanSummary(s.db.QueryRow(`
		SELECT `+summaryColumns+`, e.content
		FROM emails e
		WHERE e.id = ?
	`, id), &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return &Email{EmailSummary: summary, Content: content}, nil
}

// EmailLabels returns the label paths of an email, sorted.
func (s *Store) EmailLabels(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT label FROM labels WHERE email_id = ? ORDER BY label`, id)
	if err != nil {
		return nil, fmt.Errorf("list email labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan email label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteEmail removes an email and its label rows. Deleting an unknown id
// is not an error; deleted reports whether a row existed.
func (s *Store) DeleteEmail(id string) (deleted bool, err error) {
	err = s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM labels WHERE email_id = ?`, id); err != nil {
			return fmt.Errorf("delete labels: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM emails WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete email: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete email: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

package labels

import (
	"fmt"
	"strings"
)

// Separator delimits the segments of a nested label path.
const Separator = "/"

// Level is one materialized prefix of a label path. Parent is "" for a
// top-level label.
type Level struct {
	Path   string
	Parent string
}

// Expand returns every prefix of path, shortest first, each paired with
// its immediate parent. Segments are trimmed and empty segments dropped,
// so "Work//Alpha " expands like "Work/Alpha".
func Expand(path string) []Level {
	var segs []string
	for _, seg := range strings.Split(path, Separator) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segs = append(segs, seg)
		}
	}
	levels := make([]Level, 0, len(segs))
	parent := ""
	for i := range segs {
		cur := strings.Join(segs[:i+1], Separator)
		levels = append(levels, Level{Path: cur, Parent: parent})
		parent = cur
	}
	return levels
}

// Inserter writes one label membership row if it does not exist yet. An
// empty parent is stored as NULL. inserted is false when the row was
// already present.
type Inserter interface {
	InsertLabel(emailID, label, parent string) (inserted bool, err error)
}

// Result counts the label outcomes for one message.
type Result struct {
	Written  int // rows inserted
	Existing int // rows already present
	Rejected int // tokens dropped by the sanitizer
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Written += o.Written
	r.Existing += o.Existing
	r.Rejected += o.Rejected
}

// Builder turns raw label annotation values into membership rows.
type Builder struct {
	Sanitizer *Sanitizer
}

// NewBuilder returns a Builder using s, or a default Sanitizer when s is nil.
func NewBuilder(s *Sanitizer) *Builder {
	if s == nil {
		s = NewSanitizer(nil)
	}
	return &Builder{Sanitizer: s}
}

// Build splits every annotation value on commas, sanitizes each token and
// inserts one row per level of each accepted label path. Levels shared by
// several labels of the same message are inserted once. Existing rows are
// never updated.
func (b *Builder) Build(ins Inserter, emailID string, values []string) (Result, error) {
	var res Result
	seen := make(map[string]bool)
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.TrimSpace(token) == "" {
				continue
			}
			label, ok := b.Sanitizer.Clean(token)
			if !ok {
				res.Rejected++
				continue
			}
			for _, lvl := range Expand(label) {
				if seen[lvl.Path] {
					continue
				}
				seen[lvl.Path] = true
				inserted, err := ins.InsertLabel(emailID, lvl.Path, lvl.Parent)
				if err != nil {
					return res, fmt.Errorf("insert label %q: %w", lvl.Path, err)
				}
				if inserted {
					res.Written++
				} else {
					res.Existing++
				}
			}
		}
	}
	return res, nil
}

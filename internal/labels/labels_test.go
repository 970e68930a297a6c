package labels

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizer_Clean(t *testing.T) {
	s := NewSanitizer(nil)
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Work", "Work", true},
		{"  Work \t  Projects  ", "Work Projects", true},
		{"Travel_Plans", "Travel Plans", true},
		{"Work/Projects/Alpha", "Work/Projects/Alpha", true},
		{"=?UTF-8?Q?Receipts?=", "Receipts", true},
		{"=?UTF-8?B?UGVyc29uYWw=?=", "Personal", true},
		{"Work=?UTF-8?Q?", "Work", true},
		{"Family?=", "Family", true},
		{"Inbox", "", false},
		{"INBOX", "", false},
		{"inbox/old", "", false},
		{"Category_Updates", "", false},
		{"Category Promotions", "", false},
		{"Sent", "", false},
		{"Unread", "", false},
		{"Starred", "", false},
		{"Important", "", false},
		{"Chat", "", false},
		{"Archived", "", false},
		{"Opened", "", false},
		{"Spam", "", false},
		{`\Seen`, "", false},
		{`\Flagged`, "", false},
		{"$Forwarded", "", false},
		{"Café", "", false},
		{"=?UTF-8?Q?Caf=C3=A9?=", "", false},
		{"日本", "", false},
		{"", "", false},
		{"   ", "", false},
		{"___", "", false},
	}
	for _, tt := range tests {
		got, ok := s.Clean(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Clean(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSanitizer_ExtraExclusions(t *testing.T) {
	s := NewSanitizer([]string{"Receipts", "  ", "notifications"})
	if _, ok := s.Clean("receipts/2024"); ok {
		t.Error("extra exclusion should reject receipts/2024")
	}
	if _, ok := s.Clean("Notifications"); ok {
		t.Error("extra exclusion should match case-insensitively")
	}
	if got, ok := s.Clean("Work"); !ok || got != "Work" {
		t.Errorf("Clean(Work) = (%q, %v)", got, ok)
	}
	if _, ok := s.Clean("Inbox"); ok {
		t.Error("default exclusions must still apply")
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		in   string
		want []Level
	}{
		{"A", []Level{{"A", ""}}},
		{"A/B/C", []Level{{"A", ""}, {"A/B", "A"}, {"A/B/C", "A/B"}}},
		{" Work / Projects ", []Level{{"Work", ""}, {"Work/Projects", "Work"}}},
		{"Work//Alpha/", []Level{{"Work", ""}, {"Work/Alpha", "Work"}}},
		{"/", []Level{}},
		{"", []Level{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Expand(tt.in)); diff != "" {
			t.Errorf("Expand(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

type row struct {
	EmailID, Label, Parent string
}

// fakeInserter records rows with INSERT OR IGNORE semantics.
type fakeInserter struct {
	rows  []row
	keys  map[string]bool
	fail  string
	calls int
}

func newFakeInserter() *fakeInserter {
	return &fakeInserter{keys: make(map[string]bool)}
}

func (f *fakeInserter) InsertLabel(emailID, label, parent string) (bool, error) {
	f.calls++
	if label == f.fail {
		return false, errors.New("disk full")
	}
	key := emailID + "\x00" + label
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	f.rows = append(f.rows, row{emailID, label, parent})
	return true, nil
}

func TestBuilder_NestedPath(t *testing.T) {
	ins := newFakeInserter()
	res, err := NewBuilder(nil).Build(ins, "e1", []string{"A/B/C"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []row{{"e1", "A", ""}, {"e1", "A/B", "A"}, {"e1", "A/B/C", "A/B"}}
	if diff := cmp.Diff(want, ins.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Result{Written: 3}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_MultipleValuesAndRejections(t *testing.T) {
	ins := newFakeInserter()
	values := []string{
		"Inbox,Category_Social,Work/Projects",
		"Work/Reports, Café ,,Personal",
	}
	res, err := NewBuilder(nil).Build(ins, "e1", values)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []row{
		{"e1", "Work", ""},
		{"e1", "Work/Projects", "Work"},
		{"e1", "Work/Reports", "Work"},
		{"e1", "Personal", ""},
	}
	if diff := cmp.Diff(want, ins.rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	// Work is shared by two labels and only offered once.
	if ins.calls != 4 {
		t.Errorf("InsertLabel calls = %d, want 4", ins.calls)
	}
	if diff := cmp.Diff(Result{Written: 4, Rejected: 3}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_RebuildIsNoOp(t *testing.T) {
	ins := newFakeInserter()
	b := NewBuilder(nil)
	if _, err := b.Build(ins, "e1", []string{"A/B"}); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	res, err := b.Build(ins, "e1", []string{"A/B"})
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if len(ins.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(ins.rows))
	}
	if diff := cmp.Diff(Result{Existing: 2}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_InsertError(t *testing.T) {
	ins := newFakeInserter()
	ins.fail = "A/B"
	res, err := NewBuilder(nil).Build(ins, "e1", []string{"A/B/C"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Written != 1 {
		t.Errorf("Written = %d, want 1", res.Written)
	}
}

func TestBuilder_NoValues(t *testing.T) {
	ins := newFakeInserter()
	res, err := NewBuilder(nil).Build(ins, "e1", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ins.calls != 0 || res != (Result{}) {
		t.Errorf("calls = %d, result = %+v", ins.calls, res)
	}
}

func TestBuildTree(t *testing.T) {
	levels := []Level{
		{"Work/Projects/Alpha", "Work/Projects"},
		{"Personal", ""},
		{"Work", ""},
		{"Work/Projects", "Work"},
		{"Work/Archive", "Work"},
		{"Work", ""},
		{"Orphan/Child", "Orphan"},
	}
	roots := BuildTree(levels)

	type line struct {
		Name  string
		Depth int
	}
	var got []line
	Walk(roots, func(n *Node, depth int) {
		got = append(got, line{n.Name(), depth})
	})
	want := []line{
		{"Child", 0},
		{"Personal", 0},
		{"Work", 0},
		{"Archive", 1},
		{"Projects", 1},
		{"Alpha", 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

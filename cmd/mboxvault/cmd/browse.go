package cmd

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/labels"
	"github.com/wesm/mboxvault/internal/store"
	"github.com/wesm/mboxvault/internal/textutil"
)

var (
	searchLimit  int
	searchOffset int
	showJSON     bool
	showHTML     bool
)

var labelsCmd = &cobra.Command{
	Use:   "labels [label]",
	Short: "Show the label tree",
	Long: `Show the label hierarchy with the number of emails carrying each label.

With a label argument, only that label and its descendants are shown,
followed by the emails filed directly under it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		pairs, err := s.LabelPairs()
		if err != nil {
			return err
		}
		all, err := s.AllLabels()
		if err != nil {
			return err
		}
		counts := make(map[string]int64, len(all))
		for _, l := range all {
			counts[l.Label] = l.EmailCount
		}

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			if len(pairs) == 0 {
				fmt.Fprintln(out, "No labels.")
				return nil
			}
			printLabelTree(out, labels.BuildTree(levels(pairs, nil)), counts)
			return nil
		}

		label := args[0]
		if _, ok := counts[label]; !ok {
			return fmt.Errorf("label %q not found", label)
		}
		desc, err := s.DescendantLabels(label)
		if err != nil {
			return err
		}
		keep := map[string]bool{label: true}
		for _, d := range desc {
			keep[d] = true
		}
		printLabelTree(out, labels.BuildTree(levels(pairs, keep)), counts)

		emails, total, err := s.EmailsByLabel(label, searchLimit, searchOffset)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d emails labelled %s\n", total, label)
		printEmailTable(out, emails)
		return nil
	},
}

// levels converts stored pairs into tree levels, keeping only the labels in
// keep when it is non-nil.
func levels(pairs []store.LabelPair, keep map[string]bool) []labels.Level {
	out := make([]labels.Level, 0, len(pairs))
	for _, p := range pairs {
		if keep != nil && !keep[p.Label] {
			continue
		}
		out = append(out, labels.Level{Path: p.Label, Parent: p.Parent})
	}
	return out
}

func printLabelTree(out io.Writer, roots []*labels.Node, counts map[string]int64) {
	const nameWidth = 60
	labels.Walk(roots, func(n *labels.Node, depth int) {
		name := n.Name()
		if depth == 0 {
			name = n.Path
		}
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(out, "%s%s (%d)\n", indent, textutil.Truncate(name, nameWidth-len(indent)), counts[n.Path])
	})
}

func printEmailTable(out io.Writer, emails []store.EmailSummary) {
	for _, e := range emails {
		date := e.Date
		if e.SentAt != nil {
			date = e.SentAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%-12s  %-16s  %-28s  %s\n",
			shortID(e.ID),
			textutil.Truncate(date, 16),
			textutil.Truncate(e.Sender, 28),
			textutil.Truncate(e.Subject, 60))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// resolveID expands a unique id prefix, as printed by search and labels,
// to the full email id.
func resolveID(s *store.Store, prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	var ids []string
	rows, err := s.DB().Query(`SELECT id FROM emails WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeIDPrefix(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("resolve id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
	}
}

func escapeIDPrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one email",
	Long: `Show one email with its labels. The id may be abbreviated to any
unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := resolveID(s, args[0])
		if err != nil {
			return err
		}
		e, err := s.GetEmail(id)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("email %s not found", args[0])
		}
		lbls, err := s.EmailLabels(id)
		if err != nil {
			return err
		}

		if showHTML && e.ContentType == "text/plain" {
			e.Content = html.EscapeString(e.Content)
		}

		out := cmd.OutOrStdout()
		if showJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*store.Email
				Labels []string `json:"labels"`
			}{e, lbls})
		}

		fmt.Fprintf(out, "ID:       %s\n", e.ID)
		fmt.Fprintf(out, "From:     %s\n", e.Sender)
		fmt.Fprintf(out, "To:       %s\n", e.Recipient)
		fmt.Fprintf(out, "Date:     %s\n", e.Date)
		fmt.Fprintf(out, "Subject:  %s\n", e.Subject)
		fmt.Fprintf(out, "Type:     %s\n", e.ContentType)
		fmt.Fprintf(out, "Labels:   %s\n", strings.Join(lbls, ", "))
		fmt.Fprintln(out)
		fmt.Fprintln(out, e.Content)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search subject, sender and content",
	Long: `Search emails whose subject, sender or content contains the query,
newest first. Without a query every email is listed.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		query := strings.Join(args, " ")
		emails, total, err := s.SearchEmails(query, searchLimit, searchOffset)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(emails) == 0 {
			fmt.Fprintln(out, "No matching emails.")
			return nil
		}
		printEmailTable(out, emails)
		fmt.Fprintf(out, "\nShowing %d of %d\n", len(emails), total)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one email and its labels",
	Long: `Delete one email and its label rows. The id may be abbreviated to any
unique prefix. Deleting an email that does not exist is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := resolveID(s, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if id == "" {
			fmt.Fprintf(out, "No email %s.\n", args[0])
			return nil
		}
		if _, err := s.DeleteEmail(id); err != nil {
			return err
		}
		logger.Info("email deleted", "id", id)
		fmt.Fprintf(out, "Deleted %s.\n", id)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{labelsCmd, searchCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum emails to list")
		c.Flags().IntVar(&searchOffset, "offset", 0, "emails to skip")
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")
	showCmd.Flags().BoolVar(&showHTML, "html", false, "HTML-escape plain text content")
	rootCmd.AddCommand(labelsCmd, showCmd, searchCmd, deleteCmd)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/revision"
	"github.com/thiagokokada/gitsvn/internal/svn"
)

type inspectOptions struct {
	branch string
	rev    int
	diff   bool
}

func newInspectCmd() *cobra.Command {
	var (
		opts     inspectOptions
		noRename bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [repository]",
		Short: "Print the revision numbers and change sets a repository is served with",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}
			store, err := git.Open(repoPath, git.WithRenameDetection(!noRename))
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), cmd.OutOrStdout(), store, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.branch, "branch", "b", "", "tracked branch (default HEAD)")
	cmd.Flags().IntVarP(&opts.rev, "revision", "r", 0, "only show this revision")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, "print unified diffs of changed files")
	cmd.Flags().BoolVar(&noRename, "no-renames", false, "disable rename detection")
	return cmd
}

func inspect(ctx context.Context, w io.Writer, store *git.Repository, opts inspectOptions) error {
	tr := revision.NewTranslator(store, revision.NewMemoryStore(), opts.branch)
	latest, err := tr.Refresh(ctx)
	if err != nil {
		return err
	}
	first, last := 1, latest
	if opts.rev != 0 {
		if opts.rev < 1 || opts.rev > latest {
			return fmt.Errorf("revision %d out of range 1..%d", opts.rev, latest)
		}
		first, last = opts.rev, opts.rev
	}
	for rev := last; rev >= first; rev-- {
		if err := inspectRevision(ctx, w, store, tr, rev, opts.diff); err != nil {
			return err
		}
	}
	return nil
}

func inspectRevision(ctx context.Context, w io.Writer, store *git.Repository, tr *revision.Translator, rev int, withDiff bool) error {
	c, err := tr.Revision(rev)
	if err != nil {
		return err
	}
	entry, err := tr.CacheEntry(ctx, rev)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "r%d %s %s %s\n", rev, c.ID, c.Author.Name, svn.FormatDate(c.Committer.When))
	for line := range strings.Lines(strings.TrimRight(c.Message, "\n")) {
		fmt.Fprintf(w, "    %s", line)
	}
	fmt.Fprintln(w)
	for _, p := range entry.ChangedPaths() {
		rec, _ := entry.Change(p)
		switch {
		case rec.Added():
			if from, ok := entry.CopiedFrom(p); ok {
				fmt.Fprintf(w, "  A /%s (from /%s:%d)\n", p, from, rev-1)
			} else {
				fmt.Fprintf(w, "  A /%s\n", p)
			}
		case rec.Deleted():
			fmt.Fprintf(w, "  D /%s\n", p)
		default:
			fmt.Fprintf(w, "  M /%s\n", p)
		}
	}
	if !withDiff {
		return nil
	}
	for _, p := range entry.ChangedPaths() {
		if _, renamed := entry.RenamedTo(p); renamed {
			continue
		}
		rec, _ := entry.Change(p)
		oldID, newID := rec.Old(), rec.New()
		// Rename destinations are diffed against their source.
		if from, ok := entry.CopiedFrom(p); ok {
			src, _ := entry.Change(from)
			oldID = src.Old()
		}
		if err := writeDiff(ctx, w, store, p, rev, oldID, newID); err != nil {
			return err
		}
	}
	return nil
}

func writeDiff(ctx context.Context, w io.Writer, store *git.Repository, p string, rev int, oldID, newID git.ObjectID) error {
	read := func(id git.ObjectID) (string, error) {
		if id.IsZero() {
			return "", nil
		}
		data, err := store.ReadObject(ctx, id)
		return string(data), err
	}
	before, err := read(oldID)
	if err != nil {
		return err
	}
	after, err := read(newID)
	if err != nil {
		return err
	}
	if before == after {
		return nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fmt.Sprintf("/%s@%d", p, rev-1),
		ToFile:   fmt.Sprintf("/%s@%d", p, rev),
		Context:  3,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

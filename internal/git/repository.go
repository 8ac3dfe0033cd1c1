package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// Repository is the object store capability the revision layer reads from.
// It is safe for concurrent use; go-git storers serialize their own access.
type Repository struct {
	*gitlib.Repository
	path          string
	detectRenames bool
}

type Option func(*Repository)

// WithRenameDetection toggles similarity-based rename detection in DiffTree.
func WithRenameDetection(enabled bool) Option {
	return func(r *Repository) { r.detectRenames = enabled }
}

func Open(repoPath string, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return New(repo, abs, opts...), nil
}

// New wraps an already opened go-git repository, e.g. one backed by memory
// storage.
func New(repo *gitlib.Repository, path string, opts ...Option) *Repository {
	r := &Repository{Repository: repo, path: path, detectRenames: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Path() string {
	return r.path
}

// BranchTip resolves a local branch; an empty name resolves HEAD.
func (r *Repository) BranchTip(ctx context.Context, branch string) (ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return ObjectID{}, err
	}
	var (
		ref *plumbing.Reference
		err error
	)
	if branch == "" {
		ref, err = r.Head()
	} else {
		ref, err = r.Reference(plumbing.NewBranchReferenceName(branch), true)
	}
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return ObjectID{}, svnerr.NotFound(svnerr.CodeFSNotFound, "branch %q not found", branch)
		}
		return ObjectID{}, svnerr.Storage(err, "resolve branch %q", branch)
	}
	return fromHash(ref.Hash()), nil
}

func (r *Repository) Commit(ctx context.Context, id ObjectID) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}
	c, err := r.commitObject(id)
	if err != nil {
		return Commit{}, err
	}
	return newCommit(c), nil
}

// ReadObject returns the full content of a blob.
func (r *Repository) ReadObject(ctx context.Context, id ObjectID) ([]byte, error) {
	rc, _, err := r.OpenObject(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, svnerr.Storage(err, "read object %s", id)
	}
	return buf.Bytes(), nil
}

// OpenObject streams a blob and reports its size.
func (r *Repository) OpenObject(ctx context.Context, id ObjectID) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	blob, err := r.BlobObject(id.hash())
	if err != nil {
		return nil, 0, classify(err, "blob %s", id)
	}
	rc, err := blob.Reader()
	if err != nil {
		return nil, 0, svnerr.Storage(err, "open blob %s", id)
	}
	return rc, blob.Size, nil
}

// DiffTree compares the tree of commit against the tree of parent. A zero
// parent diffs against the empty tree.
func (r *Repository) DiffTree(ctx context.Context, parent, commit ObjectID) ([]DiffEntry, error) {
	to, err := r.treeOf(commit)
	if err != nil {
		return nil, err
	}
	from := &object.Tree{}
	if !parent.IsZero() {
		from, err = r.treeOf(parent)
		if err != nil {
			return nil, err
		}
	}
	opts := *object.DefaultDiffTreeOptions
	opts.DetectRenames = r.detectRenames
	changes, err := object.DiffTreeWithOptions(ctx, from, to, &opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err, "diff %s..%s", parent, commit)
	}
	entries := make([]DiffEntry, 0, len(changes))
	for _, ch := range changes {
		entries = append(entries, newDiffEntry(ch))
	}
	slog.Debug("DiffTree done",
		slog.String("parent", parent.String()),
		slog.String("commit", commit.String()),
		slog.Int("changes", len(entries)),
	)
	return entries, nil
}

// WalkHistory follows first parents from tip until stop reports true or the
// root commit is reached. Commits are returned oldest first and never include
// the commit stop accepted.
func (r *Repository) WalkHistory(ctx context.Context, tip ObjectID, stop func(ObjectID) bool) ([]Commit, error) {
	var out []Commit
	for cur := tip; !cur.IsZero() && !stop(cur); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := r.commitObject(cur)
		if err != nil {
			return nil, err
		}
		commit := newCommit(c)
		out = append(out, commit)
		cur = commit.FirstParent()
	}
	slices.Reverse(out)
	return out, nil
}

func (r *Repository) commitObject(id ObjectID) (*object.Commit, error) {
	c, err := r.CommitObject(id.hash())
	if err != nil {
		return nil, classify(err, "commit %s", id)
	}
	return c, nil
}

func (r *Repository) treeOf(commit ObjectID) (*object.Tree, error) {
	c, err := r.commitObject(commit)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, classify(err, "tree of %s", commit)
	}
	return tree, nil
}

func classify(err error, format string, args ...any) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return svnerr.NotFound(svnerr.CodeFSNotFound, "%s not found", fmt.Sprintf(format, args...))
	}
	return svnerr.Storage(err, format, args...)
}

func newCommit(c *object.Commit) Commit {
	parents := make([]ObjectID, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, fromHash(p))
	}
	return Commit{
		ID:        fromHash(c.Hash),
		Parents:   parents,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
	}
}

func newDiffEntry(ch *object.Change) DiffEntry {
	from, to := ch.From, ch.To
	switch {
	case from.Name == "":
		return DiffEntry{Path: to.Name, NewID: fromHash(to.TreeEntry.Hash)}
	case to.Name == "":
		return DiffEntry{Path: from.Name, OldID: fromHash(from.TreeEntry.Hash)}
	}
	e := DiffEntry{
		Path:  to.Name,
		OldID: fromHash(from.TreeEntry.Hash),
		NewID: fromHash(to.TreeEntry.Hash),
	}
	if from.Name != to.Name {
		e.RenamedFrom = from.Name
	}
	return e
}

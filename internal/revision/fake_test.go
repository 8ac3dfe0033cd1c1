package revision

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

func oid(b byte) git.ObjectID {
	return git.NewObjectID(bytes.Repeat([]byte{b}, 20))
}

// fakeStore is a linear history kept in memory. diffFunc, when set, runs
// before every DiffTree answer.
type fakeStore struct {
	mu      sync.Mutex
	tip     git.ObjectID
	commits map[git.ObjectID]git.Commit
	diffs   map[git.ObjectID][]git.DiffEntry

	diffCalls atomic.Int32
	diffFunc  func(ctx context.Context, commit git.ObjectID) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		commits: make(map[git.ObjectID]git.Commit),
		diffs:   make(map[git.ObjectID][]git.DiffEntry),
	}
}

// add appends a commit on top of the current tip.
func (f *fakeStore) add(id git.ObjectID, diffs ...git.DiffEntry) git.Commit {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := git.Commit{
		ID:        id,
		Message:   "commit " + id.String()[:4],
		Committer: git.Signature{When: time.Date(2024, 1, 1, 0, len(f.commits), 0, 0, time.UTC)},
	}
	if !f.tip.IsZero() {
		c.Parents = []git.ObjectID{f.tip}
	}
	f.commits[id] = c
	f.diffs[id] = diffs
	f.tip = id
	return c
}

func (f *fakeStore) BranchTip(ctx context.Context, branch string) (git.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tip.IsZero() {
		return git.ObjectID{}, svnerr.NotFound(svnerr.CodeFSNotFound, "branch %q not found", branch)
	}
	return f.tip, nil
}

func (f *fakeStore) DiffTree(ctx context.Context, parent, commit git.ObjectID) ([]git.DiffEntry, error) {
	f.diffCalls.Add(1)
	if f.diffFunc != nil {
		if err := f.diffFunc(ctx, commit); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	diffs, ok := f.diffs[commit]
	if !ok {
		return nil, svnerr.NotFound(svnerr.CodeFSNotFound, "commit %s not found", commit)
	}
	return diffs, nil
}

func (f *fakeStore) WalkHistory(ctx context.Context, tip git.ObjectID, stop func(git.ObjectID) bool) ([]git.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []git.Commit
	for cur := tip; !cur.IsZero() && !stop(cur); {
		c, ok := f.commits[cur]
		if !ok {
			return nil, errors.New("dangling parent")
		}
		out = append(out, c)
		cur = c.FirstParent()
	}
	slices.Reverse(out)
	return out, nil
}

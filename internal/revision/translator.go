package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	cmap "github.com/orcaman/concurrent-map"

	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const DefaultFrontSize = 4096

// ObjectStore is the part of the Git object database the translator reads.
type ObjectStore interface {
	BranchTip(ctx context.Context, branch string) (git.ObjectID, error)
	DiffTree(ctx context.Context, parent, commit git.ObjectID) ([]git.DiffEntry, error)
	WalkHistory(ctx context.Context, tip git.ObjectID, stop func(git.ObjectID) bool) ([]git.Commit, error)
}

// Translator maintains the revision arena of one branch. Revision n is
// stored at revs[n-1]; bindings are only ever appended.
type Translator struct {
	store  ObjectStore
	cache  CacheStore
	branch string
	front  *lru.Cache[string, *CacheEntry]
	// slots holds one pending computation per commit key.
	slots cmap.ConcurrentMap

	mu   sync.RWMutex
	revs []git.Commit
	byID map[git.ObjectID]int

	// refreshMu serializes history walks; lookups do not take it.
	refreshMu sync.Mutex
}

type Option func(*Translator)

// WithFrontSize bounds the in-memory entry cache placed before the store.
func WithFrontSize(size int) Option {
	return func(t *Translator) {
		if size > 0 {
			if front, err := lru.New[string, *CacheEntry](size); err == nil {
				t.front = front
			}
		}
	}
}

func NewTranslator(store ObjectStore, cache CacheStore, branch string, opts ...Option) *Translator {
	front, _ := lru.New[string, *CacheEntry](DefaultFrontSize)
	t := &Translator{
		store:  store,
		cache:  cache,
		branch: branch,
		front:  front,
		slots:  cmap.New(),
		byID:   make(map[git.ObjectID]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Translator) Branch() string { return t.branch }

// RevisionOf returns the revision bound to c, binding the next number when
// c was never seen.
func (t *Translator) RevisionOf(c git.Commit) int {
	if rev, ok := t.Lookup(c.ID); ok {
		return rev
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rev, ok := t.byID[c.ID]; ok {
		return rev
	}
	t.revs = append(t.revs, c)
	rev := len(t.revs)
	t.byID[c.ID] = rev
	return rev
}

func (t *Translator) Lookup(id git.ObjectID) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rev, ok := t.byID[id]
	return rev, ok
}

// Latest returns the newest bound revision, 0 when nothing is bound.
func (t *Translator) Latest() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.revs)
}

// Revision returns the commit bound to rev.
func (t *Translator) Revision(rev int) (git.Commit, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rev < 1 || rev > len(t.revs) {
		return git.Commit{}, svnerr.NotFound(svnerr.CodeFSNoSuchRevision, "No such revision %d", rev)
	}
	return t.revs[rev-1], nil
}

// DatedRevision returns the newest revision committed at or before when.
func (t *Translator) DatedRevision(when time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	// Committer dates are not guaranteed to be ordered, so take the last
	// revision that satisfies the bound rather than bisecting.
	for i := len(t.revs) - 1; i >= 0; i-- {
		if !t.revs[i].Committer.When.After(when) {
			return i + 1
		}
	}
	return 0
}

// Refresh binds commits that became visible on the branch since the last
// walk. It returns the latest revision.
func (t *Translator) Refresh(ctx context.Context) (int, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	tip, err := t.store.BranchTip(ctx, t.branch)
	if err != nil {
		return t.Latest(), err
	}
	latest := t.Latest()
	var head git.ObjectID
	if latest > 0 {
		c, _ := t.Revision(latest)
		head = c.ID
	}
	if tip == head {
		return latest, nil
	}
	commits, err := t.store.WalkHistory(ctx, tip, func(id git.ObjectID) bool {
		_, known := t.Lookup(id)
		return known
	})
	if err != nil {
		return latest, err
	}
	base := tip
	if len(commits) > 0 {
		base = commits[0].FirstParent()
	}
	if base != head {
		return latest, &svnerr.Error{
			Kind:    svnerr.KindStorage,
			Code:    svnerr.CodeFSGeneral,
			Message: fmt.Sprintf("branch %q no longer extends r%d (history was rewritten)", t.branch, latest),
		}
	}
	for _, c := range commits {
		t.RevisionOf(c)
	}
	if len(commits) > 0 {
		slog.Info("revisions bound",
			slog.String("branch", t.branch),
			slog.Int("from", latest+1),
			slog.Int("to", t.Latest()),
		)
	}
	return t.Latest(), nil
}

type slot struct {
	done  chan struct{}
	entry *CacheEntry
	err   error
}

func claimSlot(exists bool, inMap, fresh any) any {
	if exists {
		return inMap
	}
	return fresh
}

// CacheEntry returns the change set of rev, computing and persisting it on
// first use. Concurrent first requests for the same revision share a single
// computation.
func (t *Translator) CacheEntry(ctx context.Context, rev int) (*CacheEntry, error) {
	if rev == 0 {
		return emptyEntry, nil
	}
	c, err := t.Revision(rev)
	if err != nil {
		return nil, err
	}
	key := c.ID.String()
	if e, ok := t.front.Get(key); ok {
		return e, nil
	}
	for {
		mine := &slot{done: make(chan struct{})}
		owner := t.slots.Upsert(key, mine, claimSlot).(*slot)
		if owner == mine {
			return t.fill(ctx, key, c, mine)
		}
		select {
		case <-owner.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if owner.err == nil {
			return owner.entry, nil
		}
		// The owner gave up because its own request went away; try again
		// with ours.
		if isCanceled(owner.err) && ctx.Err() == nil {
			continue
		}
		return nil, owner.err
	}
}

func (t *Translator) fill(ctx context.Context, key string, c git.Commit, s *slot) (entry *CacheEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute %s: panic: %v", key, r)
		}
		s.entry, s.err = entry, err
		t.slots.Remove(key)
		close(s.done)
	}()

	// Another owner may have finished between our front lookup and claim.
	if e, ok := t.front.Get(key); ok {
		return e, nil
	}
	e, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		return nil, svnerr.Storage(err, "load cache entry %s", key)
	}
	if ok {
		t.front.Add(key, e)
		return e, nil
	}
	diffs, err := t.store.DiffTree(ctx, c.FirstParent(), c.ID)
	if err != nil {
		return nil, err
	}
	e, err = newCacheEntry(c.ID, diffs)
	if err != nil {
		return nil, svnerr.Storage(err, "build cache entry %s", key)
	}
	if err := t.cache.Put(ctx, key, e); err != nil {
		return nil, svnerr.Storage(err, "store cache entry %s", key)
	}
	t.front.Add(key, e)
	slog.Debug("cache entry computed", slog.String("commit", key), slog.Int("changes", e.Len()))
	return e, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// LastChanged returns the newest revision at or before rev whose change set
// touches p or a descendant of p, 0 when none does.
func (t *Translator) LastChanged(ctx context.Context, p string, rev int) (int, error) {
	p = git.CleanPath(p)
	for r := rev; r >= 1; r-- {
		e, err := t.CacheEntry(ctx, r)
		if err != nil {
			return 0, err
		}
		if p == "" || e.Touches(p) {
			return r, nil
		}
	}
	return 0, nil
}

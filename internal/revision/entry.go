// Package revision binds Git commits of a tracked branch to linear Subversion
// revision numbers and caches the per-revision change set of every commit.
package revision

import (
	"encoding/json"
	"errors"
	"maps"
	"sort"
	"strings"

	"github.com/thiagokokada/gitsvn/internal/git"
)

var errEmptyChange = errors.New("change record without old or new identity")

// ChangeRecord is the content transition of a single path. A zero Old means
// the path was created, a zero New means it was deleted.
type ChangeRecord struct {
	old git.ObjectID
	new git.ObjectID
}

func NewChangeRecord(oldID, newID git.ObjectID) (ChangeRecord, error) {
	if oldID.IsZero() && newID.IsZero() {
		return ChangeRecord{}, errEmptyChange
	}
	return ChangeRecord{old: oldID, new: newID}, nil
}

func (c ChangeRecord) Old() git.ObjectID { return c.old }
func (c ChangeRecord) New() git.ObjectID { return c.new }

func (c ChangeRecord) Added() bool    { return c.old.IsZero() }
func (c ChangeRecord) Deleted() bool  { return c.new.IsZero() }
func (c ChangeRecord) Modified() bool { return !c.old.IsZero() && !c.new.IsZero() }

type changeRecordJSON struct {
	Old git.ObjectID `json:"old"`
	New git.ObjectID `json:"new"`
}

func (c ChangeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeRecordJSON{Old: c.old, New: c.new})
}

func (c *ChangeRecord) UnmarshalJSON(data []byte) error {
	var raw changeRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := NewChangeRecord(raw.Old, raw.New)
	if err != nil {
		return err
	}
	*c = rec
	return nil
}

// CacheEntry is the immutable change set of one revision. Entries are shared
// between sessions, so their maps are only reachable through read accessors.
// The commit is zero only for revision 0.
type CacheEntry struct {
	commit  git.ObjectID
	renames map[string]string
	changes map[string]ChangeRecord
}

var emptyEntry = &CacheEntry{
	renames: map[string]string{},
	changes: map[string]ChangeRecord{},
}

func (e *CacheEntry) Commit() git.ObjectID { return e.commit }

// Len returns the number of changed paths.
func (e *CacheEntry) Len() int { return len(e.changes) }

// Change returns the record of p, if p changed in this revision.
func (e *CacheEntry) Change(p string) (ChangeRecord, bool) {
	rec, ok := e.changes[p]
	return rec, ok
}

// Renames returns a copy of the rename map, source to destination.
func (e *CacheEntry) Renames() map[string]string {
	return maps.Clone(e.renames)
}

type cacheEntryJSON struct {
	Commit  git.ObjectID            `json:"commit"`
	Renames map[string]string       `json:"renames,omitempty"`
	Changes map[string]ChangeRecord `json:"changes,omitempty"`
}

func (e *CacheEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(cacheEntryJSON{Commit: e.commit, Renames: e.renames, Changes: e.changes})
}

func (e *CacheEntry) UnmarshalJSON(data []byte) error {
	var raw cacheEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Renames == nil {
		raw.Renames = map[string]string{}
	}
	if raw.Changes == nil {
		raw.Changes = map[string]ChangeRecord{}
	}
	*e = CacheEntry{commit: raw.Commit, renames: raw.Renames, changes: raw.Changes}
	return nil
}

// Touches reports whether p or anything below it changed. The root ("")
// is touched by every non-empty change set.
func (e *CacheEntry) Touches(p string) bool {
	if p == "" {
		return len(e.changes) > 0
	}
	if _, ok := e.changes[p]; ok {
		return true
	}
	prefix := p + "/"
	for changed := range e.changes {
		if strings.HasPrefix(changed, prefix) {
			return true
		}
	}
	return false
}

// ChangedPaths returns the paths of a revision in sorted order.
func (e *CacheEntry) ChangedPaths() []string {
	paths := make([]string, 0, len(e.changes))
	for p := range e.changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RenamedTo returns the destination of a path renamed in this revision.
func (e *CacheEntry) RenamedTo(p string) (string, bool) {
	to, ok := e.renames[p]
	return to, ok
}

// CopiedFrom returns the rename source of a path created in this revision.
func (e *CacheEntry) CopiedFrom(p string) (string, bool) {
	for from, to := range e.renames {
		if to == p {
			return from, true
		}
	}
	return "", false
}

// newCacheEntry folds a parent diff into a change set. A rename contributes
// a deletion at its source and a creation carrying the new content at its
// destination.
func newCacheEntry(commit git.ObjectID, diffs []git.DiffEntry) (*CacheEntry, error) {
	e := &CacheEntry{
		commit:  commit,
		renames: make(map[string]string),
		changes: make(map[string]ChangeRecord, len(diffs)),
	}
	for _, d := range diffs {
		p := git.CleanPath(d.Path)
		if d.RenamedFrom == "" {
			if err := e.record(p, d.OldID, d.NewID); err != nil {
				return nil, err
			}
			continue
		}
		from := git.CleanPath(d.RenamedFrom)
		e.renames[from] = p
		if err := e.record(from, d.OldID, git.ObjectID{}); err != nil {
			return nil, err
		}
		if err := e.record(p, git.ObjectID{}, d.NewID); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// record merges into an existing record for p, which happens when a rename
// source is re-created in the same commit.
func (e *CacheEntry) record(p string, oldID, newID git.ObjectID) error {
	if prev, ok := e.changes[p]; ok {
		if oldID.IsZero() {
			oldID = prev.old
		}
		if newID.IsZero() {
			newID = prev.new
		}
	}
	rec, err := NewChangeRecord(oldID, newID)
	if err != nil {
		return err
	}
	e.changes[p] = rec
	return nil
}

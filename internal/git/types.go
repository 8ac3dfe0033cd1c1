package git

import "time"

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type Commit struct {
	ID        ObjectID
	Parents   []ObjectID
	Author    Signature
	Committer Signature
	Message   string
}

// FirstParent returns the mainline parent, zero for a root commit.
func (c Commit) FirstParent() ObjectID {
	if len(c.Parents) == 0 {
		return ObjectID{}
	}
	return c.Parents[0]
}

// DiffEntry is one path changed between two trees. OldID is zero for added
// paths, NewID is zero for deleted paths. RenamedFrom is set when rename
// detection paired this path with a deleted one.
type DiffEntry struct {
	Path        string
	OldID       ObjectID
	NewID       ObjectID
	RenamedFrom string
}

type EntryKind uint8

const (
	KindNone EntryKind = iota
	KindFile
	KindDir
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "none"
	}
}

type TreeEntry struct {
	Name       string
	ID         ObjectID
	Kind       EntryKind
	Size       int64
	Executable bool
	Symlink    bool
}

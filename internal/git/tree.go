package git

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// Stat describes the node at p in the tree of commit. The root is addressed
// by the empty path. A missing node yields a KindNone entry and no error.
func (r *Repository) Stat(ctx context.Context, commit ObjectID, p string) (TreeEntry, error) {
	if err := ctx.Err(); err != nil {
		return TreeEntry{}, err
	}
	root, err := r.treeOf(commit)
	if err != nil {
		return TreeEntry{}, err
	}
	p = CleanPath(p)
	if p == "" {
		return TreeEntry{ID: fromHash(root.Hash), Kind: KindDir}, nil
	}
	entry, err := root.FindEntry(p)
	if err != nil {
		if isMissingEntry(err) {
			return TreeEntry{Name: path.Base(p)}, nil
		}
		return TreeEntry{}, classify(err, "stat %s@%s", p, commit)
	}
	return r.treeEntry(entry)
}

// ListDir returns the entries of the directory at p, sorted by name.
func (r *Repository) ListDir(ctx context.Context, commit ObjectID, p string) ([]TreeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := r.treeOf(commit)
	if err != nil {
		return nil, err
	}
	dir := root
	if p = CleanPath(p); p != "" {
		dir, err = root.Tree(p)
		if err != nil {
			if isMissingEntry(err) {
				return nil, svnerr.NotFound(svnerr.CodeFSNotDirectory, "directory %q not found", p)
			}
			return nil, classify(err, "list %s@%s", p, commit)
		}
	}
	out := make([]TreeEntry, 0, len(dir.Entries))
	for i := range dir.Entries {
		entry, err := r.treeEntry(&dir.Entries[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *Repository) treeEntry(e *object.TreeEntry) (TreeEntry, error) {
	out := TreeEntry{Name: e.Name, ID: fromHash(e.Hash)}
	switch e.Mode {
	case filemode.Dir:
		out.Kind = KindDir
		return out, nil
	case filemode.Submodule:
		// Gitlinks point outside this object database.
		out.Kind = KindDir
		return out, nil
	}
	out.Kind = KindFile
	out.Executable = e.Mode == filemode.Executable
	out.Symlink = e.Mode == filemode.Symlink
	obj, err := r.Storer.EncodedObject(plumbing.BlobObject, e.Hash)
	if err != nil {
		return TreeEntry{}, classify(err, "blob %s", out.ID)
	}
	out.Size = obj.Size()
	return out, nil
}

func isMissingEntry(err error) bool {
	return errors.Is(err, object.ErrEntryNotFound) ||
		errors.Is(err, object.ErrDirectoryNotFound) ||
		errors.Is(err, object.ErrFileNotFound)
}

// CleanPath normalizes a repository-relative path: forward slashes, no
// leading or trailing slash, "" for the root.
func CleanPath(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

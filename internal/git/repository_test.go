package git_test

import (
	"context"
	"errors"
	"testing"

	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/git/gittest"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

func TestDiffTreeClassifiesChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := gittest.New(t)
	c1 := fx.Write("keep.txt", "keep\n").
		Write("old.txt", "rename me, the content is long enough to be similar\n").
		Write("gone.txt", "bye\n").
		Commit("initial")
	c2 := fx.Write("keep.txt", "keep v2\n").
		Move("old.txt", "new.txt").
		Remove("gone.txt").
		Write("dir/added.txt", "hello\n").
		Commit("second")
	store := fx.Store()

	root, err := store.DiffTree(ctx, git.ObjectID{}, c1)
	if err != nil {
		t.Fatalf("DiffTree(root): %v", err)
	}
	if len(root) != 3 {
		t.Fatalf("root diff = %+v, want 3 entries", root)
	}
	for _, e := range root {
		if !e.OldID.IsZero() || e.NewID.IsZero() {
			t.Fatalf("root entry should be an addition: %+v", e)
		}
	}

	entries, err := store.DiffTree(ctx, c1, c2)
	if err != nil {
		t.Fatalf("DiffTree: %v", err)
	}
	byPath := map[string]git.DiffEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	if e := byPath["keep.txt"]; e.OldID.IsZero() || e.NewID.IsZero() || e.OldID == e.NewID {
		t.Fatalf("keep.txt should be modified: %+v", e)
	}
	if e := byPath["gone.txt"]; e.OldID.IsZero() || !e.NewID.IsZero() {
		t.Fatalf("gone.txt should be deleted: %+v", e)
	}
	if e := byPath["dir/added.txt"]; !e.OldID.IsZero() || e.NewID.IsZero() {
		t.Fatalf("dir/added.txt should be added: %+v", e)
	}
	if e := byPath["new.txt"]; e.RenamedFrom != "old.txt" || e.OldID != e.NewID {
		t.Fatalf("new.txt should be an exact rename of old.txt: %+v", e)
	}
	if _, ok := byPath["old.txt"]; ok {
		t.Fatalf("renamed source should be folded into the rename entry")
	}
}

func TestWalkHistoryStopsAtKnownCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := gittest.New(t)
	c1 := fx.Write("a", "1").Commit("one")
	c2 := fx.Write("a", "2").Commit("two")
	c3 := fx.Write("a", "3").Commit("three")
	store := fx.Store()

	tip, err := store.BranchTip(ctx, fx.Branch())
	if err != nil {
		t.Fatalf("BranchTip: %v", err)
	}
	if tip != c3 {
		t.Fatalf("tip = %s, want %s", tip, c3)
	}

	all, err := store.WalkHistory(ctx, tip, func(git.ObjectID) bool { return false })
	if err != nil {
		t.Fatalf("WalkHistory: %v", err)
	}
	if len(all) != 3 || all[0].ID != c1 || all[2].ID != c3 {
		t.Fatalf("unexpected history order: %+v", all)
	}

	newer, err := store.WalkHistory(ctx, tip, func(id git.ObjectID) bool { return id == c1 })
	if err != nil {
		t.Fatalf("WalkHistory: %v", err)
	}
	if len(newer) != 2 || newer[0].ID != c2 || newer[0].Message != "two" {
		t.Fatalf("unexpected partial history: %+v", newer)
	}
}

func TestReadObjectAndStat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := gittest.New(t)
	c1 := fx.Write("dir/file.txt", "content\n").Commit("one")
	store := fx.Store()

	entry, err := store.Stat(ctx, c1, "/dir/file.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Kind != git.KindFile || entry.Size != int64(len("content\n")) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	data, err := store.ReadObject(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(data) != "content\n" {
		t.Fatalf("content = %q", data)
	}

	dir, err := store.Stat(ctx, c1, "dir")
	if err != nil || dir.Kind != git.KindDir {
		t.Fatalf("Stat(dir) = %+v, %v", dir, err)
	}
	missing, err := store.Stat(ctx, c1, "nope")
	if err != nil || missing.Kind != git.KindNone {
		t.Fatalf("Stat(nope) = %+v, %v", missing, err)
	}

	list, err := store.ListDir(ctx, c1, "")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(list) != 1 || list[0].Name != "dir" || list[0].Kind != git.KindDir {
		t.Fatalf("unexpected root listing: %+v", list)
	}
	if _, err := store.ListDir(ctx, c1, "nope"); !errors.Is(err, svnerr.ErrNotFound) {
		t.Fatalf("ListDir(nope) error = %v, want not found", err)
	}
}

func TestMissingObjectIsNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := gittest.New(t).Store()
	missing, _ := git.ParseObjectID("0123456789abcdef0123456789abcdef01234567")
	if _, err := store.Commit(ctx, missing); !errors.Is(err, svnerr.ErrNotFound) {
		t.Fatalf("Commit(missing) error = %v, want not found", err)
	}
	if _, err := store.ReadObject(ctx, missing); !errors.Is(err, svnerr.ErrNotFound) {
		t.Fatalf("ReadObject(missing) error = %v, want not found", err)
	}
	if _, err := store.BranchTip(ctx, "nope"); !errors.Is(err, svnerr.ErrNotFound) {
		t.Fatalf("BranchTip(nope) error = %v, want not found", err)
	}
}

func TestCleanPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           "",
		"/":          "",
		"a/b/":       "a/b",
		"/a//b/../c": "a/c",
		"../../etc":  "etc",
	}
	for in, want := range tests {
		if got := git.CleanPath(in); got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}

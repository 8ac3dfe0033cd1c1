package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thiagokokada/gitsvn/internal/git/gittest"
	"github.com/thiagokokada/gitsvn/internal/revision"
)

func TestNotifyRefreshesTrackedBranch(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	fixture.Write("a.txt", "one").Commit("first")
	repo := New(fixture.Store(), revision.NewMemoryStore(), Options{
		Prefix:       "/demo",
		Branch:       fixture.Branch(),
		RefreshDelay: time.Millisecond,
	})
	t.Cleanup(func() { _ = repo.Close() })

	if _, err := repo.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fixture.Write("a.txt", "two").Commit("second")

	repo.Notify("some-other-branch")
	time.Sleep(20 * time.Millisecond)
	if got := repo.Translator().Latest(); got != 1 {
		t.Fatalf("unrelated branch triggered a refresh: latest=%d", got)
	}

	repo.Notify(fixture.Branch())
	deadline := time.Now().Add(2 * time.Second)
	for repo.Translator().Latest() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("refresh did not bind the new commit, latest=%d", repo.Translator().Latest())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUUID(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	fixture.Write("a.txt", "one").Commit("first")
	repo := New(fixture.Store(), revision.NewMemoryStore(), Options{Branch: fixture.Branch()})
	before := repo.UUID()
	if id, err := uuid.Parse(before); err != nil || id.Version() != 5 || id.Variant() != uuid.RFC4122 {
		t.Fatalf("derived uuid %q is not a name-based uuid: %v", before, err)
	}
	if _, err := repo.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	after := repo.UUID()
	if after == before || after != repo.UUID() {
		t.Fatalf("uuid should derive from the first revision once bound: %q %q", before, after)
	}
	first, err := repo.Translator().Revision(1)
	if err != nil {
		t.Fatalf("Revision(1): %v", err)
	}
	if want := uuid.NewSHA1(uuid.NameSpaceURL, first.ID.Bytes()).String(); after != want {
		t.Fatalf("uuid = %q, want %q", after, want)
	}

	fixed := New(fixture.Store(), revision.NewMemoryStore(), Options{UUID: "0a1b"})
	if fixed.UUID() != "0a1b" {
		t.Fatalf("configured uuid ignored")
	}
}

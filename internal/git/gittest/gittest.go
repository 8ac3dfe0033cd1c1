// Package gittest builds throwaway in-memory Git repositories for tests.
package gittest

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/thiagokokada/gitsvn/internal/git"
)

// Repo is a memory-backed repository with a work tree.
type Repo struct {
	t    testing.TB
	fs   billy.Filesystem
	repo *gitlib.Repository
	wt   *gitlib.Worktree
	when time.Time
}

func New(t testing.TB) *Repo {
	t.Helper()
	fs := memfs.New()
	repo, err := gitlib.Init(memory.NewStorage(), fs)
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	return &Repo{
		t:    t,
		fs:   fs,
		repo: repo,
		wt:   wt,
		when: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Store wraps the repository in the object store capability.
func (r *Repo) Store(opts ...git.Option) *git.Repository {
	return git.New(r.repo, "memory", opts...)
}

func (r *Repo) Write(path, content string) *Repo {
	r.t.Helper()
	f, err := r.fs.Create(path)
	if err != nil {
		r.t.Fatalf("create %s: %v", path, err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		r.t.Fatalf("close %s: %v", path, err)
	}
	if _, err := r.wt.Add(path); err != nil {
		r.t.Fatalf("add %s: %v", path, err)
	}
	return r
}

func (r *Repo) Remove(path string) *Repo {
	r.t.Helper()
	if _, err := r.wt.Remove(path); err != nil {
		r.t.Fatalf("remove %s: %v", path, err)
	}
	return r
}

func (r *Repo) Move(from, to string) *Repo {
	r.t.Helper()
	if _, err := r.wt.Move(from, to); err != nil {
		r.t.Fatalf("move %s -> %s: %v", from, to, err)
	}
	return r
}

// Commit records the staged changes one minute after the previous commit.
func (r *Repo) Commit(message string) git.ObjectID {
	r.t.Helper()
	r.when = r.when.Add(time.Minute)
	sig := &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.when}
	h, err := r.wt.Commit(message, &gitlib.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		r.t.Fatalf("commit %q: %v", message, err)
	}
	return git.NewObjectID(h[:])
}

// Branch returns the short name HEAD points at.
func (r *Repo) Branch() string {
	r.t.Helper()
	head, err := r.repo.Head()
	if err != nil {
		r.t.Fatalf("head: %v", err)
	}
	return head.Name().Short()
}

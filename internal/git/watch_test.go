package git

import (
	"path/filepath"
	"testing"
)

func TestBranchFromPath(t *testing.T) {
	t.Parallel()

	heads := filepath.Join("repo", ".git", "refs", "heads")
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "branch", in: filepath.Join(heads, "main"), want: "main"},
		{name: "nested", in: filepath.Join(heads, "feature", "x"), want: "feature/x"},
		{name: "packed_refs", in: filepath.Join("repo", ".git", "packed-refs"), want: ""},
		{name: "head", in: filepath.Join("repo", ".git", "HEAD"), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := branchFromPath(heads, tt.in); got != tt.want {
				t.Fatalf("branchFromPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestShouldIgnoreWatchPath(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"main.lock", "x.IPC", "index", "FETCH_HEAD"} {
		if !shouldIgnoreWatchPath(p) {
			t.Errorf("expected %q to be ignored", p)
		}
	}
	for _, p := range []string{"main", "packed-refs", "HEAD"} {
		if shouldIgnoreWatchPath(p) {
			t.Errorf("expected %q to be watched", p)
		}
	}
}

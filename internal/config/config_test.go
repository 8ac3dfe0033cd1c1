package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const yamlConfig = `
listen: 127.0.0.1:3690
realm: example
cache-dir: cache
refresh-delay: 500ms
users:
  - name: alice
    password: $2a$10$abcdefghijklmnopqrstuu3x6L0Wb2hPIS9CmmDTZ8e0zFvZ0I0G6
repositories:
  - prefix: /demo/
    path: repos/demo
    branch: main
    anonymous-read: true
    private: [secret]
  - prefix: /
    path: /srv/root.git
    rename-detection: false
`

const tomlConfig = `
realm = "example"

[[repositories]]
prefix = "demo"
path = "/srv/demo.git"
readers = ["alice"]
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "gitsvn.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:3690" || cfg.Realm != "example" || cfg.RefreshDelay != 500*time.Millisecond {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CacheDir != filepath.Join(dir, "cache") {
		t.Fatalf("cache dir not resolved against the config file: %q", cfg.CacheDir)
	}
	demo := cfg.RepositoryOptions(0)
	if demo.Prefix != "/demo" || demo.Path != filepath.Join(dir, "repos", "demo") || demo.Branch != "main" {
		t.Fatalf("unexpected options %+v", demo)
	}
	if !demo.RenameDetection || !demo.Access.AnonymousRead || demo.Access.Private[0] != "secret" {
		t.Fatalf("unexpected options %+v", demo)
	}
	if demo.CacheDir != filepath.Join(dir, "cache", "demo") {
		t.Fatalf("cache dir %q", demo.CacheDir)
	}
	root := cfg.RepositoryOptions(1)
	if root.Prefix != "/" || root.RenameDetection || root.CacheDir != filepath.Join(dir, "cache", "%2F") {
		t.Fatalf("unexpected root options %+v", root)
	}
	users := cfg.LocalUsers()
	if len(users) != 1 || users[0].Username != "alice" || !strings.HasPrefix(users[0].PasswordHash, "$2a$") {
		t.Fatalf("users = %+v", users)
	}
}

func TestParseTOML(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(tomlConfig), FormatTOML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.RefreshDelay != DefaultRefreshDelay {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	opts := cfg.RepositoryOptions(0)
	if opts.Prefix != "/demo" || opts.CacheDir != "" || opts.Access.Readers[0] != "alice" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		format Format
		want   string
	}{
		{name: "empty", input: "", want: "no repositories"},
		{name: "missing_path", input: "repositories:\n  - prefix: /a\n", want: "path is required"},
		{name: "duplicate_prefix", input: "repositories:\n  - {prefix: /a, path: x}\n  - {prefix: a/, path: y}\n", want: "duplicate prefix"},
		{name: "duplicate_user", input: "users:\n  - {name: a}\n  - {name: a}\nrepositories:\n  - {path: x}\n", want: "duplicate user"},
		{name: "unknown_yaml_key", input: "listen: x\nbogus: 1\n", want: "bogus"},
		{name: "unknown_toml_key", input: "bogus = 1\n", format: FormatTOML, want: "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	if FormatOf("a/b.TOML") != FormatTOML || FormatOf("a.yml") != FormatYAML || FormatOf("noext") != FormatYAML {
		t.Fatalf("FormatOf picked the wrong decoder")
	}
}

func TestCacheDirNameKeepsPrefixesApart(t *testing.T) {
	t.Parallel()

	seen := map[string]string{}
	for _, prefix := range []string{"/", "/a/b", "/a_b", "/a%2Fb", "/a b", "/..", "/%2E%2E", "/root"} {
		name := cacheDirName(prefix)
		if other, ok := seen[name]; ok {
			t.Fatalf("prefixes %q and %q share cache directory %q", other, prefix, name)
		}
		if strings.Contains(name, "/") || name == "." || name == ".." {
			t.Fatalf("cache directory %q for %q is not a single path element", name, prefix)
		}
		seen[name] = prefix
	}
}

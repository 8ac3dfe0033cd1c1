// Package config loads the server configuration from YAML, or TOML when the
// file name ends in .toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yml "gopkg.in/yaml.v3"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/repository"
)

const (
	DefaultListen       = ":3690"
	DefaultRefreshDelay = repository.DefaultRefreshDelay
)

type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatOf picks the decoder from the file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

type User struct {
	Name     string `yaml:"name" toml:"name"`
	Password string `yaml:"password" toml:"password"`
	RealName string `yaml:"real-name,omitempty" toml:"real-name"`
	Email    string `yaml:"email,omitempty" toml:"email"`
	External string `yaml:"external-id,omitempty" toml:"external-id"`
}

type Repository struct {
	Prefix          string   `yaml:"prefix" toml:"prefix"`
	Path            string   `yaml:"path" toml:"path"`
	Branch          string   `yaml:"branch,omitempty" toml:"branch"`
	UUID            string   `yaml:"uuid,omitempty" toml:"uuid"`
	RenameDetection *bool    `yaml:"rename-detection,omitempty" toml:"rename-detection"`
	AnonymousRead   bool     `yaml:"anonymous-read,omitempty" toml:"anonymous-read"`
	Readers         []string `yaml:"readers,omitempty" toml:"readers"`
	Private         []string `yaml:"private,omitempty" toml:"private"`
}

type Config struct {
	Listen       string        `yaml:"listen" toml:"listen"`
	Realm        string        `yaml:"realm,omitempty" toml:"realm"`
	CacheDir     string        `yaml:"cache-dir,omitempty" toml:"cache-dir"`
	CacheSize    int           `yaml:"cache-size,omitempty" toml:"cache-size"`
	Watch        bool          `yaml:"watch,omitempty" toml:"watch"`
	RefreshDelay time.Duration `yaml:"refresh-delay,omitempty" toml:"refresh-delay"`
	Htpasswd     string        `yaml:"htpasswd,omitempty" toml:"htpasswd"`
	Users        []User        `yaml:"users,omitempty" toml:"users"`
	Repositories []Repository  `yaml:"repositories" toml:"repositories"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// Relative paths are taken from the config file's directory.
	base := filepath.Dir(path)
	cfg.CacheDir = resolve(base, cfg.CacheDir)
	cfg.Htpasswd = resolve(base, cfg.Htpasswd)
	for i := range cfg.Repositories {
		cfg.Repositories[i].Path = resolve(base, cfg.Repositories[i].Path)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Parse decodes, fills defaults and validates.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown toml keys: %v", undecoded)
		}
	default:
		dec := yml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RefreshDelay <= 0 {
		c.RefreshDelay = DefaultRefreshDelay
	}
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.RenameDetection == nil {
			enabled := true
			r.RenameDetection = &enabled
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Repositories) == 0 {
		errs = append(errs, errors.New("no repositories configured"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache-size must not be negative"))
	}
	prefixes := make(map[string]bool)
	for i, r := range c.Repositories {
		if r.Path == "" {
			errs = append(errs, fmt.Errorf("repository %d: path is required", i))
		}
		key := "/" + strings.Trim(r.Prefix, "/")
		if prefixes[key] {
			errs = append(errs, fmt.Errorf("repository %d: duplicate prefix %q", i, key))
		}
		prefixes[key] = true
	}
	names := make(map[string]bool)
	for i, u := range c.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("user %d: name is required", i))
			continue
		}
		if names[u.Name] {
			errs = append(errs, fmt.Errorf("duplicate user %q", u.Name))
		}
		names[u.Name] = true
	}
	return errors.Join(errs...)
}

// LocalUsers converts the configured users for auth.NewLocalDirectory.
func (c *Config) LocalUsers() []auth.LocalUser {
	out := make([]auth.LocalUser, 0, len(c.Users))
	for _, u := range c.Users {
		out = append(out, auth.LocalUser{
			Username:     u.Name,
			PasswordHash: u.Password,
			RealName:     u.RealName,
			Email:        u.Email,
			ExternalID:   u.External,
		})
	}
	return out
}

// RepositoryOptions returns the binding options of the i-th repository. Each
// repository gets its own cache subdirectory.
func (c *Config) RepositoryOptions(i int) repository.Options {
	r := c.Repositories[i]
	opts := repository.Options{
		Prefix:          "/" + strings.Trim(r.Prefix, "/"),
		Path:            r.Path,
		Branch:          r.Branch,
		UUID:            r.UUID,
		RenameDetection: r.RenameDetection == nil || *r.RenameDetection,
		Access: auth.Access{
			AnonymousRead: r.AnonymousRead,
			Readers:       r.Readers,
			Private:       r.Private,
		},
		FrontSize:    c.CacheSize,
		RefreshDelay: c.RefreshDelay,
	}
	if c.CacheDir != "" {
		opts.CacheDir = filepath.Join(c.CacheDir, cacheDirName(opts.Prefix))
	}
	return opts
}

// cacheDirName maps a prefix to a single path element, one per prefix.
func cacheDirName(prefix string) string {
	switch name := strings.Trim(prefix, "/"); name {
	case "":
		return url.PathEscape("/")
	case ".", "..":
		return strings.ReplaceAll(name, ".", "%2E")
	default:
		return url.PathEscape(name)
	}
}

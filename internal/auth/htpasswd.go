package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// HtpasswdDirectory reads users from an Apache htpasswd file. Only bcrypt
// entries ($2y$, $2a$, $2b$) are accepted; other schemes are skipped.
type HtpasswdDirectory struct {
	entries map[string]localEntry
}

func LoadHtpasswd(path string) (*HtpasswdDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open htpasswd: %w", err)
	}
	defer f.Close()
	d, err := ParseHtpasswd(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func ParseHtpasswd(r io.Reader) (*HtpasswdDirectory, error) {
	d := &HtpasswdDirectory{entries: make(map[string]localEntry)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, hash, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("line %d: expected user:hash", lineNo)
		}
		if !isBcrypt(hash) {
			slog.Warn("htpasswd entry skipped, only bcrypt hashes are supported",
				slog.String("user", name),
				slog.Int("line", lineNo),
			)
			continue
		}
		d.entries[name] = localEntry{user: &User{Username: name}, hash: []byte(hash)}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read htpasswd: %w", err)
	}
	return d, nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2y$") || strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$")
}

func (d *HtpasswdDirectory) Check(_ context.Context, username, password string) (*User, error) {
	entry, ok := d.entries[username]
	if !ok {
		return nil, nil
	}
	return checkHash(entry.user, entry.hash, password)
}

func (d *HtpasswdDirectory) LookupByUserName(_ context.Context, username string) (*User, error) {
	return d.entries[username].user, nil
}

// LookupByExternal always misses; htpasswd files carry no external ids.
func (d *HtpasswdDirectory) LookupByExternal(context.Context, string) (*User, error) {
	return nil, nil
}

func (d *HtpasswdDirectory) Authenticators() []Authenticator {
	return []Authenticator{NewPlainAuthenticator(d)}
}

package auth

import (
	"context"
	"fmt"
)

// UserDirectory is a source of users. A nil user with a nil error means the
// directory does not know the user; an error aborts the lookup.
type UserDirectory interface {
	Check(ctx context.Context, username, password string) (*User, error)
	LookupByUserName(ctx context.Context, username string) (*User, error)
	LookupByExternal(ctx context.Context, external string) (*User, error)
	Authenticators() []Authenticator
}

// CompositeDirectory asks its directories in order and returns the first
// user found.
type CompositeDirectory struct {
	dirs []UserDirectory
}

var _ UserDirectory = (*CompositeDirectory)(nil)

func NewComposite(dirs ...UserDirectory) *CompositeDirectory {
	return &CompositeDirectory{dirs: dirs}
}

func (c *CompositeDirectory) Check(ctx context.Context, username, password string) (*User, error) {
	return c.first(func(d UserDirectory) (*User, error) {
		return d.Check(ctx, username, password)
	})
}

func (c *CompositeDirectory) LookupByUserName(ctx context.Context, username string) (*User, error) {
	return c.first(func(d UserDirectory) (*User, error) {
		return d.LookupByUserName(ctx, username)
	})
}

func (c *CompositeDirectory) LookupByExternal(ctx context.Context, external string) (*User, error) {
	return c.first(func(d UserDirectory) (*User, error) {
		return d.LookupByExternal(ctx, external)
	})
}

func (c *CompositeDirectory) first(lookup func(UserDirectory) (*User, error)) (*User, error) {
	for i, d := range c.dirs {
		u, err := lookup(d)
		if err != nil {
			return nil, fmt.Errorf("user directory %d: %w", i, err)
		}
		if u != nil {
			return u, nil
		}
	}
	return nil, nil
}

// Authenticators returns the union of the mechanisms of every directory.
// The plain credential mechanism is bound to the composite itself, so a
// PLAIN login consults all directories in order.
func (c *CompositeDirectory) Authenticators() []Authenticator {
	out := []Authenticator{NewPlainAuthenticator(c)}
	seen := map[string]bool{MechPlain: true}
	for _, d := range c.dirs {
		for _, a := range d.Authenticators() {
			if seen[a.Method()] {
				continue
			}
			seen[a.Method()] = true
			out = append(out, a)
		}
	}
	return out
}

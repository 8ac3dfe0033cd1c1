package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// LocalUser is a user defined in the server configuration. PasswordHash is a
// bcrypt hash.
type LocalUser struct {
	Username     string
	PasswordHash string
	RealName     string
	Email        string
	ExternalID   string
}

// LocalDirectory serves a fixed set of users.
type LocalDirectory struct {
	byName     map[string]localEntry
	byExternal map[string]*User
}

type localEntry struct {
	user *User
	hash []byte
}

func NewLocalDirectory(users []LocalUser) (*LocalDirectory, error) {
	d := &LocalDirectory{
		byName:     make(map[string]localEntry, len(users)),
		byExternal: make(map[string]*User),
	}
	for _, lu := range users {
		if lu.Username == "" {
			return nil, fmt.Errorf("local user without name")
		}
		if _, dup := d.byName[lu.Username]; dup {
			return nil, fmt.Errorf("duplicate local user %q", lu.Username)
		}
		if _, err := bcrypt.Cost([]byte(lu.PasswordHash)); err != nil {
			return nil, fmt.Errorf("local user %q: password hash: %w", lu.Username, err)
		}
		u := &User{
			Username:   lu.Username,
			RealName:   lu.RealName,
			Email:      lu.Email,
			ExternalID: lu.ExternalID,
		}
		d.byName[lu.Username] = localEntry{user: u, hash: []byte(lu.PasswordHash)}
		if lu.ExternalID != "" {
			d.byExternal[lu.ExternalID] = u
		}
	}
	return d, nil
}

func (d *LocalDirectory) Check(_ context.Context, username, password string) (*User, error) {
	entry, ok := d.byName[username]
	if !ok {
		return nil, nil
	}
	return checkHash(entry.user, entry.hash, password)
}

func (d *LocalDirectory) LookupByUserName(_ context.Context, username string) (*User, error) {
	return d.byName[username].user, nil
}

func (d *LocalDirectory) LookupByExternal(_ context.Context, external string) (*User, error) {
	return d.byExternal[external], nil
}

func (d *LocalDirectory) Authenticators() []Authenticator {
	return []Authenticator{NewPlainAuthenticator(d)}
}

func checkHash(u *User, hash []byte, password string) (*User, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, nil
	default:
		return nil, fmt.Errorf("check password of %q: %w", u.Username, err)
	}
}

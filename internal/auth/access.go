package auth

import (
	"slices"
	"strings"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// Access is the read policy of one repository. With an empty Readers list
// every authenticated user may read. Private lists repository paths that
// stay closed to anonymous users even when AnonymousRead is set.
type Access struct {
	AnonymousRead bool
	Readers       []string
	Private       []string
}

// CheckRead returns a not-authorized error when u may not read p, a
// repository-relative path.
func (a Access) CheckRead(u *User, p string) error {
	if u == nil || u.Anonymous {
		if a.AnonymousRead && !a.private(p) {
			return nil
		}
		return svnerr.NotAuthorized("Anonymous access denied to '/%s'", p)
	}
	if len(a.Readers) == 0 || slices.Contains(a.Readers, u.Username) {
		return nil
	}
	return svnerr.NotAuthorized("User %q is not allowed to read this repository", u.Username)
}

func (a Access) private(p string) bool {
	p = strings.Trim(p, "/")
	for _, priv := range a.Private {
		priv = strings.Trim(priv, "/")
		if priv == "" || p == priv || strings.HasPrefix(p, priv+"/") {
			return true
		}
	}
	return false
}

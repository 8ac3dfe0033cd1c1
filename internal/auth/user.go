// Package auth resolves the identity behind a Subversion session and decides
// what that identity may read.
package auth

const anonymousName = "$anonymous"

// User is never mutated once handed out by a directory.
type User struct {
	Username   string
	RealName   string
	Email      string
	ExternalID string
	Anonymous  bool
}

var anonymous = &User{Username: anonymousName, RealName: "anonymous", Anonymous: true}

// Anonymous returns the identity of a session that did not authenticate.
func Anonymous() *User {
	return anonymous
}

func (u *User) String() string {
	if u == nil {
		return "<nil>"
	}
	if u.Anonymous {
		return "anonymous"
	}
	return u.Username
}

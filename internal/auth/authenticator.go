package auth

import (
	"bytes"
	"context"
	"encoding/base64"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const (
	MechPlain     = "PLAIN"
	MechAnonymous = "ANONYMOUS"
)

// Authenticator implements one SASL-style mechanism of the ra_svn
// auth-response exchange. A nil user with a nil error means the credentials
// were rejected.
type Authenticator interface {
	Method() string
	Authenticate(ctx context.Context, token string) (*User, error)
}

type PlainAuthenticator struct {
	dir UserDirectory
}

func NewPlainAuthenticator(dir UserDirectory) *PlainAuthenticator {
	return &PlainAuthenticator{dir: dir}
}

func (*PlainAuthenticator) Method() string { return MechPlain }

// Authenticate decodes base64("authzid NUL authcid NUL password").
func (p *PlainAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, svnerr.Malformed("PLAIN token is not base64: %v", err)
	}
	parts := bytes.Split(raw, []byte{0})
	if len(parts) != 3 {
		return nil, nil
	}
	username, password := string(parts[1]), string(parts[2])
	if username == "" {
		return nil, nil
	}
	return p.dir.Check(ctx, username, password)
}

// PlainToken builds the client side PLAIN token.
func PlainToken(username, password string) string {
	raw := "\x00" + username + "\x00" + password
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Method() string { return MechAnonymous }

func (AnonymousAuthenticator) Authenticate(context.Context, string) (*User, error) {
	return Anonymous(), nil
}

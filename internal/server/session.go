// Package server implements the svnserve side of the ra_svn protocol on top
// of served Git repositories.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/repository"
	"github.com/thiagokokada/gitsvn/internal/router"
	"github.com/thiagokokada/gitsvn/internal/svn"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const maxAuthAttempts = 3

// Session is the state of one client connection. It is owned by the
// goroutine serving that connection.
type Session struct {
	r       *svn.Reader
	w       *svn.Writer
	baseLog *slog.Logger
	log     *slog.Logger

	users  auth.UserDirectory
	realm  string
	routes *router.Router[*repository.Repository]

	user   *auth.User
	client *svn.ClientInfo
	repo   *repository.Repository
	// rootURL is the URL of the repository root; dir is the session
	// directory below it.
	rootURL string
	dir     string
}

func newSession(r io.Reader, w io.Writer, log *slog.Logger, users auth.UserDirectory, realm string, routes *router.Router[*repository.Repository]) *Session {
	return &Session{
		r:       svn.NewReader(r),
		w:       svn.NewWriter(w),
		baseLog: log,
		log:     log,
		users:   users,
		realm:   realm,
		routes:  routes,
		user:    auth.Anonymous(),
	}
}

func (s *Session) User() *auth.User { return s.user }

// acknowledge writes the empty auth request that precedes every command
// response when no credentials are needed.
func (s *Session) acknowledge() error {
	return svn.WriteAuthRequest(s.w, nil, "")
}

func (s *Session) mechanisms(allowAnonymous bool) (map[string]auth.Authenticator, []string) {
	byName := make(map[string]auth.Authenticator)
	var names []string
	add := func(a auth.Authenticator) {
		if _, ok := byName[a.Method()]; ok {
			return
		}
		if a.Method() == auth.MechAnonymous && !allowAnonymous {
			return
		}
		byName[a.Method()] = a
		names = append(names, a.Method())
	}
	if s.users != nil {
		for _, a := range s.users.Authenticators() {
			add(a)
		}
	}
	if allowAnonymous {
		add(auth.AnonymousAuthenticator{})
	}
	return byName, names
}

// Authenticate runs an authentication exchange and replaces the session user
// with its result. The client gets maxAuthAttempts responses; each rejected
// one is answered with a failure.
func (s *Session) Authenticate(ctx context.Context, allowAnonymous bool) error {
	mechs, names := s.mechanisms(allowAnonymous)
	if len(names) == 0 {
		return svnerr.AuthFailed("No authentication mechanism available")
	}
	if err := svn.WriteAuthRequest(s.w, names, s.realm); err != nil {
		return err
	}
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		t, err := s.r.ReadTuple()
		if err != nil {
			return err
		}
		req, err := svn.ParseAuthReq(t)
		if err != nil {
			return err
		}
		a, ok := mechs[req.Mech]
		if !ok {
			s.log.Debug("unknown auth mechanism", slog.String("mech", req.Mech))
			if err := s.w.AuthFailure(fmt.Sprintf("Unknown authentication mechanism: %s", req.Mech)); err != nil {
				return err
			}
			continue
		}
		u, err := a.Authenticate(ctx, req.Token())
		if err != nil && !errors.Is(err, svnerr.ErrMalformed) {
			return err
		}
		if u == nil {
			s.log.Info("authentication rejected",
				slog.String("mech", req.Mech),
				slog.Int("attempt", attempt),
			)
			if err := s.w.AuthFailure("Username or password is incorrect"); err != nil {
				return err
			}
			continue
		}
		if err := s.w.Success(nil); err != nil {
			return err
		}
		s.setUser(u)
		return nil
	}
	return svnerr.AuthFailed("Authentication failed after %d attempts", maxAuthAttempts)
}

func (s *Session) setUser(u *auth.User) {
	s.user = u
	s.log = s.baseLog.With(slog.String("user", u.String()))
	s.log.Debug("authenticated")
}

// route binds the session to the repository serving u.
func (s *Session) route(u *url.URL) (*repository.Repository, string, error) {
	clean := path.Clean("/" + u.Path)
	prefix, repo, ok := s.routes.Resolve(clean)
	if !ok {
		return nil, "", svnerr.NotFound(svnerr.CodeRASvnReposNotFound, "No repository found in '%s'", u.Redacted())
	}
	dir := git.CleanPath(strings.TrimPrefix(strings.TrimSuffix(clean, "/")+"/", prefix))
	return repo, dir, nil
}

func rootURL(u *url.URL, prefix string) string {
	root := url.URL{Scheme: u.Scheme, Host: u.Host, Path: strings.TrimSuffix(prefix, "/")}
	return root.String()
}

// resolve turns a command path, relative to the session directory, into a
// repository path.
func (s *Session) resolve(p string) string {
	return git.CleanPath(path.Join(s.dir, p))
}

// revision validates an optional revision argument; absent means latest.
func (s *Session) revision(rev uint64, ok bool) (int, error) {
	latest := s.repo.Translator().Latest()
	if !ok {
		return latest, nil
	}
	if rev > uint64(latest) {
		return 0, svnerr.NotFound(svnerr.CodeFSNoSuchRevision, "No such revision %d", rev)
	}
	return int(rev), nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/repository"
	"github.com/thiagokokada/gitsvn/internal/router"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const DefaultRealm = "gitsvn"

type Server struct {
	routes *router.Router[*repository.Repository]
	users  auth.UserDirectory
	realm  string
	wg     sync.WaitGroup
}

type Option func(*Server)

func WithRealm(realm string) Option {
	return func(s *Server) {
		if realm != "" {
			s.realm = realm
		}
	}
}

// New creates a server for the repositories in routes. users may be nil
// when only anonymous access is configured.
func New(routes *router.Router[*repository.Repository], users auth.UserDirectory, opts ...Option) *Server {
	s := &Server{routes: routes, users: users, realm: DefaultRealm}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("listening", slog.String("addr", ln.Addr().String()))
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is done, then closes the listener and
// waits for open sessions to end.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Go(func() { s.ServeConn(ctx, conn) })
	}
}

// ServeConn runs the protocol on one connection and closes it.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := slog.With(slog.String("remote", conn.RemoteAddr().String()))
	log.Debug("connection opened")
	sess := newSession(conn, conn, log, s.users, s.realm, s.routes)
	err := connectionPipeline().Process(ctx, sess)

	var reported reportedError
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
		sess.log.Debug("connection closed")
	case errors.As(err, &reported):
		sess.log.Warn("session ended", slog.Any("error", err))
	default:
		if svnerr.KindOf(err) != svnerr.KindUnknown {
			if werr := sess.w.Failure(err); werr != nil {
				sess.log.Debug("write failure", slog.Any("error", werr))
			}
		}
		sess.log.Warn("session failed", slog.Any("error", err))
	}
}

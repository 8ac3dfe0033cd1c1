package server

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/thiagokokada/gitsvn/internal/svn"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// connectionPipeline builds the steps every connection goes through.
func connectionPipeline() Step {
	return greeting{next: handshake{next: initialAuth{next: reposInfo{next: commandLoop{}}}}}
}

type greeting struct{ next Step }

func (g greeting) Process(ctx context.Context, s *Session) error {
	if err := svn.WriteGreeting(s.w); err != nil {
		return err
	}
	return g.next.Process(ctx, s)
}

type handshake struct{ next Step }

func (h handshake) Process(ctx context.Context, s *Session) error {
	t, err := s.r.ReadTuple()
	if err != nil {
		return err
	}
	info, err := svn.ParseClientInfo(t)
	if err != nil {
		return err
	}
	if info.Version < svn.ProtocolVersion {
		return &svnerr.Error{
			Kind:    svnerr.KindMalformed,
			Code:    svnerr.CodeRASvnBadVersion,
			Message: "Client protocol version is too old",
		}
	}
	repo, dir, err := s.route(info.URL)
	if err != nil {
		return err
	}
	s.client = info
	s.repo = repo
	s.dir = dir
	s.rootURL = rootURL(info.URL, repo.Prefix())
	s.baseLog = s.baseLog.With(slog.String("repository", repo.Prefix()))
	s.log = s.baseLog
	s.log.Debug("handshake",
		slog.String("url", info.URL.Redacted()),
		slog.String("client", info.RAClient),
		slog.Any("capabilities", info.Capabilities),
	)
	return h.next.Process(ctx, s)
}

type initialAuth struct{ next Step }

func (a initialAuth) Process(ctx context.Context, s *Session) error {
	if err := s.Authenticate(ctx, s.repo.Access().AnonymousRead); err != nil {
		return err
	}
	return a.next.Process(ctx, s)
}

// reposInfo writes "( success ( uuid root-url ( caps ) ) )".
type reposInfo struct{ next Step }

func (ri reposInfo) Process(ctx context.Context, s *Session) error {
	err := s.w.Success(func(w *svn.Writer) {
		w.Text(s.repo.UUID()).Text(s.rootURL).ListBegin().ListEnd()
	})
	if err != nil {
		return err
	}
	return ri.next.Process(ctx, s)
}

// reportedError marks a failure already written to the client.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// commandLoop serves commands until the client disconnects. Recoverable
// failures are reported and the loop goes on; anything else ends the
// session after the failure is written.
type commandLoop struct{}

func (commandLoop) Process(ctx context.Context, s *Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := s.r.ReadCommand()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		err = s.dispatch(ctx, cmd)
		if err == nil {
			continue
		}
		s.log.Debug("command failed", slog.String("command", cmd.Name), slog.Any("error", err))
		if werr := s.w.Failure(err); werr != nil {
			return werr
		}
		if !svnerr.Recoverable(err) {
			return reportedError{err}
		}
	}
}

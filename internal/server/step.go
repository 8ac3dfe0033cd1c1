package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// Step is one stage of the per-connection pipeline. A step that continues
// the pipeline calls the next step it holds.
type Step interface {
	Process(ctx context.Context, s *Session) error
}

type StepFunc func(ctx context.Context, s *Session) error

func (f StepFunc) Process(ctx context.Context, s *Session) error { return f(ctx, s) }

// Checker decides whether the session may proceed; a denial is a
// not-authorized error.
type Checker func(ctx context.Context, s *Session) error

type checkOutcome uint8

const (
	checkAllowed checkOutcome = iota
	checkDeniedAnonymous
	checkFailed
)

// CheckPermission guards Next with Check. An anonymous session that is
// denied is asked for credentials once and checked again; a known user is
// never asked again.
type CheckPermission struct {
	Check Checker
	Next  Step
}

func (c CheckPermission) attempt(ctx context.Context, s *Session) (checkOutcome, error) {
	err := c.Check(ctx, s)
	switch {
	case err == nil:
		return checkAllowed, nil
	case errors.Is(err, svnerr.ErrNotAuthorized) && s.user.Anonymous:
		return checkDeniedAnonymous, err
	default:
		return checkFailed, err
	}
}

func (c CheckPermission) Process(ctx context.Context, s *Session) error {
	if c.Check == nil {
		if err := s.acknowledge(); err != nil {
			return err
		}
		return c.Next.Process(ctx, s)
	}

	outcome, err := c.attempt(ctx, s)
	switch outcome {
	case checkAllowed:
		if err := s.acknowledge(); err != nil {
			return err
		}
		return c.Next.Process(ctx, s)
	case checkFailed:
		return err
	}

	s.log.Debug("anonymous access denied, requesting credentials", slog.Any("error", err))
	if err := s.Authenticate(ctx, false); err != nil {
		return err
	}
	// The successful exchange already answered the client's pending auth
	// request, so no acknowledgment follows.
	if err := c.Check(ctx, s); err != nil {
		return err
	}
	return c.Next.Process(ctx, s)
}

// Package svnerr holds the error taxonomy shared by the revision layer, the
// wire codec and the session pipeline. Every error carries the numeric
// Subversion error code that is reported to clients in failure responses.
package svnerr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindStorage
	KindNotAuthorized
	KindMalformed
	KindUnsupported
	KindAuthFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindStorage:
		return "storage"
	case KindNotAuthorized:
		return "not authorized"
	case KindMalformed:
		return "malformed message"
	case KindUnsupported:
		return "unsupported"
	case KindAuthFailed:
		return "authentication failed"
	default:
		return "unknown"
	}
}

// Subversion error codes (subversion/include/svn_error_codes.h).
const (
	CodeBadURL             = 125002
	CodeFSGeneral          = 160000
	CodeFSNoSuchRevision   = 160006
	CodeFSNotFound         = 160013
	CodeFSNotFile          = 160017
	CodeFSNotDirectory     = 160016
	CodeRAIllegalURL       = 170000
	CodeRANotAuthorized    = 170001
	CodeRANotImplemented   = 170003
	CodeRASvnCmdErr        = 210000
	CodeRASvnUnknownCmd    = 210001
	CodeRASvnMalformedData = 210004
	CodeRASvnReposNotFound = 210005
	CodeRASvnBadVersion    = 210006
)

type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind, so errors.Is(err, ErrNotFound) holds for
// every not-found error regardless of its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == 0 && t.Message == "" && t.Kind == e.Kind
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrMalformed     = &Error{Kind: KindMalformed}
	ErrUnsupported   = &Error{Kind: KindUnsupported}
	ErrAuthFailed    = &Error{Kind: KindAuthFailed}
)

func NotFound(code int, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotAuthorized(format string, args ...any) *Error {
	return &Error{Kind: KindNotAuthorized, Code: CodeRANotAuthorized, Message: fmt.Sprintf(format, args...)}
}

// AuthFailed reports an authentication exchange the client could not
// complete. Unlike a denied check it ends the session.
func AuthFailed(format string, args ...any) *Error {
	return &Error{Kind: KindAuthFailed, Code: CodeRANotAuthorized, Message: fmt.Sprintf(format, args...)}
}

func Malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Code: CodeRASvnMalformedData, Message: fmt.Sprintf(format, args...)}
}

func Unsupported(code int, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an underlying store failure. A nil err yields nil.
func Storage(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) && se.Kind != KindUnknown {
		return err
	}
	return &Error{Kind: KindStorage, Code: CodeFSGeneral, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the classification of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// CodeOf reports the Subversion code carried by err. Foreign errors map to the
// generic command error code.
func CodeOf(err error) int {
	var se *Error
	if errors.As(err, &se) && se.Code != 0 {
		return se.Code
	}
	return CodeRASvnCmdErr
}

// Recoverable reports whether a session may keep serving commands after err
// was reported to the client.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindNotAuthorized, KindUnsupported:
		return true
	default:
		return false
	}
}

package errors

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/lib/pq"

	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
)

// Op identifies which part of the habit log core produced an error.
type Op string

const (
	OpFetch        Op = "fetch"
	OpUpdate       Op = "update"
	OpSubscription Op = "subscription"
	OpRecompute    Op = "recompute"
)

// Kind classifies the transport failure behind an error.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindUnknown        Kind = "unknown"
)

// Sentinels matched by errors.Is against any *Error with the same Op.
var (
	ErrFetch        = &Error{Op: OpFetch}
	ErrUpdate       = &Error{Op: OpUpdate}
	ErrSubscription = &Error{Op: OpSubscription}
	ErrRecompute    = &Error{Op: OpRecompute}
)

// Error is the single error type surfaced by the reconciliation engine, the
// subscription manager, the update coordinator and the statistics controller.
type Error struct {
	Op      Op
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Op) + ": " + e.Message
	}
	return string(e.Op) + ": " + e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error sentinel with the same Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" && t.Message == "" && t.Err == nil && t.Op == e.Op
}

// FetchError wraps a failed reconciliation query.
func FetchError(err error) *Error { return newError(OpFetch, err) }

// UpdateError wraps a failed log insert or update.
func UpdateError(err error) *Error { return newError(OpUpdate, err) }

// SubscriptionError wraps a failed change stream establishment.
func SubscriptionError(err error) *Error { return newError(OpSubscription, err) }

// RecomputeError wraps a failed statistics procedure call.
func RecomputeError(err error) *Error { return newError(OpRecompute, err) }

func newError(op Op, err error) *Error {
	kind := Classify(err)
	return &Error{
		Op:      op,
		Kind:    kind,
		Message: messageFor(op, kind),
		Err:     err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or classifies
// err directly when there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

// Classify maps a transport error onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case stderrors.Is(err, gateway.ErrUnauthorized):
		return KindAuthentication
	case stderrors.Is(err, gateway.ErrRateLimited):
		return KindRateLimited
	case stderrors.Is(err, gateway.ErrInvalidRow),
		stderrors.Is(err, gateway.ErrInvalidQuery),
		stderrors.Is(err, gateway.ErrInvalidInput):
		return KindValidation
	case stderrors.Is(err, gateway.ErrNotFound):
		return KindServer
	case stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, sql.ErrConnDone):
		return KindNetwork
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "28"), code == "42501":
			return KindAuthentication
		case strings.HasPrefix(code, "08"):
			return KindNetwork
		case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"):
			return KindValidation
		default:
			return KindServer
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetwork
	}

	return KindUnknown
}

func messageFor(op Op, kind Kind) string {
	switch kind {
	case KindNetwork:
		return "check your network connection"
	case KindAuthentication:
		return "authentication failed, sign in again"
	case KindValidation:
		return "the request was rejected as invalid"
	case KindRateLimited:
		return "statistics were already recalculated today"
	case KindServer:
		return "the server reported an error"
	}

	switch op {
	case OpFetch:
		return "failed to load habit logs"
	case OpUpdate:
		return "failed to save habit log"
	case OpSubscription:
		return "failed to subscribe to habit log changes"
	case OpRecompute:
		return "failed to recalculate statistics"
	}
	return "an unexpected error occurred"
}

// Format renders err for the terminal. When err carries an *Error its
// user-facing message leads and the underlying cause follows on its own line.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return fmt.Sprintf("Error: %v", err)
	}
	if e.Err == nil {
		return "Error: " + e.Message
	}
	return fmt.Sprintf("Error: %s\n  cause: %v", e.Message, e.Err)
}

// Fatal logs err, prints it to stderr and exits with status 1. It does
// nothing when err is nil.
func Fatal(err error) {
	if err == nil {
		return
	}
	var e *Error
	if stderrors.As(err, &e) {
		logger.Error("command failed", "op", e.Op, "kind", e.Kind, "error", err)
	} else {
		logger.Error("command failed", "error", err)
	}
	fmt.Fprintln(os.Stderr, Format(err))
	os.Exit(1)
}

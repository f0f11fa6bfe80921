package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourceplane/assignctl/internal/model"
)

var (
	// ErrThrottled indicates the service asked the caller to slow down.
	ErrThrottled = errors.New("throttled")

	// ErrTransient indicates a server-side or network failure worth retrying.
	ErrTransient = errors.New("transient server error")

	// ErrNotFound indicates the app, group or assignment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the service rejected the payload.
	ErrValidation = errors.New("validation failed")

	// ErrPermission indicates the caller is authenticated but not allowed.
	ErrPermission = errors.New("permission denied")

	// ErrAuth indicates the credentials were rejected. It recurs for every
	// call, so the engine stops issuing new ones.
	ErrAuth = errors.New("authentication failed")
)

var kindSentinels = map[model.ErrorKind]error{
	model.KindThrottled:  ErrThrottled,
	model.KindTransient:  ErrTransient,
	model.KindNotFound:   ErrNotFound,
	model.KindValidation: ErrValidation,
	model.KindPermission: ErrPermission,
	model.KindAuth:       ErrAuth,
}

// Error is a classified failure of a remote call
type Error struct {
	Kind       model.ErrorKind
	Op         string
	AppID      string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// NewError classifies err under kind
func NewError(kind model.ErrorKind, op, appID string, err error) *Error {
	return &Error{Kind: kind, Op: op, AppID: appID, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s app %s: %s", e.Op, e.AppID, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf classifies any error returned by a Client
func KindOf(err error) model.ErrorKind {
	if err == nil {
		return ""
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.KindCanceled
	}
	return model.KindUnknown
}

// IsRetryable reports whether err is a throttling or transient failure
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case model.KindThrottled, model.KindTransient:
		return true
	default:
		return false
	}
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	return KindOf(err) == model.KindAuth
}

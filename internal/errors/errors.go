package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Reason is the validation-failure taxonomy returned to callers. Each
// recoverable rejection maps to exactly one reason; fatal contract
// violations (out-of-bounds coordinates, counter overflow) panic instead.
type Reason string

const (
	ReasonNicknameAlreadyTaken    Reason = "NICKNAME_ALREADY_TAKEN"
	ReasonInvalidQuizMode         Reason = "INVALID_QUIZ_MODE"
	ReasonInvalidStartMode        Reason = "INVALID_START_MODE"
	ReasonQuizNotStarted          Reason = "QUIZ_NOT_STARTED"
	ReasonUserAlreadyAttempted    Reason = "USER_ALREADY_ATTEMPTED"
	ReasonUserNotRegistered       Reason = "USER_NOT_REGISTERED"
	ReasonUserAlreadyRegistered   Reason = "USER_ALREADY_REGISTERED"
	ReasonQuizNotFound            Reason = "QUIZ_NOT_FOUND"
	ReasonUserNotFound            Reason = "USER_NOT_FOUND"
	ReasonInsufficientPermissions Reason = "INSUFFICIENT_PERMISSIONS"
	ReasonInvalidParameters       Reason = "INVALID_PARAMETERS"
	ReasonInternal                Reason = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithReason(ReasonInternal), WithCause(err))
}

// ReasonOf extracts the rejection reason from an error, or ReasonInternal
// for errors outside the taxonomy.
func ReasonOf(err error) Reason {
	e := Convert(err)
	if e.Reason == "" {
		return ReasonInternal
	}
	return e.Reason
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}

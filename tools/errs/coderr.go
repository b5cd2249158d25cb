package errs

import (
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// CodeError is an error carrying a numeric code. Codes in the 4xxx range double as
// WebSocket close codes.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// WithDetail returns a copy with detail appended.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Wrap attaches a stack trace.
func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e)
}

// WrapMsg attaches detail and a stack trace.
func (e *CodeError) WrapMsg(detail string) error {
	return pkgerrors.WithStack(e.WithDetail(detail))
}

// Is matches any CodeError with the same code, so detail copies still compare equal
// to the sentinel.
func (e *CodeError) Is(target error) bool {
	var other *CodeError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Code extracts the code of the first CodeError in err's chain, or 0.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// Wrap annotates err with a stack trace; nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

// WrapMsg annotates err with msg and a stack trace; nil stays nil.
func WrapMsg(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

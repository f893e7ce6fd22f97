package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error codes shared by the HTTP boundary and the store layer.
const (
	ValidationErrorCode = 1001 // empty/invalid payload
	NotFoundErrorCode   = 1002 // unknown record id
	UploadErrorCode     = 1003 // upstream object storage failed
	TransportErrorCode  = 1004 // realtime channel unavailable
	AuthErrorCode       = 1005 // unverifiable identity
	InternalErrorCode   = 1500
)

var (
	ErrValidation = NewCodeError(ValidationErrorCode, "validation failed")
	ErrNotFound   = NewCodeError(NotFoundErrorCode, "record not found")
	ErrUpload     = NewCodeError(UploadErrorCode, "upload failed")
	ErrTransport  = NewCodeError(TransportErrorCode, "transport unavailable")
	ErrAuth       = NewCodeError(AuthErrorCode, "unauthorized")
	ErrInternal   = NewCodeError(InternalErrorCode, "internal server error")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// WrapMsg clones the error and appends a formatted "msg key=value" detail.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	c := &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if c.Detail == "" {
			c.Detail = detail
		} else {
			c.Detail += ", " + detail
		}
	}
	return c
}

// Is matches any CodeError carrying the same code, so callers can use
// errors.Is(err, errs.ErrNotFound) regardless of attached detail.
func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

// CodeOf returns the code of err, or InternalErrorCode when err carries none.
func CodeOf(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return InternalErrorCode
}

func New(msg string, kv ...any) error {
	return errors.New(toString(msg, kv))
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprintf(" %v=%v", kv[i], kv[i+1]))
		} else {
			sb.WriteString(fmt.Sprintf(" %v", kv[i]))
		}
	}
	return sb.String()
}

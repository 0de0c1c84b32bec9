// Package errs 业务错误分类
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
	KindIncomplete Kind = "IncompletePrerequisite"
	KindForbidden  Kind = "Forbidden"
	KindDatabase   Kind = "DatabaseOperationFailed"
	KindInternal   Kind = "InternalFailure"
)

// Error 带类别的错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func Incomplete(format string, args ...interface{}) *Error {
	return newf(KindIncomplete, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

// Database 持久层错误，消息原样保留
func Database(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: op, Err: err}
}

// Internal 非预期错误
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// KindOf 返回错误类别，未分类错误视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsBusiness 预期内的业务拒绝（4xx）
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindIncomplete, KindForbidden:
		return true
	}
	return false
}

// HTTPStatus 错误类别对应的HTTP状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindIncomplete:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case "":
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// PublicMessage 可返回给调用方的消息。Internal 错误不透出底层细节，
// DatabaseOperationFailed 原样透出。
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindInternal:
		return "internal server error"
	case KindDatabase:
		return e.Error()
	}
	return e.Message
}

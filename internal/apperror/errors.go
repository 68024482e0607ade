// Package apperror описывает классы ошибок, которые возвращаются клиенту как результат действия.
package apperror

import (
	"context"
	"errors"
	"fmt"
)

// Kind - класс ошибки
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindNotFound       Kind = "not_found"
	KindTransient      Kind = "transient_dependency_error"
	KindInternal       Kind = "internal_error"
)

// Error - ошибка с классом и безопасным для клиента сообщением
type Error struct {
	Kind         Kind
	Field        string
	RequiredRole string
	Message      string
	Err          error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func Authorization(requiredRole string) *Error {
	return &Error{
		Kind:         KindAuthorization,
		RequiredRole: requiredRole,
		Message:      fmt.Sprintf("requires role %s", requiredRole),
	}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// Transient оборачивает сбой внешней зависимости (таймаут, недоступность)
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Message: "dependency unavailable, retry later", Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf возвращает класс ошибки; ошибки контекста считаются временными
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Failure - тело ошибки, отдаваемое клиенту
type Failure struct {
	Code         Kind   `json:"code"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	RequiredRole string `json:"requiredRole,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

// ToFailure переводит ошибку в безопасный для клиента вид без внутренних деталей
func ToFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = Transient(err)
		} else {
			appErr = Internal(err)
		}
	}
	f := &Failure{Code: appErr.Kind, Message: appErr.Message}
	switch appErr.Kind {
	case KindValidation:
		f.Field = appErr.Field
	case KindAuthorization:
		f.RequiredRole = appErr.RequiredRole
	case KindTransient:
		f.Message = "dependency unavailable, retry later"
		f.Retryable = true
	case KindInternal:
		f.Message = "internal error"
	}
	return f
}

package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

var (
	ErrInvalidSignature = errors.New("core: invalid webhook signature")
	ErrUnauthorized     = errors.New("core: sender not authorized")
	ErrHandlerFailed    = errors.New("core: handler failed")
)

// SignatureError reports a webhook delivery whose signature could not be
// verified. Detail names what went wrong for the log; responses carry only a
// fixed message.
type SignatureError struct {
	Transport string
	Detail    string
}

func (e *SignatureError) Error() string {
	if e == nil {
		return ErrInvalidSignature.Error()
	}
	msg := ErrInvalidSignature.Error()
	if strings.TrimSpace(e.Transport) != "" {
		msg += ": transport=" + strings.TrimSpace(e.Transport)
	}
	if strings.TrimSpace(e.Detail) != "" {
		msg += ": " + strings.TrimSpace(e.Detail)
	}
	return msg
}

func (e *SignatureError) Is(target error) bool {
	return target == ErrInvalidSignature
}

// UnauthorizedError reports a sender holding no active grant for the role it
// requested.
type UnauthorizedError struct {
	Sender string
	Role   Role
}

func (e *UnauthorizedError) Error() string {
	if e == nil {
		return ErrUnauthorized.Error()
	}
	return fmt.Sprintf("%s: sender %q lacks role %q", ErrUnauthorized.Error(), e.Sender, e.Role)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// HandlerFailureError wraps a role handler failure that the dispatcher
// contained. The cause stays available for logs and the audit trail; mapped
// responses never carry it.
type HandlerFailureError struct {
	Role  Role
	Cause error
}

func (e *HandlerFailureError) Error() string {
	if e == nil {
		return ErrHandlerFailed.Error()
	}
	msg := ErrHandlerFailed.Error()
	if strings.TrimSpace(string(e.Role)) != "" {
		msg += ": role=" + string(e.Role)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *HandlerFailureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *HandlerFailureError) Is(target error) bool {
	return target == ErrHandlerFailed
}

const (
	ConciergeErrorBadInput            = "CONCIERGE_BAD_INPUT"
	ConciergeErrorInvalidSignature    = "CONCIERGE_INVALID_SIGNATURE"
	ConciergeErrorUndecodableEnvelope = "CONCIERGE_UNDECODABLE_ENVELOPE"
	ConciergeErrorUnauthorized        = "CONCIERGE_UNAUTHORIZED"
	ConciergeErrorHandlerFailed       = "CONCIERGE_HANDLER_FAILED"
	ConciergeErrorDuplicateGrant      = "CONCIERGE_DUPLICATE_GRANT"
	ConciergeErrorGrantNotFound       = "CONCIERGE_GRANT_NOT_FOUND"
	ConciergeErrorRateLimited         = "CONCIERGE_RATE_LIMITED"
	ConciergeErrorInternal            = "CONCIERGE_INTERNAL"
)

// MapError normalizes any pipeline error into a rich error carrying an HTTP
// status and text code, preserving codes already set upstream. Pipeline
// failures are classified by sentinel, not by message text; only plain
// validation errors fall back to a keyword check. Signature, authorization,
// and handler failures map to fixed messages so internals never reach the
// sender.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrDuplicateGrant):
		return newConciergeError(err.Error(), goerrors.CategoryConflict, ConciergeErrorDuplicateGrant)
	case errors.Is(err, ErrGrantNotFound):
		return newConciergeError(err.Error(), goerrors.CategoryNotFound, ConciergeErrorGrantNotFound)
	case errors.Is(err, ErrInvalidSignature):
		return newConciergeError("webhook signature verification failed", goerrors.CategoryAuth, ConciergeErrorInvalidSignature)
	case errors.Is(err, ErrUnauthorized):
		return newConciergeError("sender is not authorized for the requested role", goerrors.CategoryAuthz, ConciergeErrorUnauthorized)
	case errors.Is(err, ErrHandlerFailed):
		return newConciergeError("message handling failed", goerrors.CategoryInternal, ConciergeErrorHandlerFailed)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") || strings.Contains(msg, "missing") {
		return newConciergeError(err.Error(), goerrors.CategoryBadInput, ConciergeErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newConciergeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = conciergeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultConciergeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultConciergeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ConciergeErrorBadInput
	case goerrors.CategoryAuth:
		return ConciergeErrorInvalidSignature
	case goerrors.CategoryAuthz:
		return ConciergeErrorUnauthorized
	case goerrors.CategoryNotFound:
		return ConciergeErrorGrantNotFound
	case goerrors.CategoryConflict:
		return ConciergeErrorDuplicateGrant
	case goerrors.CategoryOperation:
		return ConciergeErrorHandlerFailed
	case goerrors.CategoryRateLimit:
		return ConciergeErrorRateLimited
	default:
		return ConciergeErrorInternal
	}
}

func conciergeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

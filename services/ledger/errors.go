package ledger

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to callers. Every rejected operation carries one of
// these plus a human-readable reason.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION"
	CodeExceedsDue         = "EXCEEDS_DUE"
	CodeDuplicateBilling   = "DUPLICATE_BILLING"
	CodeConflict           = "CONFLICT"
	CodeInvalidState       = "INVALID_STATE"
	CodeNumberingCollision = "NUMBERING_COLLISION"
	CodePartiallyApplied   = "PARTIALLY_APPLIED"
)

// Error is a business-rule failure with a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, format, args...)
}

func Validationf(format string, args ...interface{}) *Error {
	return newError(CodeValidation, format, args...)
}

func ExceedsDuef(format string, args ...interface{}) *Error {
	return newError(CodeExceedsDue, format, args...)
}

func DuplicateBillingf(format string, args ...interface{}) *Error {
	return newError(CodeDuplicateBilling, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newError(CodeConflict, format, args...)
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return newError(CodeInvalidState, format, args...)
}

func NumberingCollisionf(format string, args ...interface{}) *Error {
	return newError(CodeNumberingCollision, format, args...)
}

func PartiallyAppliedf(format string, args ...interface{}) *Error {
	return newError(CodePartiallyApplied, format, args...)
}

// CodeOf extracts the ledger error code, or "" for non-ledger errors.
func CodeOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// HTTPStatus maps a ledger error to the HTTP status its controllers respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeValidation, CodeExceedsDue, CodeInvalidState:
		return fiber.StatusBadRequest
	case CodeDuplicateBilling, CodeConflict:
		return fiber.StatusConflict
	case CodeNumberingCollision, CodePartiallyApplied:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

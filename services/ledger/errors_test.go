package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "not found",
			err:      NotFoundf("fee collection %d not found", 42),
			expected: CodeNotFound,
		},
		{
			name:     "wrapped ledger error",
			err:      fmt.Errorf("applying payment: %w", ExceedsDuef("amount exceeds due")),
			expected: CodeExceedsDue,
		},
		{
			name:     "plain error",
			err:      errors.New("connection refused"),
			expected: "",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", NotFoundf("missing"), fiber.StatusNotFound},
		{"validation", Validationf("bad amount"), fiber.StatusBadRequest},
		{"exceeds due", ExceedsDuef("too much"), fiber.StatusBadRequest},
		{"invalid state", InvalidStatef("cancelled"), fiber.StatusBadRequest},
		{"duplicate billing", DuplicateBillingf("already billed"), fiber.StatusConflict},
		{"conflict", Conflictf("version changed"), fiber.StatusConflict},
		{"numbering collision", NumberingCollisionf("exhausted"), fiber.StatusUnprocessableEntity},
		{"partially applied", PartiallyAppliedf("receipt without entry"), fiber.StatusUnprocessableEntity},
		{"unknown error", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.expected {
				t.Fatalf("expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validationf("amount must be positive, got %v", -5.0)
	if err.Error() != "amount must be positive, got -5" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

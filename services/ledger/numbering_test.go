package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRandomReceiptNumber(t *testing.T) {
	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	number := randomReceiptNumber(at)
	if !strings.HasPrefix(number, "RCP-202608-") {
		t.Fatalf("unexpected prefix: %s", number)
	}
	if got := len(number); got != len("RCP-202608-")+8 {
		t.Fatalf("unexpected length %d for %s", got, number)
	}
	if number != strings.ToUpper(number) {
		t.Fatalf("expected uppercase number, got %s", number)
	}

	// Random suffixes should not repeat across a handful of draws.
	seen := map[string]bool{number: true}
	for i := 0; i < 20; i++ {
		n := randomReceiptNumber(at)
		if seen[n] {
			t.Fatalf("duplicate random number %s", n)
		}
		seen[n] = true
	}
}

func TestNormalizeReceiptNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "rcp-202608-0042", "RCP-202608-0042"},
		{"padded", "  RCP-202608-0042 ", "RCP-202608-0042"},
		{"already normal", "RCP-202608-0042", "RCP-202608-0042"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeReceiptNumber(tc.input); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if isDuplicateKey(nil) {
		t.Fatalf("nil is not a duplicate key error")
	}
	if !isDuplicateKey(errors.New("Error 1062: Duplicate entry 'RCP-202608-0042' for key 'receipt_number'")) {
		t.Fatalf("expected mysql duplicate entry to be detected")
	}
	if !isDuplicateKey(errors.New("UNIQUE constraint failed: fee_receipts.receipt_number")) {
		t.Fatalf("expected sqlite unique violation to be detected")
	}
	if isDuplicateKey(errors.New("connection refused")) {
		t.Fatalf("unrelated error misclassified as duplicate key")
	}
}

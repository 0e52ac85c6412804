package controllers

import (
	"strings"
	"testing"
	"time"
)

func TestParsePaymentDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{
			name:     "iso date",
			input:    "2026-08-15",
			expected: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "us short date",
			input:    "8/15/2026",
			expected: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "padded slash date",
			input:    "01/02/2026",
			expected: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "two digit year",
			input:    "8/15/26",
			expected: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "surrounding whitespace",
			input:    "  2026-08-15  ",
			expected: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := parsePaymentDate(tc.input)
			if !got.Equal(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestParsePaymentDateInvalid(t *testing.T) {
	for _, s := range []string{"", "not a date", "2026-13-99"} {
		if got := parsePaymentDate(s); !got.IsZero() {
			t.Fatalf("expected zero time for %q, got %v", s, got)
		}
	}
}

func TestHeaderIndexes(t *testing.T) {
	header := []string{"Admission No", " Fee Structure ", "Amount", "Payment Date"}
	col := headerIndexes(header)

	if col["Admission No"] != 0 {
		t.Fatalf("expected Admission No at 0, got %d", col["Admission No"])
	}
	if col["Fee Structure"] != 1 {
		t.Fatalf("expected trimmed Fee Structure at 1, got %d", col["Fee Structure"])
	}
	if _, ok := col["Missing"]; ok {
		t.Fatalf("unexpected column found")
	}
}

func TestSanitizeUploadName(t *testing.T) {
	if got := sanitizeUploadName("payments.xlsx"); got != "payments.xlsx" {
		t.Fatalf("plain name mangled: %q", got)
	}
	for _, input := range []string{"../../etc/passwd", "folder\\file.csv", "a/../b.csv"} {
		got := sanitizeUploadName(input)
		if strings.Contains(got, "/") || strings.Contains(got, "\\") || strings.Contains(got, "..") {
			t.Fatalf("unsafe characters remain in %q", got)
		}
	}
}

func TestReadCSVRows(t *testing.T) {
	input := "Admission No,Fee Structure,Amount,Payment Date\nGPS-2025-0001,Monthly Tuition G5,2800,2026-08-15\n"
	rows, err := readCSVRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "GPS-2025-0001" {
		t.Fatalf("unexpected first cell: %q", rows[1][0])
	}
}

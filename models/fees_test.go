package models

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	due := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		current  string
		total    float64
		discount float64
		lateFee  float64
		paid     float64
		now      time.Time
		expected string
	}{
		{
			name:     "unpaid before due date",
			current:  CollectionPending,
			total:    2800,
			now:      due.AddDate(0, 0, -3),
			expected: CollectionPending,
		},
		{
			name:     "unpaid on due date",
			current:  CollectionPending,
			total:    2800,
			now:      due,
			expected: CollectionPending,
		},
		{
			name:     "unpaid after due date",
			current:  CollectionPending,
			total:    2800,
			now:      due.AddDate(0, 0, 1),
			expected: CollectionOverdue,
		},
		{
			name:     "partial payment past due stays partial",
			current:  CollectionOverdue,
			total:    2800,
			paid:     1000,
			now:      due.AddDate(0, 1, 0),
			expected: CollectionPartial,
		},
		{
			name:     "full payment",
			current:  CollectionPartial,
			total:    2800,
			paid:     2800,
			now:      due.AddDate(0, 0, -1),
			expected: CollectionPaid,
		},
		{
			name:     "discount lowers the bar to paid",
			current:  CollectionPending,
			total:    2800,
			discount: 300,
			paid:     2500,
			now:      due,
			expected: CollectionPaid,
		},
		{
			name:     "late fee raises the bar back to partial",
			current:  CollectionPaid,
			total:    2800,
			lateFee:  100,
			paid:     2800,
			now:      due.AddDate(0, 0, 6),
			expected: CollectionPartial,
		},
		{
			name:     "overpayment is still paid",
			current:  CollectionPartial,
			total:    2800,
			paid:     3000,
			now:      due,
			expected: CollectionPaid,
		},
		{
			name:     "cancelled is terminal",
			current:  CollectionCancelled,
			total:    2800,
			paid:     2800,
			now:      due,
			expected: CollectionCancelled,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(tc.current, tc.total, tc.discount, tc.lateFee, tc.paid, due, tc.now)
			if got != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestRecalculate(t *testing.T) {
	now := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	fc := FeeCollection{
		TotalAmount:    2800,
		DiscountAmount: 300,
		PaidAmount:     1000,
		DueDate:        time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		Status:         CollectionPending,
	}

	fc.Recalculate(now)
	if fc.DueAmount != 1500 {
		t.Fatalf("expected due 1500, got %v", fc.DueAmount)
	}
	if fc.Status != CollectionPartial {
		t.Fatalf("expected partial, got %s", fc.Status)
	}

	// Recomputing from the same amounts must not change anything.
	fc.Recalculate(now)
	if fc.DueAmount != 1500 || fc.Status != CollectionPartial {
		t.Fatalf("recalculate is not idempotent: due=%v status=%s", fc.DueAmount, fc.Status)
	}
}

func TestRecalculatePaidForcesZeroDue(t *testing.T) {
	fc := FeeCollection{
		TotalAmount: 2800,
		PaidAmount:  3000,
		DueDate:     time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		Status:      CollectionPartial,
	}

	fc.Recalculate(time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC))
	if fc.Status != CollectionPaid {
		t.Fatalf("expected paid, got %s", fc.Status)
	}
	if fc.DueAmount != 0 {
		t.Fatalf("expected zero due for paid collection, got %v", fc.DueAmount)
	}
}

func TestActivePaymentTotal(t *testing.T) {
	entries := []PaymentEntry{
		{Amount: 1000, Status: EntryActive},
		{Amount: 500, Status: EntryCancelled},
		{Amount: 800, Status: EntryActive},
	}

	if got := ActivePaymentTotal(entries); got != 1800 {
		t.Fatalf("expected 1800, got %v", got)
	}
	if got := ActivePaymentTotal(nil); got != 0 {
		t.Fatalf("expected 0 for no entries, got %v", got)
	}
}

func TestAdjustmentPolicyAmountOn(t *testing.T) {
	tests := []struct {
		name     string
		policy   AdjustmentPolicy
		base     float64
		expected float64
	}{
		{
			name:     "disabled policy",
			policy:   AdjustmentPolicy{Type: "fixed", Value: 100},
			base:     2800,
			expected: 0,
		},
		{
			name:     "fixed amount",
			policy:   AdjustmentPolicy{Enabled: true, Type: "fixed", Value: 100},
			base:     2800,
			expected: 100,
		},
		{
			name:     "percentage",
			policy:   AdjustmentPolicy{Enabled: true, Type: "percentage", Value: 10},
			base:     5000,
			expected: 500,
		},
		{
			name:     "zero value yields nothing",
			policy:   AdjustmentPolicy{Enabled: true, Type: "fixed"},
			base:     2800,
			expected: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.AmountOn(tc.base); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestFeeComponentListTotal(t *testing.T) {
	components := FeeComponentList{
		{Category: "tuition", Amount: 2500},
		{Category: "activities", Amount: 300},
	}
	if got := components.Total(); got != 2800 {
		t.Fatalf("expected 2800, got %v", got)
	}
}

func TestIsValidPaymentMethod(t *testing.T) {
	for _, m := range []string{"cash", "cheque", "card", "transfer", "upi", "online"} {
		if !IsValidPaymentMethod(m) {
			t.Fatalf("expected %s to be valid", m)
		}
	}
	if IsValidPaymentMethod("barter") {
		t.Fatalf("expected barter to be invalid")
	}
}

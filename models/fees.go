package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Fee collection statuses
const (
	CollectionPending   = "pending"
	CollectionPartial   = "partial"
	CollectionPaid      = "paid"
	CollectionOverdue   = "overdue"
	CollectionCancelled = "cancelled"
)

// Fee receipt statuses
const (
	ReceiptActive    = "active"
	ReceiptCancelled = "cancelled"
)

// Payment entry statuses
const (
	EntryActive    = "active"
	EntryCancelled = "cancelled"
)

// Payment entry sources. Every paid amount on a collection is backed by exactly
// one entry, whether it arrived ad-hoc or through a numbered receipt.
const (
	EntrySourceAdhoc   = "adhoc"
	EntrySourceReceipt = "receipt"
)

// Billing frequencies
const (
	FrequencyOneTime = "one-time"
	FrequencyMonthly = "monthly"
	FrequencyTerm    = "term"
	FrequencyAnnual  = "annual"
)

// FeeComponent is one named line of an itemized fee structure.
type FeeComponent struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// FeeComponentList is stored as a JSON column.
type FeeComponentList []FeeComponent

func (l FeeComponentList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *FeeComponentList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, l)
}

// Total sums the component amounts.
func (l FeeComponentList) Total() float64 {
	var sum float64
	for _, c := range l {
		sum += c.Amount
	}
	return sum
}

// AdjustmentPolicy describes a fixed or percentage adjustment (discount or late fee).
type AdjustmentPolicy struct {
	Enabled   bool    `json:"enabled"`
	Type      string  `json:"type" gorm:"size:20"` // fixed, percentage
	Value     float64 `json:"value"`
	GraceDays int     `json:"grace_days"`
}

// AmountOn resolves the policy against a base amount. Disabled policies yield 0.
func (p AdjustmentPolicy) AmountOn(base float64) float64 {
	if !p.Enabled || p.Value <= 0 {
		return 0
	}
	if p.Type == "percentage" {
		return base * p.Value / 100
	}
	return p.Value
}

// FeeStructure is a reusable billing template scoped to a school, optionally to
// one class and one academic year.
type FeeStructure struct {
	BaseModel
	SchoolID     uint             `json:"school_id" gorm:"not null;uniqueIndex:idx_structure_identity"`
	Name         string           `json:"name" gorm:"size:255;not null;uniqueIndex:idx_structure_identity"`
	ClassID      *uint            `json:"class_id" gorm:"uniqueIndex:idx_structure_identity"`
	AcademicYear string           `json:"academic_year" gorm:"size:20;not null;uniqueIndex:idx_structure_identity"`
	Category     string           `json:"category" gorm:"size:100"`
	Amount       float64          `json:"amount" gorm:"type:decimal(12,2);default:0"`
	Components   FeeComponentList `json:"components" gorm:"type:json"`
	TotalAmount  float64          `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	Frequency    string           `json:"frequency" gorm:"size:20;not null;default:'one-time';type:enum('one-time','monthly','term','annual')"`
	DueDay       int              `json:"due_day" gorm:"default:10"`
	LateFee      AdjustmentPolicy `json:"late_fee" gorm:"embedded;embeddedPrefix:late_fee_"`
	Discount     AdjustmentPolicy `json:"discount" gorm:"embedded;embeddedPrefix:discount_"`
	Status       string           `json:"status" gorm:"size:20;not null;default:'active';type:enum('active','inactive')"` // active, inactive
	CreatedByID  uint             `json:"created_by_id"`

	// Relationships
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Class  *Class `json:"class,omitempty" gorm:"foreignKey:ClassID"`
}

// FeeCollection is one student's billable obligation for one structure and
// period. It owns the running balance; the amount fields are derived from the
// payment entries and written back on every mutation.
type FeeCollection struct {
	BaseModel
	SchoolID       uint   `json:"school_id" gorm:"not null;index"`
	StudentID      uint   `json:"student_id" gorm:"not null;index"`
	FeeStructureID uint   `json:"fee_structure_id" gorm:"not null;index"`
	AcademicYear   string `json:"academic_year" gorm:"size:20;not null"`
	Month          *int   `json:"month"` // 1-12, nil for non-monthly obligations

	TotalAmount    float64 `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	DiscountAmount float64 `json:"discount_amount" gorm:"type:decimal(12,2);default:0"`
	LateFeeAmount  float64 `json:"late_fee_amount" gorm:"type:decimal(12,2);default:0"`
	PaidAmount     float64 `json:"paid_amount" gorm:"type:decimal(12,2);default:0"`
	DueAmount      float64 `json:"due_amount" gorm:"type:decimal(12,2);not null"`

	DueDate time.Time `json:"due_date" gorm:"not null;index"`
	Status  string    `json:"status" gorm:"size:20;not null;default:'pending';index;type:enum('pending','partial','paid','overdue','cancelled')"`
	Remarks string    `json:"remarks" gorm:"type:text"`

	// Optimistic concurrency token. Payment application and reversal update the
	// row conditionally on this value and retry on conflict.
	Version uint `json:"version" gorm:"not null;default:1"`

	CreatedByID uint `json:"created_by_id"`

	// Relationships
	School       School         `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Student      Student        `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	FeeStructure FeeStructure   `json:"fee_structure,omitempty" gorm:"foreignKey:FeeStructureID"`
	Payments     []PaymentEntry `json:"payments,omitempty" gorm:"foreignKey:FeeCollectionID"`
}

// PaymentEntry is the single internal ledger-entry type. Ad-hoc payments and
// receipt-backed payments both become entries; PaidAmount is always the sum of
// active entries, never tracked independently.
type PaymentEntry struct {
	BaseModel
	FeeCollectionID uint       `json:"fee_collection_id" gorm:"not null;index"`
	SchoolID        uint       `json:"school_id" gorm:"not null;index"`
	Amount          float64    `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentDate     time.Time  `json:"payment_date" gorm:"not null"`
	PaymentMethod   string     `json:"payment_method" gorm:"size:50;not null"`
	TransactionRef  string     `json:"transaction_ref" gorm:"size:255"`
	CollectedByID   uint       `json:"collected_by_id"`
	Source          string     `json:"source" gorm:"size:20;not null;default:'adhoc';type:enum('adhoc','receipt')"` // adhoc, receipt
	ReceiptID       *uint      `json:"receipt_id" gorm:"index"`
	Status          string     `json:"status" gorm:"size:20;not null;default:'active';type:enum('active','cancelled')"` // active, cancelled
	CancelledAt     *time.Time `json:"cancelled_at"`
	ImportUID       string     `json:"import_uid,omitempty" gorm:"size:255;index"` // dedup key for spreadsheet imports

	// Relationships
	FeeCollection FeeCollection `json:"fee_collection,omitempty" gorm:"foreignKey:FeeCollectionID"`
}

// FeeReceipt is the immutable, numbered record of one payment event.
type FeeReceipt struct {
	BaseModel
	ReceiptNumber   string `json:"receipt_number" gorm:"size:50;not null;uniqueIndex"`
	SchoolID        uint   `json:"school_id" gorm:"not null;index"`
	StudentID       uint   `json:"student_id" gorm:"not null;index"`
	FeeCollectionID uint   `json:"fee_collection_id" gorm:"not null;index"`
	FeeStructureID  uint   `json:"fee_structure_id" gorm:"not null"`
	AcademicYear    string `json:"academic_year" gorm:"size:20;not null"`

	Amount         float64    `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentDate    time.Time  `json:"payment_date" gorm:"not null;index"`
	PaymentMethod  string     `json:"payment_method" gorm:"size:50;not null;index"`
	TransactionRef string     `json:"transaction_ref" gorm:"size:255"`
	ChequeNumber   string     `json:"cheque_number" gorm:"size:100"`
	ChequeDate     *time.Time `json:"cheque_date"`
	BankName       string     `json:"bank_name" gorm:"size:255"`
	AttachmentURL  string     `json:"attachment_url" gorm:"size:500"`

	Status             string     `json:"status" gorm:"size:20;not null;default:'active';index;type:enum('active','cancelled')"` // active, cancelled
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancelledByID      *uint      `json:"cancelled_by_id"`
	CancellationReason string     `json:"cancellation_reason" gorm:"type:text"`

	CreatedByID uint `json:"created_by_id"`

	// Relationships
	School        School        `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Student       Student       `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	FeeCollection FeeCollection `json:"fee_collection,omitempty" gorm:"foreignKey:FeeCollectionID"`
	FeeStructure  FeeStructure  `json:"fee_structure,omitempty" gorm:"foreignKey:FeeStructureID"`
}

// FinalAmount is the obligation after discount and late fee.
func (fc *FeeCollection) FinalAmount() float64 {
	return fc.TotalAmount - fc.DiscountAmount + fc.LateFeeAmount
}

// DeriveStatus computes the status from the amount fields and due date. It is a
// pure function of its inputs; cancelled is terminal and never derived away.
func DeriveStatus(current string, totalAmount, discountAmount, lateFeeAmount, paidAmount float64, dueDate, now time.Time) string {
	if current == CollectionCancelled {
		return CollectionCancelled
	}
	final := totalAmount - discountAmount + lateFeeAmount
	switch {
	case paidAmount >= final:
		return CollectionPaid
	case paidAmount > 0:
		return CollectionPartial
	case now.After(dueDate):
		return CollectionOverdue
	default:
		return CollectionPending
	}
}

// Recalculate rewrites DueAmount and Status from the amount fields. Called
// after every mutation; recomputing twice from the same amounts is a no-op.
func (fc *FeeCollection) Recalculate(now time.Time) {
	due := fc.FinalAmount() - fc.PaidAmount
	if due < 0 {
		due = 0
	}
	fc.DueAmount = due
	fc.Status = DeriveStatus(fc.Status, fc.TotalAmount, fc.DiscountAmount, fc.LateFeeAmount, fc.PaidAmount, fc.DueDate, now)
	if fc.Status == CollectionPaid {
		fc.DueAmount = 0
	}
}

// ActivePaymentTotal sums the active entries. The invariant is
// PaidAmount == ActivePaymentTotal(entries) at all times.
func ActivePaymentTotal(entries []PaymentEntry) float64 {
	var sum float64
	for _, e := range entries {
		if e.Status == EntryActive {
			sum += e.Amount
		}
	}
	return sum
}

// IsValidPaymentMethod checks if a payment method is supported
func IsValidPaymentMethod(method string) bool {
	validMethods := []string{"cash", "cheque", "card", "transfer", "upi", "online"}
	for _, m := range validMethods {
		if method == m {
			return true
		}
	}
	return false
}

// IsValidFrequency checks if a billing frequency is supported
func IsValidFrequency(freq string) bool {
	validFrequencies := []string{FrequencyOneTime, FrequencyMonthly, FrequencyTerm, FrequencyAnnual}
	for _, f := range validFrequencies {
		if freq == f {
			return true
		}
	}
	return false
}

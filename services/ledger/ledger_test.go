package ledger

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schoolledger_go/models"
)

// The ledger schema, written out by hand because the model tags carry MySQL
// column types the sqlite test store does not understand. Column names must
// match what gorm derives from the models.
var testSchema = []string{
	`CREATE TABLE students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		user_id INTEGER, school_id INTEGER, class_id INTEGER,
		admission_no TEXT, first_name TEXT, last_name TEXT,
		date_of_birth DATETIME, gender TEXT, address TEXT,
		parent_name TEXT, parent_phone TEXT, guardian_email TEXT,
		enrollment_date DATETIME, status TEXT DEFAULT 'active'
	)`,
	`CREATE TABLE fee_structures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		school_id INTEGER, name TEXT, class_id INTEGER, academic_year TEXT,
		category TEXT, amount REAL DEFAULT 0, components TEXT, total_amount REAL,
		frequency TEXT, due_day INTEGER,
		late_fee_enabled BOOLEAN, late_fee_type TEXT, late_fee_value REAL, late_fee_grace_days INTEGER,
		discount_enabled BOOLEAN, discount_type TEXT, discount_value REAL, discount_grace_days INTEGER,
		status TEXT, created_by_id INTEGER
	)`,
	`CREATE UNIQUE INDEX idx_structure_identity ON fee_structures (school_id, name, class_id, academic_year)`,
	`CREATE TABLE fee_collections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		school_id INTEGER, student_id INTEGER, fee_structure_id INTEGER,
		academic_year TEXT, month INTEGER,
		total_amount REAL, discount_amount REAL DEFAULT 0, late_fee_amount REAL DEFAULT 0,
		paid_amount REAL DEFAULT 0, due_amount REAL,
		due_date DATETIME, status TEXT DEFAULT 'pending', remarks TEXT,
		version INTEGER DEFAULT 1, created_by_id INTEGER
	)`,
	`CREATE TABLE payment_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		fee_collection_id INTEGER, school_id INTEGER, amount REAL,
		payment_date DATETIME, payment_method TEXT, transaction_ref TEXT,
		collected_by_id INTEGER, source TEXT DEFAULT 'adhoc', receipt_id INTEGER,
		status TEXT DEFAULT 'active', cancelled_at DATETIME, import_uid TEXT
	)`,
	`CREATE TABLE fee_receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		receipt_number TEXT, school_id INTEGER, student_id INTEGER,
		fee_collection_id INTEGER, fee_structure_id INTEGER, academic_year TEXT,
		amount REAL, payment_date DATETIME, payment_method TEXT, transaction_ref TEXT,
		cheque_number TEXT, cheque_date DATETIME, bank_name TEXT, attachment_url TEXT,
		status TEXT DEFAULT 'active', cancelled_at DATETIME, cancelled_by_id INTEGER,
		cancellation_reason TEXT, created_by_id INTEGER
	)`,
	`CREATE UNIQUE INDEX idx_fee_receipts_receipt_number ON fee_receipts (receipt_number)`,
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type testLedger struct {
	svc   *Service
	db    *gorm.DB
	actor Actor
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	db := openTestDB(t)
	return &testLedger{
		svc:   NewServiceWithDB(db),
		db:    db,
		actor: Actor{SchoolID: 1, UserID: 7, Role: "admin"},
	}
}

func (tl *testLedger) seedStudent(t *testing.T) *models.Student {
	t.Helper()
	student := models.Student{
		UserID:      100,
		SchoolID:    tl.actor.SchoolID,
		AdmissionNo: "ADM-0001",
		FirstName:   "Priya",
		LastName:    "Sharma",
		Status:      "active",
	}
	if err := tl.db.Create(&student).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return &student
}

func (tl *testLedger) seedStructure(t *testing.T, amount float64) *models.FeeStructure {
	t.Helper()
	structure, err := tl.svc.CreateStructure(tl.actor, CreateStructureInput{
		Name:         "Tuition",
		AcademicYear: "2026-27",
		Category:     "tuition",
		Amount:       amount,
	})
	if err != nil {
		t.Fatalf("seed structure: %v", err)
	}
	return structure
}

func (tl *testLedger) seedCollection(t *testing.T, amount float64) (*models.Student, *models.FeeCollection) {
	t.Helper()
	student := tl.seedStudent(t)
	structure := tl.seedStructure(t, amount)
	fc, err := tl.svc.CreateCollection(tl.actor, CreateCollectionInput{
		StudentID:      student.ID,
		FeeStructureID: structure.ID,
		AcademicYear:   "2026-27",
		DueDate:        time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("seed collection: %v", err)
	}
	return student, fc
}

func TestReceiptCancelRestoresDue(t *testing.T) {
	tl := newTestLedger(t)
	student, fc := tl.seedCollection(t, 1500)

	receipt, after, err := tl.svc.CreateReceipt(tl.actor, CreateReceiptInput{
		StudentID:       student.ID,
		FeeCollectionID: fc.ID,
		Amount:          600,
		PaymentMethod:   "cash",
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if !strings.HasPrefix(receipt.ReceiptNumber, "RCP-") {
		t.Fatalf("receipt number %q does not carry the RCP prefix", receipt.ReceiptNumber)
	}
	if after.PaidAmount != 600 || after.DueAmount != 900 {
		t.Fatalf("after payment: paid=%.2f due=%.2f, want 600.00/900.00", after.PaidAmount, after.DueAmount)
	}
	if after.Status != models.CollectionPartial {
		t.Fatalf("after payment: status=%q, want partial", after.Status)
	}

	cancelled, err := tl.svc.CancelReceipt(tl.actor, receipt.ID, "posted against the wrong student")
	if err != nil {
		t.Fatalf("cancel receipt: %v", err)
	}
	if cancelled.Status != models.ReceiptCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled receipt: status=%q cancelled_at=%v", cancelled.Status, cancelled.CancelledAt)
	}

	restored, err := tl.svc.GetCollection(tl.actor, fc.ID)
	if err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if restored.PaidAmount != 0 || restored.DueAmount != 1500 {
		t.Fatalf("after cancel: paid=%.2f due=%.2f, want exactly 0.00/1500.00", restored.PaidAmount, restored.DueAmount)
	}
	if restored.Status != models.CollectionPending {
		t.Fatalf("after cancel: status=%q, want pending", restored.Status)
	}
	for _, e := range restored.Payments {
		if e.Status != models.EntryCancelled {
			t.Fatalf("payment entry %d still active after receipt cancellation", e.ID)
		}
	}
}

func TestPaymentExceedingDueRejected(t *testing.T) {
	tl := newTestLedger(t)
	student, fc := tl.seedCollection(t, 1500)

	_, err := tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 1500.01})
	if CodeOf(err) != CodeExceedsDue {
		t.Fatalf("one unit over due: err=%v, want %s", err, CodeExceedsDue)
	}

	_, _, err = tl.svc.CreateReceipt(tl.actor, CreateReceiptInput{
		StudentID:       student.ID,
		FeeCollectionID: fc.ID,
		Amount:          1500.01,
		PaymentMethod:   "cash",
	})
	if CodeOf(err) != CodeExceedsDue {
		t.Fatalf("receipt one unit over due: err=%v, want %s", err, CodeExceedsDue)
	}

	after, err := tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 1500})
	if err != nil {
		t.Fatalf("exact settlement rejected: %v", err)
	}
	if after.Status != models.CollectionPaid || after.DueAmount != 0 {
		t.Fatalf("settled collection: status=%q due=%.2f, want paid/0.00", after.Status, after.DueAmount)
	}

	_, err = tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 0.01})
	if CodeOf(err) != CodeExceedsDue {
		t.Fatalf("payment on settled collection: err=%v, want %s", err, CodeExceedsDue)
	}
}

func TestDuplicateBillingAndRebillAfterCancel(t *testing.T) {
	tl := newTestLedger(t)
	student, fc := tl.seedCollection(t, 1500)

	_, err := tl.svc.CreateCollection(tl.actor, CreateCollectionInput{
		StudentID:      student.ID,
		FeeStructureID: fc.FeeStructureID,
		AcademicYear:   fc.AcademicYear,
		DueDate:        time.Now().AddDate(0, 1, 0),
	})
	if CodeOf(err) != CodeDuplicateBilling {
		t.Fatalf("rebilling a live obligation: err=%v, want %s", err, CodeDuplicateBilling)
	}

	if _, err := tl.svc.CancelCollection(tl.actor, fc.ID, "billed in error"); err != nil {
		t.Fatalf("cancel collection: %v", err)
	}

	rebilled, err := tl.svc.CreateCollection(tl.actor, CreateCollectionInput{
		StudentID:      student.ID,
		FeeStructureID: fc.FeeStructureID,
		AcademicYear:   fc.AcademicYear,
		DueDate:        time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("rebill after cancel: %v", err)
	}
	if rebilled.ID == fc.ID || rebilled.Status != models.CollectionPending {
		t.Fatalf("rebilled collection: id=%d status=%q", rebilled.ID, rebilled.Status)
	}
}

func TestCancelledCollectionRejectsMutations(t *testing.T) {
	tl := newTestLedger(t)
	student, fc := tl.seedCollection(t, 1500)

	if _, err := tl.svc.CancelCollection(tl.actor, fc.ID, "duplicate of another bill"); err != nil {
		t.Fatalf("cancel collection: %v", err)
	}

	_, err := tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 100})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("payment on cancelled collection: err=%v, want %s", err, CodeInvalidState)
	}

	_, _, err = tl.svc.CreateReceipt(tl.actor, CreateReceiptInput{
		StudentID:       student.ID,
		FeeCollectionID: fc.ID,
		Amount:          100,
		PaymentMethod:   "cash",
	})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("receipt on cancelled collection: err=%v, want %s", err, CodeInvalidState)
	}

	_, err = tl.svc.CancelCollection(tl.actor, fc.ID, "again")
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("double cancel: err=%v, want %s", err, CodeInvalidState)
	}
}

func TestCancelReceiptTwiceConflicts(t *testing.T) {
	tl := newTestLedger(t)
	student, fc := tl.seedCollection(t, 1500)

	receipt, _, err := tl.svc.CreateReceipt(tl.actor, CreateReceiptInput{
		StudentID:       student.ID,
		FeeCollectionID: fc.ID,
		Amount:          600,
		PaymentMethod:   "cash",
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	if _, err := tl.svc.CancelReceipt(tl.actor, receipt.ID, "wrong amount keyed in"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err = tl.svc.CancelReceipt(tl.actor, receipt.ID, "wrong amount keyed in")
	if CodeOf(err) != CodeConflict {
		t.Fatalf("second cancel: err=%v, want %s", err, CodeConflict)
	}
}

func TestDuplicateStructureConflicts(t *testing.T) {
	tl := newTestLedger(t)
	tl.seedStructure(t, 1500)

	_, err := tl.svc.CreateStructure(tl.actor, CreateStructureInput{
		Name:         "Tuition",
		AcademicYear: "2026-27",
		Category:     "tuition",
		Amount:       2000,
	})
	if CodeOf(err) != CodeConflict {
		t.Fatalf("duplicate structure: err=%v, want %s", err, CodeConflict)
	}
}

func TestCollectionStatisticsAveragesPerPayment(t *testing.T) {
	tl := newTestLedger(t)
	_, fc := tl.seedCollection(t, 1500)

	if _, err := tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 500}); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if _, err := tl.svc.AddPayment(tl.actor, fc.ID, PaymentInput{Amount: 1000}); err != nil {
		t.Fatalf("second payment: %v", err)
	}

	stats, err := tl.svc.CollectionStatistics(tl.actor, "2026-27", nil, nil)
	if err != nil {
		t.Fatalf("collection statistics: %v", err)
	}
	if stats.Count != 1 || stats.TotalPaid != 1500 {
		t.Fatalf("stats: count=%d paid=%.2f, want 1/1500.00", stats.Count, stats.TotalPaid)
	}
	// One collection settled in two instalments averages per payment event.
	if stats.AveragePayment != 750 {
		t.Fatalf("average payment %.2f, want 750.00", stats.AveragePayment)
	}
}

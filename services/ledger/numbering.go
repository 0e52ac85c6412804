package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolledger_go/models"
)

// Receipt numbers look like RCP-202608-0042: the school's receipt count for the
// calendar month plus one. The count-then-format scheme can race under
// concurrent creation, so the sequence is best-effort only; the unique index on
// receipt_number is the real guarantee and collisions are retried, eventually
// with a random suffix.
const (
	receiptNumberPrefix   = "RCP"
	maxNumberingAttempts  = 5
	countedNumberAttempts = 2
)

// nextReceiptNumber builds the counted number for the school and month.
func nextReceiptNumber(tx *gorm.DB, schoolID uint, at time.Time) (string, error) {
	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var count int64
	err := tx.Model(&models.FeeReceipt{}).
		Where("school_id = ? AND created_at >= ? AND created_at < ?", schoolID, monthStart, monthEnd).
		Count(&count).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%04d", receiptNumberPrefix, at.Format("200601"), count+1), nil
}

// randomReceiptNumber trades sequence readability for availability once the
// counted path keeps colliding.
func randomReceiptNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", receiptNumberPrefix, at.Format("200601"), suffix)
}

// isDuplicateKey detects a unique-index violation from the store.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// NormalizeReceiptNumber uppercases lookups so RCP numbers match regardless of
// how the caller typed them.
func NormalizeReceiptNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

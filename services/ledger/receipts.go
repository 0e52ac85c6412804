package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"schoolledger_go/database"
	"schoolledger_go/models"
)

// CreateReceiptInput describes one numbered payment event.
type CreateReceiptInput struct {
	StudentID       uint
	FeeCollectionID uint
	Amount          float64
	PaymentDate     time.Time
	PaymentMethod   string
	TransactionRef  string
	ChequeNumber    string
	ChequeDate      *time.Time
	BankName        string
	AttachmentURL   string
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	StudentID     *uint
	PaymentMethod string
	From          *time.Time
	To            *time.Time
	Status        string
}

// ReceiptStats aggregates a school's receipt book.
type ReceiptStats struct {
	Count          int64   `json:"count"`
	CancelledCount int64   `json:"cancelled_count"`
	TotalAmount    float64 `json:"total_amount"`
	AverageAmount  float64 `json:"average_amount"`
}

// CreateReceipt persists a numbered receipt and applies its amount to the
// collection as one unit: if the payment application fails for any reason the
// receipt row never survives. Number collisions are retried with fresh numbers,
// counted first and random-suffixed after that.
func (s *Service) CreateReceipt(actor Actor, in CreateReceiptInput) (*models.FeeReceipt, *models.FeeCollection, error) {
	if in.Amount <= 0 {
		return nil, nil, Validationf("receipt amount must be positive")
	}
	if in.PaymentMethod == "" || !models.IsValidPaymentMethod(in.PaymentMethod) {
		return nil, nil, Validationf("invalid payment method %q", in.PaymentMethod)
	}
	if in.PaymentMethod == "cheque" && strings.TrimSpace(in.ChequeNumber) == "" {
		return nil, nil, Validationf("cheque_number is required for cheque payments")
	}
	paymentDate := in.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	var (
		receipt    *models.FeeReceipt
		collection *models.FeeCollection
	)

	for attempt := 0; attempt < maxNumberingAttempts; attempt++ {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			fc, err := lockCollection(tx, actor.SchoolID, in.FeeCollectionID)
			if err != nil {
				return err
			}
			if fc.Status == models.CollectionCancelled {
				return InvalidStatef("collection %d is cancelled", fc.ID)
			}
			if fc.StudentID != in.StudentID {
				return Validationf("collection %d does not belong to student %d", fc.ID, in.StudentID)
			}
			if in.Amount > fc.DueAmount {
				return ExceedsDuef("receipt of %.2f exceeds due amount %.2f", in.Amount, fc.DueAmount)
			}

			var number string
			if attempt < countedNumberAttempts {
				number, err = nextReceiptNumber(tx, actor.SchoolID, paymentDate)
				if err != nil {
					return err
				}
			} else {
				number = randomReceiptNumber(paymentDate)
			}

			r := models.FeeReceipt{
				ReceiptNumber:   number,
				SchoolID:        actor.SchoolID,
				StudentID:       in.StudentID,
				FeeCollectionID: fc.ID,
				FeeStructureID:  fc.FeeStructureID,
				AcademicYear:    fc.AcademicYear,
				Amount:          in.Amount,
				PaymentDate:     paymentDate,
				PaymentMethod:   in.PaymentMethod,
				TransactionRef:  in.TransactionRef,
				ChequeNumber:    in.ChequeNumber,
				ChequeDate:      in.ChequeDate,
				BankName:        in.BankName,
				AttachmentURL:   in.AttachmentURL,
				Status:          models.ReceiptActive,
				CreatedByID:     actor.UserID,
			}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}

			payment := PaymentInput{
				Amount:         in.Amount,
				PaymentDate:    paymentDate,
				PaymentMethod:  in.PaymentMethod,
				TransactionRef: in.TransactionRef,
			}
			fcAfter, _, err := s.applyPayment(tx, actor, fc.ID, payment, models.EntrySourceReceipt, &r.ID)
			if err != nil {
				return err
			}

			receipt = &r
			collection = fcAfter
			return nil
		})

		switch {
		case err == nil:
			return receipt, collection, nil
		case isDuplicateKey(err):
			continue // fresh number next attempt
		case errors.Is(err, errVersionConflict):
			continue
		default:
			return nil, nil, err
		}
	}

	return nil, nil, NumberingCollisionf("could not allocate a unique receipt number after %d attempts", maxNumberingAttempts)
}

// CancelReceipt marks a receipt cancelled and reverses exactly its amount from
// the collection, in one unit. Already-cancelled receipts are rejected.
func (s *Service) CancelReceipt(actor Actor, id uint, reason string) (*models.FeeReceipt, error) {
	return s.cancelReceiptBy(actor, "id = ?", id, reason)
}

// CancelReceiptByNumber cancels by receipt number (case-insensitive).
func (s *Service) CancelReceiptByNumber(actor Actor, number, reason string) (*models.FeeReceipt, error) {
	return s.cancelReceiptBy(actor, "receipt_number = ?", NormalizeReceiptNumber(number), reason)
}

func (s *Service) cancelReceiptBy(actor Actor, cond string, arg interface{}, reason string) (*models.FeeReceipt, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, Validationf("cancellation reason is required")
	}

	var out *models.FeeReceipt
	err := s.withVersionRetry(func(tx *gorm.DB) error {
		var r models.FeeReceipt
		err := withUpdateLock(tx).
			Where(cond, arg).Where("school_id = ?", actor.SchoolID).
			First(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("receipt not found")
		}
		if err != nil {
			return err
		}
		if r.Status == models.ReceiptCancelled {
			return Conflictf("receipt %s is already cancelled", r.ReceiptNumber)
		}

		now := s.now()
		res := tx.Model(&models.FeeReceipt{}).
			Where("id = ? AND status = ?", r.ID, models.ReceiptActive).
			Updates(map[string]interface{}{
				"status":              models.ReceiptCancelled,
				"cancelled_at":        &now,
				"cancelled_by_id":     actor.UserID,
				"cancellation_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Conflictf("receipt %s is already cancelled", r.ReceiptNumber)
		}

		if _, err := s.reversePayment(tx, actor, r.FeeCollectionID, r.ID, r.Amount); err != nil {
			return err
		}

		r.Status = models.ReceiptCancelled
		r.CancelledAt = &now
		r.CancelledByID = &actor.UserID
		r.CancellationReason = reason
		out = &r
		return nil
	})
	return out, err
}

// GetReceipt fetches one receipt within the actor's school.
func (s *Service) GetReceipt(actor Actor, id uint) (*models.FeeReceipt, error) {
	var r models.FeeReceipt
	err := s.db.Preload("Student").Preload("FeeCollection").Preload("FeeStructure").
		Where("id = ? AND school_id = ?", id, actor.SchoolID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("receipt %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReceiptByNumber looks a receipt up by its number, uppercased first.
func (s *Service) GetReceiptByNumber(actor Actor, number string) (*models.FeeReceipt, error) {
	normalized := NormalizeReceiptNumber(number)
	if normalized == "" {
		return nil, Validationf("receipt number is required")
	}
	var r models.FeeReceipt
	err := s.db.Preload("Student").Preload("FeeCollection").Preload("FeeStructure").
		Where("receipt_number = ? AND school_id = ?", normalized, actor.SchoolID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("receipt %s not found", normalized)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReceipts returns receipts matching the filter, newest first.
func (s *Service) ListReceipts(actor Actor, filter ReceiptFilter) ([]models.FeeReceipt, error) {
	query := s.db.Preload("Student").
		Where("school_id = ?", actor.SchoolID)
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.From != nil {
		query = query.Where("payment_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("payment_date <= ?", *filter.To)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var receipts []models.FeeReceipt
	if err := query.Order("payment_date DESC, id DESC").Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// ReceiptStatistics aggregates the active receipt book, Redis-cached like the
// collection statistics.
func (s *Service) ReceiptStatistics(actor Actor, academicYear string, from, to *time.Time) (*ReceiptStats, error) {
	cacheKey := fmt.Sprintf("fee:stats:receipts:%d:%s", actor.SchoolID, academicYear)
	cacheable := from == nil && to == nil
	if cacheable {
		if cached := receiptStatsFromCache(cacheKey); cached != nil {
			return cached, nil
		}
	}

	base := s.db.Model(&models.FeeReceipt{}).Where("school_id = ?", actor.SchoolID)
	if academicYear != "" {
		base = base.Where("academic_year = ?", academicYear)
	}
	if from != nil {
		base = base.Where("payment_date >= ?", *from)
	}
	if to != nil {
		base = base.Where("payment_date <= ?", *to)
	}

	var stats ReceiptStats
	err := base.Session(&gorm.Session{}).Where("status = ?", models.ReceiptActive).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.ReceiptCancelled).
		Count(&stats.CancelledCount).Error; err != nil {
		return nil, err
	}
	if stats.Count > 0 {
		stats.AverageAmount = stats.TotalAmount / float64(stats.Count)
	}

	if cacheable {
		receiptStatsToCache(cacheKey, &stats)
	}
	return &stats, nil
}

// ReconcileUnappliedReceipts finds active receipts whose payment never reached
// the collection (the detectable partially-applied state) and re-applies them.
// Safe to run repeatedly: an entry either exists or is created exactly once.
func (s *Service) ReconcileUnappliedReceipts() ([]models.FeeReceipt, error) {
	var orphans []models.FeeReceipt
	err := s.db.
		Joins("LEFT JOIN payment_entries ON payment_entries.receipt_id = fee_receipts.id AND payment_entries.deleted_at IS NULL").
		Where("fee_receipts.status = ? AND payment_entries.id IS NULL", models.ReceiptActive).
		Find(&orphans).Error
	if err != nil {
		return nil, err
	}

	var repaired []models.FeeReceipt
	for _, r := range orphans {
		actor := Actor{SchoolID: r.SchoolID, UserID: r.CreatedByID}
		payment := PaymentInput{
			Amount:         r.Amount,
			PaymentDate:    r.PaymentDate,
			PaymentMethod:  r.PaymentMethod,
			TransactionRef: r.TransactionRef,
		}
		receiptID := r.ID
		err := s.withVersionRetry(func(tx *gorm.DB) error {
			// Re-check inside the transaction so concurrent reconcilers stay idempotent.
			var existing int64
			if err := tx.Model(&models.PaymentEntry{}).
				Where("receipt_id = ?", receiptID).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return nil
			}
			_, _, err := s.applyPayment(tx, actor, r.FeeCollectionID, payment, models.EntrySourceReceipt, &receiptID)
			return err
		})
		if err != nil {
			return repaired, PartiallyAppliedf("receipt %s remains uncredited: %v", r.ReceiptNumber, err)
		}
		repaired = append(repaired, r)
	}
	return repaired, nil
}

func receiptStatsFromCache(key string) *ReceiptStats {
	rc := database.GetRedisClient()
	if rc == nil {
		return nil
	}
	raw, err := rc.Get(context.Background(), key).Result()
	if err != nil {
		return nil
	}
	var stats ReceiptStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil
	}
	return &stats
}

func receiptStatsToCache(key string, stats *ReceiptStats) {
	rc := database.GetRedisClient()
	if rc == nil {
		return
	}
	if b, err := json.Marshal(stats); err == nil {
		rc.Set(context.Background(), key, b, 5*time.Minute)
	}
}

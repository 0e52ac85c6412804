package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolledger_go/middleware"
	"schoolledger_go/services/ledger"
)

// CreateFeeCollection bills a student against a fee structure
func (fc *FeeController) CreateFeeCollection(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req struct {
		StudentID      uint       `json:"student_id"`
		FeeStructureID uint       `json:"fee_structure_id"`
		AcademicYear   string     `json:"academic_year"`
		Month          *int       `json:"month"`
		DueDate        *time.Time `json:"due_date"`
		Remarks        string     `json:"remarks"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	in := ledger.CreateCollectionInput{
		StudentID:      req.StudentID,
		FeeStructureID: req.FeeStructureID,
		AcademicYear:   req.AcademicYear,
		Month:          req.Month,
		Remarks:        req.Remarks,
	}
	if req.DueDate != nil {
		in.DueDate = *req.DueDate
	}

	collection, err := fc.Ledger.CreateCollection(actor, in)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "fee_collections", collection.ID, fiber.Map{
		"student_id":   collection.StudentID,
		"total_amount": collection.TotalAmount,
		"due_date":     collection.DueDate,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Fee collection created successfully",
		"fee_collection": collection,
	})
}

// UpdateFeeCollection adjusts due date, discount, late fee or remarks
func (fc *FeeController) UpdateFeeCollection(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req struct {
		DueDate        *time.Time `json:"due_date"`
		DiscountAmount *float64   `json:"discount_amount"`
		LateFeeAmount  *float64   `json:"late_fee_amount"`
		Remarks        *string    `json:"remarks"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	collection, err := fc.Ledger.UpdateCollection(actor, id, ledger.UpdateCollectionInput{
		DueDate:        req.DueDate,
		DiscountAmount: req.DiscountAmount,
		LateFeeAmount:  req.LateFeeAmount,
		Remarks:        req.Remarks,
	})
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "fee_collections", collection.ID, nil)

	return c.JSON(fiber.Map{
		"message":        "Fee collection updated successfully",
		"fee_collection": collection,
	})
}

// CancelFeeCollection voids an obligation with a mandatory reason
func (fc *FeeController) CancelFeeCollection(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	collection, err := fc.Ledger.CancelCollection(actor, id, req.Reason)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "fee_collections", collection.ID, fiber.Map{
		"action": "cancel",
		"reason": req.Reason,
	})

	return c.JSON(fiber.Map{
		"message":        "Fee collection cancelled successfully",
		"fee_collection": collection,
	})
}

// DeleteFeeCollection removes an obligation that has never been paid against
func (fc *FeeController) DeleteFeeCollection(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	if err := fc.Ledger.DeleteCollection(actor, id); err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "DELETE", "fee_collections", id, nil)

	return c.JSON(fiber.Map{
		"message": "Fee collection deleted successfully",
	})
}

// GetFeeCollection returns one obligation with its payment history
func (fc *FeeController) GetFeeCollection(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	collection, err := fc.Ledger.GetCollection(actor, id)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"fee_collection": collection})
}

// AddPayment records an ad-hoc payment against a collection
func (fc *FeeController) AddPayment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req struct {
		Amount         float64    `json:"amount"`
		PaymentDate    *time.Time `json:"payment_date"`
		PaymentMethod  string     `json:"payment_method"`
		TransactionRef string     `json:"transaction_ref"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	in := ledger.PaymentInput{
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		TransactionRef: req.TransactionRef,
	}
	if req.PaymentDate != nil {
		in.PaymentDate = *req.PaymentDate
	}

	collection, err := fc.Ledger.AddPayment(actor, id, in)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "fee_payments", collection.ID, fiber.Map{
		"amount":     req.Amount,
		"method":     req.PaymentMethod,
		"due_amount": collection.DueAmount,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Payment recorded successfully",
		"fee_collection": collection,
	})
}

// GetDueCollections lists collections with money still owed
func (fc *FeeController) GetDueCollections(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	collections, err := fc.Ledger.ListDue(actor, c.Query("academic_year"), queryUint(c, "student_id"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"fee_collections": collections,
		"total":           len(collections),
	})
}

// GetOverdueCollections lists collections past their due date
func (fc *FeeController) GetOverdueCollections(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	collections, err := fc.Ledger.ListOverdue(actor, c.Query("academic_year"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"fee_collections": collections,
		"total":           len(collections),
	})
}

// GetCollectionStats aggregates billed/paid/due totals for the school
func (fc *FeeController) GetCollectionStats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	stats, err := fc.Ledger.CollectionStatistics(actor, c.Query("academic_year"), queryDate(c, "from"), queryDate(c, "to"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"statistics": stats})
}

package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolledger_go/middleware"
	"schoolledger_go/models"
	"schoolledger_go/services/ledger"
)

type feeStructureRequest struct {
	Name         string                  `json:"name"`
	ClassID      *uint                   `json:"class_id"`
	AcademicYear string                  `json:"academic_year"`
	Category     string                  `json:"category"`
	Amount       float64                 `json:"amount"`
	Components   models.FeeComponentList `json:"components"`
	Frequency    string                  `json:"frequency"`
	DueDay       int                     `json:"due_day"`
	LateFee      models.AdjustmentPolicy `json:"late_fee"`
	Discount     models.AdjustmentPolicy `json:"discount"`
}

// CreateFeeStructure defines a new fee template for the school
func (fc *FeeController) CreateFeeStructure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req feeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	structure, err := fc.Ledger.CreateStructure(actor, ledger.CreateStructureInput{
		Name:         req.Name,
		ClassID:      req.ClassID,
		AcademicYear: req.AcademicYear,
		Category:     req.Category,
		Amount:       req.Amount,
		Components:   req.Components,
		Frequency:    req.Frequency,
		DueDay:       req.DueDay,
		LateFee:      req.LateFee,
		Discount:     req.Discount,
	})
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "fee_structures", structure.ID, fiber.Map{
		"name":          structure.Name,
		"academic_year": structure.AcademicYear,
		"total_amount":  structure.TotalAmount,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Fee structure created successfully",
		"fee_structure": structure,
	})
}

// UpdateFeeStructure modifies an existing fee template
func (fc *FeeController) UpdateFeeStructure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req struct {
		Name       *string                  `json:"name"`
		Category   *string                  `json:"category"`
		Amount     *float64                 `json:"amount"`
		Components *models.FeeComponentList `json:"components"`
		Frequency  *string                  `json:"frequency"`
		DueDay     *int                     `json:"due_day"`
		LateFee    *models.AdjustmentPolicy `json:"late_fee"`
		Discount   *models.AdjustmentPolicy `json:"discount"`
		Status     *string                  `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	structure, err := fc.Ledger.UpdateStructure(actor, id, ledger.UpdateStructureInput{
		Name:       req.Name,
		Category:   req.Category,
		Amount:     req.Amount,
		Components: req.Components,
		Frequency:  req.Frequency,
		DueDay:     req.DueDay,
		LateFee:    req.LateFee,
		Discount:   req.Discount,
		Status:     req.Status,
	})
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "fee_structures", structure.ID, fiber.Map{
		"name": structure.Name,
	})

	return c.JSON(fiber.Map{
		"message":       "Fee structure updated successfully",
		"fee_structure": structure,
	})
}

// DeactivateFeeStructure retires a template without touching existing collections
func (fc *FeeController) DeactivateFeeStructure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	structure, err := fc.Ledger.DeactivateStructure(actor, id)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "fee_structures", structure.ID, fiber.Map{
		"action": "deactivate",
	})

	return c.JSON(fiber.Map{
		"message":       "Fee structure deactivated successfully",
		"fee_structure": structure,
	})
}

// DeleteFeeStructure removes a template that no collection references
func (fc *FeeController) DeleteFeeStructure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	if err := fc.Ledger.DeleteStructure(actor, id); err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "DELETE", "fee_structures", id, nil)

	return c.JSON(fiber.Map{
		"message": "Fee structure deleted successfully",
	})
}

// GetFeeStructure returns one fee template
func (fc *FeeController) GetFeeStructure(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	structure, err := fc.Ledger.GetStructure(actor, id)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"fee_structure": structure})
}

// GetFeeStructures lists fee templates, filterable by year, class and status
func (fc *FeeController) GetFeeStructures(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	structures, err := fc.Ledger.ListStructures(actor, c.Query("academic_year"), queryUint(c, "class_id"), c.Query("status"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"fee_structures": structures,
		"total":          len(structures),
		"fetched_at":     time.Now(),
	})
}

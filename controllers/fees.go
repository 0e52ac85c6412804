package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolledger_go/middleware"
	"schoolledger_go/services/ledger"
)

// FeeController exposes the fee ledger over HTTP. All handlers resolve the
// acting user from the JWT claims, so every operation is school-scoped.
type FeeController struct {
	Ledger *ledger.Service
}

func NewFeeController() *FeeController {
	return &FeeController{Ledger: ledger.NewService()}
}

func actorFrom(c *fiber.Ctx) (ledger.Actor, error) {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return ledger.Actor{}, err
	}
	return ledger.Actor{
		SchoolID: claims.SchoolID,
		UserID:   claims.UserID,
		Role:     claims.Role,
	}, nil
}

// ledgerError renders a ledger error with its mapped status and machine code.
func ledgerError(c *fiber.Ctx, err error) error {
	return c.Status(ledger.HTTPStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  ledger.CodeOf(err),
	})
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID format")
	}
	return uint(id), nil
}

func queryUint(c *fiber.Ctx, key string) *uint {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	u := uint(v)
	return &u
}

func queryDate(c *fiber.Ctx, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

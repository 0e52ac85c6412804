package controllers

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolledger_go/middleware"
	"schoolledger_go/services"
)

type ReceiptArchiveController struct {
	Archive *services.ReceiptArchiveService
}

func NewReceiptArchiveController() *ReceiptArchiveController {
	return &ReceiptArchiveController{Archive: services.NewReceiptArchiveService()}
}

// GetReceiptArchives lists the school's archived receipt books
func (rac *ReceiptArchiveController) GetReceiptArchives(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	archives, err := rac.Archive.GetArchives(claims.SchoolID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch archives",
		})
	}

	return c.JSON(fiber.Map{
		"archives": archives,
		"total":    len(archives),
	})
}

// DownloadReceiptArchive streams one archived receipt book as a zip
func (rac *ReceiptArchiveController) DownloadReceiptArchive(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid archive ID",
		})
	}

	body, fileName, err := rac.Archive.DownloadArchive(claims.SchoolID, uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Archive not found",
		})
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read archive",
		})
	}

	middleware.LogActivity(c, "READ", "receipt_archives", uint(id), fiber.Map{
		"file_name": fileName,
	})

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Send(data)
}

// TriggerReceiptArchive archives one closed month on demand
func (rac *ReceiptArchiveController) TriggerReceiptArchive(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid year or month",
		})
	}

	if err := rac.Archive.ArchiveReceiptBook(claims.SchoolID, req.Year, time.Month(req.Month)); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "CREATE", "receipt_archives", claims.SchoolID, fiber.Map{
		"year":  req.Year,
		"month": req.Month,
	})

	return c.JSON(fiber.Map{
		"message": "Receipt book archived successfully",
	})
}

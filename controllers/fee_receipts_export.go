package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"schoolledger_go/middleware"
	"schoolledger_go/services/ledger"
	"schoolledger_go/utils"
)

var receiptExportHeader = []string{
	"Receipt Number", "Admission No", "Student Name", "Academic Year",
	"Amount", "Payment Date", "Payment Method", "Transaction Ref", "Status",
}

// ExportFeeReceipts streams the school's receipt book for a date range as xlsx
func (fc *FeeController) ExportFeeReceipts(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	receipts, err := fc.Ledger.ListReceipts(actor, ledger.ReceiptFilter{
		StudentID:     queryUint(c, "student_id"),
		PaymentMethod: c.Query("payment_method"),
		From:          queryDate(c, "from"),
		To:            queryDate(c, "to"),
		Status:        c.Query("status"),
	})
	if err != nil {
		return ledgerError(c, err)
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range receiptExportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, r := range receipts {
		dto := utils.ToReceiptDTO(r)
		values := []interface{}{
			dto.ReceiptNumber,
			dto.AdmissionNo,
			dto.StudentName,
			dto.AcademicYear,
			dto.Amount,
			dto.PaymentDate.Format("2006-01-02"),
			dto.PaymentMethod,
			r.TransactionRef,
			dto.Status,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build export",
		})
	}

	middleware.LogActivity(c, "READ", "fee_receipts_export", 0, fiber.Map{
		"rows": len(receipts),
	})

	fileName := fmt.Sprintf("receipts_%s.xlsx", time.Now().Format("20060102"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Send(buf.Bytes())
}

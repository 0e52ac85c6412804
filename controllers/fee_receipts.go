package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"schoolledger_go/database"
	"schoolledger_go/middleware"
	"schoolledger_go/models"
	"schoolledger_go/services/ledger"
	"schoolledger_go/services/notifications"
	"schoolledger_go/storage"
	"schoolledger_go/utils"
)

// CreateFeeReceipt issues a numbered receipt and credits the collection
func (fc *FeeController) CreateFeeReceipt(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req struct {
		StudentID       uint       `json:"student_id"`
		FeeCollectionID uint       `json:"fee_collection_id"`
		Amount          float64    `json:"amount"`
		PaymentDate     *time.Time `json:"payment_date"`
		PaymentMethod   string     `json:"payment_method"`
		TransactionRef  string     `json:"transaction_ref"`
		ChequeNumber    string     `json:"cheque_number"`
		ChequeDate      *time.Time `json:"cheque_date"`
		BankName        string     `json:"bank_name"`
		AttachmentURL   string     `json:"attachment_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	in := ledger.CreateReceiptInput{
		StudentID:       req.StudentID,
		FeeCollectionID: req.FeeCollectionID,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		TransactionRef:  req.TransactionRef,
		ChequeNumber:    req.ChequeNumber,
		ChequeDate:      req.ChequeDate,
		BankName:        req.BankName,
		AttachmentURL:   req.AttachmentURL,
	}
	if req.PaymentDate != nil {
		in.PaymentDate = *req.PaymentDate
	}

	receipt, collection, err := fc.Ledger.CreateReceipt(actor, in)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "fee_receipts", receipt.ID, fiber.Map{
		"receipt_number": receipt.ReceiptNumber,
		"amount":         receipt.Amount,
		"student_id":     receipt.StudentID,
	})

	fc.notifyReceiptEvent(actor.SchoolID, receipt.StudentID,
		"Payment received",
		fmt.Sprintf("Receipt %s issued for %.2f", receipt.ReceiptNumber, receipt.Amount),
		"info",
		fiber.Map{
			"action":            "open_receipt",
			"receipt_id":        receipt.ID,
			"fee_collection_id": receipt.FeeCollectionID,
		})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Receipt created successfully",
		"receipt":        receipt,
		"fee_collection": collection,
	})
}

// UploadReceiptAttachment stores a payment proof (cheque scan, transfer slip)
// and returns its URL for use in a subsequent receipt creation
func (fc *FeeController) UploadReceiptAttachment(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("attachment")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Attachment file is required",
		})
	}
	if !utils.IsValidFileExtension(file.Filename, utils.ReceiptAttachmentExtensions) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File type not allowed",
		})
	}

	storageService, err := storage.NewStorageService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Storage service unavailable",
		})
	}

	url, err := storageService.UploadFile(file, "receipts/attachments", claims.SchoolID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload attachment",
		})
	}

	middleware.LogActivity(c, "CREATE", "receipt_attachments", claims.UserID, fiber.Map{
		"file_name": file.Filename,
		"url":       url,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Attachment uploaded successfully",
		"attachment_url": url,
	})
}

// CancelFeeReceipt voids a receipt and reverses its payment
func (fc *FeeController) CancelFeeReceipt(c *fiber.Ctx) error {
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

	receipt, err := fc.Ledger.CancelReceipt(actor, id, req.Reason)
	if err != nil {
		return ledgerError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "fee_receipts", receipt.ID, fiber.Map{
		"action":         "cancel",
		"receipt_number": receipt.ReceiptNumber,
		"reason":         req.Reason,
	})

	fc.notifyReceiptEvent(actor.SchoolID, receipt.StudentID,
		"Receipt cancelled",
		fmt.Sprintf("Receipt %s for %.2f was cancelled: %s", receipt.ReceiptNumber, receipt.Amount, req.Reason),
		"warning",
		fiber.Map{
			"action":            "open_fee_collection",
			"receipt_id":        receipt.ID,
			"fee_collection_id": receipt.FeeCollectionID,
		})

	return c.JSON(fiber.Map{
		"message": "Receipt cancelled successfully",
		"receipt": receipt,
	})
}

// notifyReceiptEvent fans a receipt event out to the paying student and the
// school's owner/admin users. Delivery is best-effort; a failed queue never
// fails the request.
func (fc *FeeController) notifyReceiptEvent(schoolID, studentID uint, title, message, typ string, data fiber.Map) {
	var student models.Student
	if err := database.DB.First(&student, studentID).Error; err != nil {
		logrus.WithError(err).Warn("Receipt notification: student lookup failed")
		return
	}

	var staffIDs []uint
	err := database.DB.Model(&models.User{}).
		Where("school_id = ? AND role IN ? AND status = ?", schoolID, []string{"owner", "admin"}, "active").
		Pluck("id", &staffIDs).Error
	if err != nil {
		logrus.WithError(err).Warn("Receipt notification: staff lookup failed")
		return
	}

	recipients := combineRecipientIDs(student.UserID, staffIDs)
	if len(recipients) == 0 {
		return
	}
	n := notifications.QueuedWithData(title, message, typ, data)
	if err := notifications.NewService().EnqueueOrCreate(recipients, n); err != nil {
		logrus.WithError(err).Warn("Failed to queue receipt notification")
	}
}

// combineRecipientIDs merges the student's user with the staff list, dropping
// zero and duplicate IDs. Order is student first, then staff as listed.
func combineRecipientIDs(studentUserID uint, staffIDs []uint) []uint {
	seen := make(map[uint]bool, len(staffIDs)+1)
	out := make([]uint, 0, len(staffIDs)+1)
	for _, id := range append([]uint{studentUserID}, staffIDs...) {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// GetFeeReceipt returns one receipt by primary key
func (fc *FeeController) GetFeeReceipt(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	receipt, err := fc.Ledger.GetReceipt(actor, id)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"receipt": receipt})
}

// GetFeeReceiptByNumber looks a receipt up by its printed number
func (fc *FeeController) GetFeeReceiptByNumber(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	receipt, err := fc.Ledger.GetReceiptByNumber(actor, c.Params("number"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"receipt": receipt})
}

// GetFeeReceipts lists receipts with optional student/method/date filters
func (fc *FeeController) GetFeeReceipts(c *fiber.Ctx) error {
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

	return c.JSON(fiber.Map{
		"receipts": receipts,
		"total":    len(receipts),
	})
}

// GetStudentReceipts lists all receipts for one student
func (fc *FeeController) GetStudentReceipts(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	studentID, err := paramID(c)
	if err != nil {
		return err
	}

	receipts, err := fc.Ledger.ListReceipts(actor, ledger.ReceiptFilter{StudentID: &studentID})
	if err != nil {
		return ledgerError(c, err)
	}

	dtos := make([]utils.ReceiptDTO, 0, len(receipts))
	for _, r := range receipts {
		dtos = append(dtos, utils.ToReceiptDTO(r))
	}

	return c.JSON(fiber.Map{
		"receipts": dtos,
		"total":    len(dtos),
	})
}

// GetReceiptStats aggregates the school's receipt book
func (fc *FeeController) GetReceiptStats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	stats, err := fc.Ledger.ReceiptStatistics(actor, c.Query("academic_year"), queryDate(c, "from"), queryDate(c, "to"))
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"statistics": stats})
}

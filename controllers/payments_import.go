package controllers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"schoolledger_go/database"
	"schoolledger_go/middleware"
	"schoolledger_go/models"
	"schoolledger_go/services/ledger"
)

// PaymentsImportController bulk-loads historical payments from a CSV or XLSX
// export. Rows are matched to collections by student admission number and fee
// structure name, and deduplicated by a deterministic row UID so re-running
// the same file is safe.
type PaymentsImportController struct {
	Ledger *ledger.Service
}

func NewPaymentsImportController() *PaymentsImportController {
	return &PaymentsImportController{Ledger: ledger.NewService()}
}

// POST /api/import/payments
// Multipart form with file field: file
func (pc *PaymentsImportController) Import(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}
	actor := ledger.Actor{SchoolID: claims.SchoolID, UserID: claims.UserID, Role: claims.Role}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	var rows [][]string
	filename := strings.ToLower(fh.Filename)
	if strings.HasSuffix(filename, ".csv") {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
		}
		defer f.Close()
		rows, err = readCSVRows(f)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	} else if strings.HasSuffix(filename, ".xlsx") || strings.HasSuffix(filename, ".xls") {
		// buffer to temp path for excelize
		tmpDir, _ := os.MkdirTemp("", "sl-payments-")
		tmp := filepath.Join(tmpDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitizeUploadName(fh.Filename)))
		if err := c.SaveFile(fh, tmp); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to buffer upload"})
		}
		var rerr error
		rows, rerr = readXLSXRows(tmp)
		_ = os.Remove(tmp)
		if rerr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": rerr.Error()})
		}
	} else {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported file type (csv,xlsx)"})
	}

	if len(rows) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is empty"})
	}

	header := rows[0]
	col := headerIndexes(header)
	for _, required := range []string{"Admission No", "Fee Structure", "Amount", "Payment Date"} {
		if _, ok := col[required]; !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing column: " + required})
		}
	}

	inserted := 0
	skipped := 0
	duplicates := 0
	errorsList := []string{}

	for i := 1; i < len(rows); i++ {
		r := rows[i]
		get := func(key string) string {
			if idx, ok := col[key]; ok && idx < len(r) {
				return strings.TrimSpace(r[idx])
			}
			return ""
		}

		admissionNo := get("Admission No")
		structureName := get("Fee Structure")
		academicYear := get("Academic Year")
		amountStr := get("Amount")
		dateStr := get("Payment Date")
		method := strings.ToLower(get("Payment Method"))
		txnRef := get("Transaction Ref")

		amount, err := strconv.ParseFloat(strings.ReplaceAll(amountStr, ",", ""), 64)
		if err != nil || amount <= 0 {
			skipped++
			errorsList = append(errorsList, fmt.Sprintf("row %d: invalid amount %q", i+1, amountStr))
			continue
		}
		paymentDate := parsePaymentDate(dateStr)
		if paymentDate.IsZero() {
			skipped++
			errorsList = append(errorsList, fmt.Sprintf("row %d: invalid payment date %q", i+1, dateStr))
			continue
		}
		if method == "" {
			method = "cash"
		}

		// Deterministic row identity so re-imports never double-credit
		rowUID := strings.Join([]string{
			admissionNo, structureName, academicYear, amountStr, dateStr, txnRef,
		}, "|")

		var existing models.PaymentEntry
		if err := database.DB.Where("import_uid = ? AND school_id = ? AND status = ?",
			rowUID, actor.SchoolID, models.EntryActive).First(&existing).Error; err == nil {
			duplicates++
			skipped++
			continue
		}

		collectionID, err := pc.resolveCollection(actor.SchoolID, admissionNo, structureName, academicYear, paymentDate)
		if err != nil {
			skipped++
			errorsList = append(errorsList, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		_, err = pc.Ledger.AddPayment(actor, collectionID, ledger.PaymentInput{
			Amount:         amount,
			PaymentDate:    paymentDate,
			PaymentMethod:  method,
			TransactionRef: txnRef,
			ImportUID:      rowUID,
		})
		if err != nil {
			skipped++
			errorsList = append(errorsList, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		inserted++
	}

	middleware.LogActivity(c, "CREATE", "payments_import", 0, fiber.Map{
		"file_name": fh.Filename,
		"inserted":  inserted,
		"skipped":   skipped,
	})

	return c.JSON(fiber.Map{
		"success":      true,
		"file_name":    fh.Filename,
		"data_rows":    len(rows) - 1,
		"inserted":     inserted,
		"skipped":      skipped,
		"duplicates":   duplicates,
		"errors_count": len(errorsList),
		"errors":       errorsList,
	})
}

// resolveCollection maps a spreadsheet row to an open collection. The month of
// the payment date disambiguates monthly structures.
func (pc *PaymentsImportController) resolveCollection(schoolID uint, admissionNo, structureName, academicYear string, paymentDate time.Time) (uint, error) {
	var student models.Student
	if err := database.DB.Where("admission_no = ? AND school_id = ?", admissionNo, schoolID).First(&student).Error; err != nil {
		return 0, fmt.Errorf("student %q not found", admissionNo)
	}

	var structure models.FeeStructure
	q := database.DB.Where("name = ? AND school_id = ?", structureName, schoolID)
	if academicYear != "" {
		q = q.Where("academic_year = ?", academicYear)
	}
	if err := q.First(&structure).Error; err != nil {
		return 0, fmt.Errorf("fee structure %q not found", structureName)
	}

	q = database.DB.Where("student_id = ? AND fee_structure_id = ? AND status <> ?",
		student.ID, structure.ID, models.CollectionCancelled)
	if structure.Frequency == models.FrequencyMonthly {
		q = q.Where("month = ?", int(paymentDate.Month()))
	}
	var collection models.FeeCollection
	if err := q.Order("due_date ASC").First(&collection).Error; err != nil {
		return 0, fmt.Errorf("no open collection for student %q / structure %q", admissionNo, structureName)
	}
	return collection.ID, nil
}

func readCSVRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	return f.GetRows(sht)
}

func headerIndexes(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		m[strings.TrimSpace(h)] = i
	}
	return m
}

func parsePaymentDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	layouts := []string{"2006-01-02", "1/2/2006", "01/02/2006", "02/01/2006", time.RFC3339}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	if t, err := time.Parse("1/2/06", s); err == nil {
		return t
	}
	return time.Time{}
}

func sanitizeUploadName(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}

package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"schoolledger_go/database"
	"schoolledger_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReceiptArchiveService flushes cached activity logs to the database and
// archives each school's closed receipt book to S3, month by month.
type ReceiptArchiveService struct {
	redisClient *redis.Client
	awsConfig   aws.Config
}

// ArchivedReceipt is the exported representation stored inside archives
type ArchivedReceipt struct {
	ID             uint       `json:"id"`
	ReceiptNumber  string     `json:"receipt_number"`
	StudentID      uint       `json:"student_id"`
	StudentName    string     `json:"student_name,omitempty"`
	AdmissionNo    string     `json:"admission_no,omitempty"`
	AcademicYear   string     `json:"academic_year"`
	Amount         float64    `json:"amount"`
	PaymentDate    time.Time  `json:"payment_date"`
	PaymentMethod  string     `json:"payment_method"`
	TransactionRef string     `json:"transaction_ref,omitempty"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewReceiptArchiveService creates a new service instance
func NewReceiptArchiveService() *ReceiptArchiveService {
	cfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		logrus.WithError(err).Warn("Failed to load AWS config; S3 operations will fail until configured")
	}

	return &ReceiptArchiveService{
		redisClient: database.GetRedisClient(),
		awsConfig:   cfg,
	}
}

// FlushCachedLogsToDatabase moves activity logs from the Redis cache to the database
func (ras *ReceiptArchiveService) FlushCachedLogsToDatabase() error {
	if ras.redisClient == nil {
		return fmt.Errorf("redis client not available")
	}

	ctx := context.Background()
	cutoffTime := time.Now().Add(-24 * time.Hour)

	// Get all expired logs from the sorted set
	expiredLogs, err := ras.redisClient.ZRangeByScore(ctx, "logs:queue", &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoffTime.Unix()),
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to get expired logs: %v", err)
	}

	logrus.Infof("Processing %d expired cached logs", len(expiredLogs))

	var processedCount int
	var errorCount int

	for _, logKey := range expiredLogs {
		logData, err := ras.redisClient.Get(ctx, logKey).Result()
		if err != nil {
			if err != redis.Nil {
				logrus.WithError(err).Errorf("Failed to get log data for key: %s", logKey)
				errorCount++
			}
			continue
		}

		var activityLog models.ActivityLog
		if err := json.Unmarshal([]byte(logData), &activityLog); err != nil {
			logrus.WithError(err).Errorf("Failed to unmarshal log data for key: %s", logKey)
			errorCount++
			continue
		}

		if err := database.DB.Create(&activityLog).Error; err != nil {
			logrus.WithError(err).Errorf("Failed to save log to database: %v", activityLog)
			errorCount++
			continue
		}

		// Remove from cache and queue
		pipeline := ras.redisClient.Pipeline()
		pipeline.Del(ctx, logKey)
		pipeline.ZRem(ctx, "logs:queue", logKey)
		_, err = pipeline.Exec(ctx)

		if err != nil {
			logrus.WithError(err).Errorf("Failed to remove log from cache: %s", logKey)
		}

		processedCount++
	}

	logrus.Infof("Flushed %d logs to database, %d errors", processedCount, errorCount)
	return nil
}

// ArchiveReceiptBook archives one school's receipts for a calendar month to S3
// and records the archive. Receipts stay in the database; the archive is the
// immutable off-site copy of the closed book.
func (ras *ReceiptArchiveService) ArchiveReceiptBook(schoolID uint, year int, month time.Month) error {
	periodStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	if !periodEnd.Before(time.Now().UTC()) {
		return fmt.Errorf("receipt book for %s is still open", periodStart.Format("2006-01"))
	}

	// Skip if this book was already archived
	var existing models.ReceiptArchive
	err := database.DB.Where("school_id = ? AND period_start = ? AND status = ?",
		schoolID, periodStart, "completed").First(&existing).Error
	if err == nil {
		logrus.Infof("Receipt book %s for school %d already archived", periodStart.Format("2006-01"), schoolID)
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check existing archives: %v", err)
	}

	// Fetch the month's receipts in batches
	batchSize := 1000
	var allReceipts []ArchivedReceipt

	for offset := 0; ; offset += batchSize {
		var receipts []models.FeeReceipt

		err := database.DB.
			Preload("Student").
			Where("school_id = ? AND payment_date >= ? AND payment_date < ?", schoolID, periodStart, periodEnd).
			Order("receipt_number ASC").
			Limit(batchSize).
			Offset(offset).
			Find(&receipts).Error

		if err != nil {
			return fmt.Errorf("failed to fetch receipts for archiving: %v", err)
		}

		if len(receipts) == 0 {
			break
		}

		for _, r := range receipts {
			ar := ArchivedReceipt{
				ID:             r.ID,
				ReceiptNumber:  r.ReceiptNumber,
				StudentID:      r.StudentID,
				AcademicYear:   r.AcademicYear,
				Amount:         r.Amount,
				PaymentDate:    r.PaymentDate,
				PaymentMethod:  r.PaymentMethod,
				TransactionRef: r.TransactionRef,
				Status:         r.Status,
				CancelledAt:    r.CancelledAt,
				CreatedAt:      r.CreatedAt,
			}
			if r.Student.ID > 0 {
				ar.StudentName = strings.TrimSpace(r.Student.FirstName + " " + r.Student.LastName)
				ar.AdmissionNo = r.Student.AdmissionNo
			}
			allReceipts = append(allReceipts, ar)
		}
	}

	if len(allReceipts) == 0 {
		logrus.Infof("No receipts to archive for school %d in %s", schoolID, periodStart.Format("2006-01"))
		return nil
	}
	logrus.Infof("Archiving %d receipts for school %d (%s)", len(allReceipts), schoolID, periodStart.Format("2006-01"))

	archiveFileName := fmt.Sprintf("receipts_%d_%s.zip", schoolID, periodStart.Format("2006-01"))
	zipBuffer, err := ras.createZipArchive(allReceipts, archiveFileName, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %v", err)
	}

	s3Key := fmt.Sprintf("receipts/archived/%d/%d/%02d/%s",
		schoolID,
		periodStart.Year(),
		periodStart.Month(),
		archiveFileName)

	if err := ras.uploadToS3(s3Key, zipBuffer); err != nil {
		return fmt.Errorf("failed to upload archive to S3: %v", err)
	}

	logrus.Infof("Successfully uploaded archive to S3: %s", s3Key)

	archiveMetadata := models.ReceiptArchive{
		SchoolID:    schoolID,
		FileName:    archiveFileName,
		S3Key:       s3Key,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		RecordCount: len(allReceipts),
		FileSize:    int64(zipBuffer.Len()),
		Status:      "completed",
	}

	if err := database.DB.Create(&archiveMetadata).Error; err != nil {
		logrus.WithError(err).Error("Failed to save archive metadata")
	}

	return nil
}

// ArchiveAllClosedBooks archives last month's receipt book for every active school
func (ras *ReceiptArchiveService) ArchiveAllClosedBooks() error {
	lastMonth := time.Now().UTC().AddDate(0, -1, 0)

	var schools []models.School
	if err := database.DB.Where("active = ?", true).Find(&schools).Error; err != nil {
		return fmt.Errorf("failed to list schools: %v", err)
	}

	for _, school := range schools {
		if err := ras.ArchiveReceiptBook(school.ID, lastMonth.Year(), lastMonth.Month()); err != nil {
			logrus.WithError(err).Errorf("Failed to archive receipt book for school %d", school.ID)
		}
	}
	return nil
}

// createZipArchive creates a ZIP file containing the receipts as JSON and CSV
func (ras *ReceiptArchiveService) createZipArchive(receipts []ArchivedReceipt, fileName string, periodStart, periodEnd time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	receiptsFile, err := zipWriter.Create("receipts.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create receipts file in ZIP: %v", err)
	}

	encoder := json.NewEncoder(receiptsFile)
	encoder.SetIndent("", "  ")

	payload := map[string]any{
		"export_date":    time.Now().UTC(),
		"record_count":   len(receipts),
		"format_version": "1.0",
		"receipts":       receipts,
	}
	if err := encoder.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode receipts to JSON: %v", err)
	}

	metadataFile, err := zipWriter.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata file in ZIP: %v", err)
	}

	metadata := map[string]any{
		"file_name":    fileName,
		"created_at":   time.Now().UTC(),
		"record_count": len(receipts),
		"period": map[string]any{
			"start": periodStart,
			"end":   periodEnd,
		},
		"schema_version": "1.0",
		"description":    "Fee Receipt Book Archive",
	}
	metadataEncoder := json.NewEncoder(metadataFile)
	if err := metadataEncoder.Encode(metadata); err != nil {
		return nil, fmt.Errorf("failed to encode metadata to JSON: %v", err)
	}

	csvFile, err := zipWriter.Create("receipts.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file in ZIP: %v", err)
	}

	csvHeader := "ID,Receipt Number,Student ID,Student Name,Admission No,Academic Year,Amount,Payment Date,Payment Method,Transaction Ref,Status\n"
	csvFile.Write([]byte(csvHeader))

	for _, r := range receipts {
		csvLine := fmt.Sprintf("%d,%s,%d,%s,%s,%s,%.2f,%s,%s,%s,%s\n",
			r.ID,
			r.ReceiptNumber,
			r.StudentID,
			r.StudentName,
			r.AdmissionNo,
			r.AcademicYear,
			r.Amount,
			r.PaymentDate.Format("2006-01-02"),
			r.PaymentMethod,
			r.TransactionRef,
			r.Status,
		)
		csvFile.Write([]byte(csvLine))
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %v", err)
	}

	return buf, nil
}

// uploadToS3 uploads data to S3 bucket
func (ras *ReceiptArchiveService) uploadToS3(key string, data *bytes.Buffer) error {
	if ras.awsConfig.Region == "" {
		return fmt.Errorf("AWS not configured")
	}

	s3Client := s3.NewFromConfig(ras.awsConfig)
	bucketName := os.Getenv("S3_BUCKET_NAME")

	_, err := s3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      &bucketName,
		Key:         &key,
		Body:        bytes.NewReader(data.Bytes()),
		ContentType: aws.String("application/zip"),
	})

	return err
}

// downloadFromS3 downloads a key from S3
func (ras *ReceiptArchiveService) downloadFromS3(key string) (io.ReadCloser, error) {
	if ras.awsConfig.Region == "" {
		return nil, fmt.Errorf("AWS not configured")
	}

	s3Client := s3.NewFromConfig(ras.awsConfig)
	bucketName := os.Getenv("S3_BUCKET_NAME")

	result, err := s3Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &bucketName,
		Key:    &key,
	})

	if err != nil {
		return nil, err
	}

	return result.Body, nil
}

// GetArchives retrieves the list of archived receipt books for a school
func (ras *ReceiptArchiveService) GetArchives(schoolID uint) ([]models.ReceiptArchive, error) {
	var archives []models.ReceiptArchive

	err := database.DB.
		Where("school_id = ?", schoolID).
		Order("period_start DESC").
		Find(&archives).Error

	if err != nil {
		return nil, fmt.Errorf("failed to retrieve archives: %v", err)
	}

	return archives, nil
}

// DownloadArchive downloads a specific archive from S3
func (ras *ReceiptArchiveService) DownloadArchive(schoolID, archiveID uint) (io.ReadCloser, string, error) {
	var archive models.ReceiptArchive

	err := database.DB.Where("id = ? AND school_id = ?", archiveID, schoolID).First(&archive).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, "", fmt.Errorf("archive not found")
		}
		return nil, "", fmt.Errorf("failed to retrieve archive: %v", err)
	}

	reader, err := ras.downloadFromS3(archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download archive from S3: %v", err)
	}

	return reader, archive.FileName, nil
}

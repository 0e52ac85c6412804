package controllers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"schoolledger_go/database"
	"schoolledger_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LogController struct{}

// ledgerResources are the audited resources that make up the money trail.
// The ?ledger=true filter and the ledger stats are restricted to these.
var ledgerResources = []string{
	"fee_structures", "fee_collections", "fee_payments",
	"fee_receipts", "receipt_attachments",
}

// AuditEntry is one activity log row as returned to clients.
type AuditEntry struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
	User       *AuditUser             `json:"user,omitempty"`
}

// AuditUser identifies who performed an audited action.
type AuditUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuditStatsResponse summarizes audit activity with a ledger slant: alongside
// the generic breakdowns it reports how the receipt book moved today.
type AuditStatsResponse struct {
	Total             int64             `json:"total"`
	TotalToday        int64             `json:"total_today"`
	TotalThisWeek     int64             `json:"total_this_week"`
	TotalThisMonth    int64             `json:"total_this_month"`
	ActionBreakdown   map[string]int64  `json:"action_breakdown"`
	ResourceBreakdown map[string]int64  `json:"resource_breakdown"`
	ReceiptsToday     int64             `json:"receipts_issued_today"`
	CancellationsWeek int64             `json:"receipt_cancellations_this_week"`
	TopCollectors     []CollectorDigest `json:"top_collectors"`
	RecentActivity    []AuditEntry      `json:"recent_activity"`
}

// CollectorDigest ranks a staff member by receipt activity.
type CollectorDigest struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Receipts int64  `json:"receipts"`
}

// toAuditEntry converts a stored log row, decoding the details payload and
// attaching the acting user when preloaded.
func toAuditEntry(log models.ActivityLog) AuditEntry {
	entry := AuditEntry{
		ID:         log.ID,
		UserID:     log.UserID,
		Action:     log.Action,
		Resource:   log.Resource,
		ResourceID: log.ResourceID,
		IPAddress:  log.IPAddress,
		UserAgent:  log.UserAgent,
		CreatedAt:  log.CreatedAt,
	}
	if len(log.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(log.Details, &details); err == nil {
			entry.Details = details
		}
	}
	if log.User.ID > 0 {
		entry.User = &AuditUser{
			ID:       log.User.ID,
			Username: log.User.Username,
			Role:     log.User.Role,
		}
	}
	return entry
}

// auditQuery applies the shared request filters to an activity log query.
func auditQuery(c *fiber.Ctx) *gorm.DB {
	query := database.DB.Model(&models.ActivityLog{}).Preload("User")

	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if resourceID := c.Query("resource_id"); resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}
	if c.QueryBool("ledger") {
		query = query.Where("resource IN ?", ledgerResources)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if parsed, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("created_at >= ?", parsed)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if parsed, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("created_at <= ?", parsed.Add(24*time.Hour))
		}
	}
	return query
}

// GetLogs retrieves paginated audit entries with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := (page - 1) * limit

	query := auditQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logrus.WithError(err).Error("Failed to count audit entries")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve logs count",
		})
	}

	var rows []models.ActivityLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		logrus.WithError(err).Error("Failed to retrieve audit entries")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve logs",
		})
	}

	entries := make([]AuditEntry, len(rows))
	for i, row := range rows {
		entries[i] = toAuditEntry(row)
	}

	return c.JSON(fiber.Map{
		"logs":        entries,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": (total + int64(limit) - 1) / int64(limit),
	})
}

// GetLogStats aggregates audit activity, including the day's receipt traffic
func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisWeek := today.AddDate(0, 0, -int(today.Weekday()))
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := AuditStatsResponse{
		ActionBreakdown:   make(map[string]int64),
		ResourceBreakdown: make(map[string]int64),
	}

	database.DB.Model(&models.ActivityLog{}).Count(&stats.Total)
	database.DB.Model(&models.ActivityLog{}).
		Where("created_at >= ?", today).Count(&stats.TotalToday)
	database.DB.Model(&models.ActivityLog{}).
		Where("created_at >= ?", thisWeek).Count(&stats.TotalThisWeek)
	database.DB.Model(&models.ActivityLog{}).
		Where("created_at >= ?", thisMonth).Count(&stats.TotalThisMonth)

	var actionStats []struct {
		Action string
		Count  int64
	}
	database.DB.Model(&models.ActivityLog{}).
		Select("action, COUNT(*) as count").
		Group("action").
		Find(&actionStats)
	for _, stat := range actionStats {
		stats.ActionBreakdown[stat.Action] = stat.Count
	}

	var resourceStats []struct {
		Resource string
		Count    int64
	}
	database.DB.Model(&models.ActivityLog{}).
		Select("resource, COUNT(*) as count").
		Where("resource IN ?", ledgerResources).
		Group("resource").
		Find(&resourceStats)
	for _, stat := range resourceStats {
		stats.ResourceBreakdown[stat.Resource] = stat.Count
	}

	database.DB.Model(&models.ActivityLog{}).
		Where("resource = ? AND action = ? AND created_at >= ?", "fee_receipts", "CREATE", today).
		Count(&stats.ReceiptsToday)
	database.DB.Model(&models.ActivityLog{}).
		Where("resource = ? AND action = ? AND created_at >= ?", "fee_receipts", "UPDATE", thisWeek).
		Count(&stats.CancellationsWeek)

	var collectors []struct {
		UserID   uint
		Username string
		Role     string
		Receipts int64
	}
	database.DB.Model(&models.ActivityLog{}).
		Select("activity_logs.user_id, users.username, users.role, COUNT(*) as receipts").
		Joins("LEFT JOIN users ON activity_logs.user_id = users.id").
		Where("activity_logs.resource = ? AND activity_logs.action = ? AND activity_logs.created_at >= ?",
			"fee_receipts", "CREATE", thisMonth).
		Group("activity_logs.user_id, users.username, users.role").
		Order("receipts DESC").
		Limit(10).
		Find(&collectors)
	for _, stat := range collectors {
		stats.TopCollectors = append(stats.TopCollectors, CollectorDigest{
			UserID:   stat.UserID,
			Username: stat.Username,
			Role:     stat.Role,
			Receipts: stat.Receipts,
		})
	}

	var recent []models.ActivityLog
	database.DB.Preload("User").
		Where("resource IN ?", ledgerResources).
		Order("created_at DESC").
		Limit(10).
		Find(&recent)
	for _, row := range recent {
		stats.RecentActivity = append(stats.RecentActivity, toAuditEntry(row))
	}

	return c.JSON(stats)
}

// GetLog retrieves a single audit entry by ID
func (lc *LogController) GetLog(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid log ID",
		})
	}

	var row models.ActivityLog
	if err := database.DB.Preload("User").First(&row, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Log not found",
			})
		}
		logrus.WithError(err).Error("Failed to retrieve audit entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve log",
		})
	}

	return c.JSON(toAuditEntry(row))
}

// DeleteOldLogs removes audit entries older than the given number of days
func (lc *LogController) DeleteOldLogs(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid days parameter",
		})
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result := database.DB.Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
	if result.Error != nil {
		logrus.WithError(result.Error).Error("Failed to delete old audit entries")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete old logs",
		})
	}

	return c.JSON(fiber.Map{
		"message":       "Old logs deleted successfully",
		"deleted_count": result.RowsAffected,
		"cutoff_date":   cutoff,
	})
}

// ExportLogs streams the filtered audit trail as CSV
func (lc *LogController) ExportLogs(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=audit_trail.csv")

	var rows []models.ActivityLog
	if err := auditQuery(c).Order("created_at DESC").Find(&rows).Error; err != nil {
		logrus.WithError(err).Error("Failed to retrieve audit entries for export")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve logs for export",
		})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{
		"ID", "User ID", "Username", "Role", "Action", "Resource",
		"Resource ID", "IP Address", "Created At", "Details",
	})
	for _, row := range rows {
		username, role := "", ""
		if row.User.ID > 0 {
			username = row.User.Username
			role = row.User.Role
		}
		w.Write([]string{
			strconv.FormatUint(uint64(row.ID), 10),
			strconv.FormatUint(uint64(row.UserID), 10),
			username,
			role,
			row.Action,
			row.Resource,
			strconv.FormatUint(uint64(row.ResourceID), 10),
			row.IPAddress,
			row.CreatedAt.Format("2006-01-02 15:04:05"),
			string(row.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logrus.WithError(err).Error("CSV encode failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export logs",
		})
	}

	return c.Send(buf.Bytes())
}

// FlushCachedLogs drains the Redis-cached audit entries into the database
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	ctx := context.Background()
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Redis is not available",
		})
	}

	keys, err := redisClient.Keys(ctx, "log:*").Result()
	if err != nil {
		logrus.WithError(err).Error("Failed to list cached audit keys")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve cached logs",
		})
	}

	var processed, failed int
	for _, key := range keys {
		raw, err := redisClient.Get(ctx, key).Result()
		if err != nil {
			failed++
			continue
		}

		var row models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			failed++
			continue
		}
		if err := database.DB.Create(&row).Error; err != nil {
			logrus.WithError(err).Error("Failed to persist cached audit entry")
			failed++
			continue
		}

		if err := redisClient.Del(ctx, key).Err(); err != nil {
			logrus.WithError(err).Error("Failed to evict flushed audit entry")
		}
		redisClient.ZRem(ctx, "logs:queue", key)
		processed++
	}

	if failed > 0 {
		logrus.Warnf("Audit flush finished with %d failure(s)", failed)
	}
	return c.JSON(fiber.Map{
		"message":         fmt.Sprintf("Flushed %d cached audit entr(ies)", processed),
		"processed_count": processed,
		"error_count":     failed,
		"total_keys":      len(keys),
	})
}

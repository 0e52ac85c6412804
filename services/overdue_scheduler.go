package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"schoolledger_go/config"
	"schoolledger_go/database"
	"schoolledger_go/models"
	"schoolledger_go/services/ledger"
	"schoolledger_go/services/notifications"
)

// LedgerScheduler runs the periodic fee-ledger jobs: the overdue sweep, due
// reminders, receipt reconciliation, receipt-book archiving and the cached
// activity-log flush.
type LedgerScheduler struct {
	cron    *cron.Cron
	ledger  *ledger.Service
	archive *ReceiptArchiveService
}

func NewLedgerScheduler() *LedgerScheduler {
	return &LedgerScheduler{
		cron:    cron.New(),
		ledger:  ledger.NewService(),
		archive: NewReceiptArchiveService(),
	}
}

// Start registers and starts all jobs. Call once at boot.
func (ls *LedgerScheduler) Start() error {
	// Past-due collections flip to overdue shortly after midnight
	if _, err := ls.cron.AddFunc("15 0 * * *", ls.runOverdueSweep); err != nil {
		return err
	}
	// Morning payment reminders for upcoming due dates
	if _, err := ls.cron.AddFunc("0 8 * * *", ls.runDueReminders); err != nil {
		return err
	}
	// Re-credit receipts whose payment never landed
	if _, err := ls.cron.AddFunc("*/30 * * * *", ls.runReceiptReconciliation); err != nil {
		return err
	}
	// Hourly flush of Redis-cached activity logs
	if _, err := ls.cron.AddFunc("@hourly", ls.runLogFlush); err != nil {
		return err
	}
	// Archive last month's receipt books on the 2nd of each month
	if _, err := ls.cron.AddFunc("0 2 2 * *", ls.runReceiptArchive); err != nil {
		return err
	}

	ls.cron.Start()
	logrus.Info("Ledger scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (ls *LedgerScheduler) Stop() {
	ctx := ls.cron.Stop()
	<-ctx.Done()
	logrus.Info("Ledger scheduler stopped")
}

func (ls *LedgerScheduler) runOverdueSweep() {
	flipped, err := ls.ledger.SweepOverdue()
	if err != nil {
		logrus.WithError(err).Error("Overdue sweep failed")
		return
	}
	if len(flipped) == 0 {
		return
	}
	logrus.Infof("Overdue sweep flipped %d collection(s)", len(flipped))

	// Tell each school's admins how many obligations went overdue
	bySchool := map[uint]int{}
	for _, fc := range flipped {
		bySchool[fc.SchoolID]++
	}

	svc := notifications.NewService()
	for schoolID, count := range bySchool {
		adminIDs, err := activeUserIDs(schoolID, "owner", "admin")
		if err != nil || len(adminIDs) == 0 {
			continue
		}
		n := notifications.QueuedWithData(
			"Fee collections overdue",
			fmt.Sprintf("%d fee collection(s) went overdue today", count),
			"warning",
			map[string]interface{}{"action": "open_overdue_list", "count": count},
		)
		if err := svc.EnqueueOrCreate(adminIDs, n); err != nil {
			logrus.WithError(err).Warn("Failed to queue overdue notification")
		}
	}
}

func (ls *LedgerScheduler) runDueReminders() {
	days := 3
	if config.AppConfig != nil && config.AppConfig.DueReminderDays > 0 {
		days = config.AppConfig.DueReminderDays
	}
	windowEnd := time.Now().AddDate(0, 0, days)

	var due []models.FeeCollection
	err := database.DB.Preload("Student").
		Where("status IN ? AND due_amount > 0 AND due_date BETWEEN ? AND ?",
			[]string{models.CollectionPending, models.CollectionPartial}, time.Now(), windowEnd).
		Find(&due).Error
	if err != nil {
		logrus.WithError(err).Error("Due reminder query failed")
		return
	}

	svc := notifications.NewService()
	for _, fc := range due {
		if fc.Student.UserID == 0 {
			continue
		}
		n := notifications.QueuedWithData(
			"Fee payment due",
			fmt.Sprintf("%.2f is due by %s", fc.DueAmount, fc.DueDate.Format("2 Jan 2006")),
			"info",
			map[string]interface{}{"action": "open_fee_collection", "fee_collection_id": fc.ID},
		)
		if err := svc.EnqueueOrCreate([]uint{fc.Student.UserID}, n); err != nil {
			logrus.WithError(err).Warn("Failed to queue due reminder")
		}
	}
	if len(due) > 0 {
		logrus.Infof("Queued due reminders for %d collection(s)", len(due))
	}
}

func (ls *LedgerScheduler) runReceiptReconciliation() {
	repaired, err := ls.ledger.ReconcileUnappliedReceipts()
	if err != nil {
		logrus.WithError(err).Error("Receipt reconciliation failed")
	}
	if len(repaired) > 0 {
		logrus.Warnf("Reconciled %d uncredited receipt(s)", len(repaired))
	}
}

func (ls *LedgerScheduler) runLogFlush() {
	if err := ls.archive.FlushCachedLogsToDatabase(); err != nil {
		logrus.WithError(err).Warn("Cached log flush failed")
	}
}

func (ls *LedgerScheduler) runReceiptArchive() {
	if err := ls.archive.ArchiveAllClosedBooks(); err != nil {
		logrus.WithError(err).Error("Receipt book archiving failed")
	}
}

func activeUserIDs(schoolID uint, roles ...string) ([]uint, error) {
	var ids []uint
	err := database.DB.Model(&models.User{}).
		Where("school_id = ? AND role IN ? AND status = ?", schoolID, roles, "active").
		Pluck("id", &ids).Error
	return ids, err
}

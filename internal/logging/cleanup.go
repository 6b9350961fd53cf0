package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"gorm.io/gorm"
)

const LogRetention = 30 * 24 * time.Hour

// CleanupTask is a periodic purge returning how many rows it removed.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// PurgeSystemLogs deletes system_logs older than LogRetention.
func PurgeSystemLogs(db *gorm.DB) CleanupTask {
	return CleanupTask{
		Name: "system_logs",
		Run: func(ctx context.Context) (int64, error) {
			cutoff := time.Now().Add(-LogRetention)
			res := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
			return res.RowsAffected, res.Error
		},
	}
}

// StartCleanup runs tasks once per interval until done is closed.
func StartCleanup(interval time.Duration, done <-chan struct{}, tasks ...CleanupTask) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				RunCleanup(context.Background(), tasks...)
			case <-done:
				return
			}
		}
	}()
}

// RunCleanup runs every task once; a failing task is logged and skipped.
func RunCleanup(ctx context.Context, tasks ...CleanupTask) {
	for _, t := range tasks {
		n, err := t.Run(ctx)
		if err != nil {
			slog.Error("cleanup failed", "action", "cleanup", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("cleanup completed", "action", "cleanup", "task", t.Name, "deleted", n)
		}
	}
}

package identity

import (
	"context"
	"time"

	"github.com/dinepoint/dinepoint/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultCleanupDeleteBatchSize = 5000
	maxDeleteBatchesPerRun        = 2000
)

// expiringTables hold rows that are useless once expires_at has passed.
var expiringTables = []string{"sessions", "password_resets"}

// RetentionCleaner periodically deletes expired sessions and reset codes.
type RetentionCleaner struct {
	db        *gorm.DB
	batchSize int
	now       func() time.Time
}

// NewRetentionCleaner constructs a RetentionCleaner.
func NewRetentionCleaner(db *gorm.DB) *RetentionCleaner {
	if db == nil {
		return nil
	}
	return &RetentionCleaner{
		db:        db,
		batchSize: defaultCleanupDeleteBatchSize,
		now:       time.Now,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go c.run(ctx)
	log.Info("credential retention cleaner started")
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		interval := c.interval()
		if interval > 0 {
			c.CleanupOnce(ctx)
		} else {
			// Disabled; look again later in case the setting changes.
			interval = time.Duration(settings.DefaultCredentialCleanupMinutes) * time.Minute
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (c *RetentionCleaner) interval() time.Duration {
	minutes := settings.Int(settings.CredentialCleanupMinutesKey, settings.DefaultCredentialCleanupMinutes)
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// CleanupOnce deletes every expired row and returns how many went.
func (c *RetentionCleaner) CleanupOnce(ctx context.Context) int64 {
	if c == nil || c.db == nil {
		return 0
	}
	cutoff := c.now()

	deletedTotal := int64(0)
	for _, table := range expiringTables {
		for i := 0; i < maxDeleteBatchesPerRun; i++ {
			if ctx.Err() != nil {
				return deletedTotal
			}
			n, err := c.deleteBatch(ctx, table, cutoff)
			if err != nil {
				log.WithError(err).WithField("table", table).Warn("credential retention cleaner: delete batch failed")
				break
			}
			if n <= 0 {
				break
			}
			deletedTotal += n
		}
	}

	if deletedTotal > 0 {
		log.Infof("credential retention cleaner: deleted %d rows (cutoff=%s)", deletedTotal, cutoff.Format(time.RFC3339))
	}
	return deletedTotal
}

func (c *RetentionCleaner) deleteBatch(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultCleanupDeleteBatchSize
	}

	key := "id"
	if table == "password_resets" {
		key = "code"
	}
	// Bounded subquery keeps each delete short.
	res := c.db.WithContext(ctx).Exec(
		"DELETE FROM "+table+" WHERE "+key+" IN (SELECT "+key+" FROM "+table+" WHERE expires_at < ? ORDER BY expires_at ASC LIMIT ?)",
		cutoff, limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

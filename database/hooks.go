package database

import (
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"example.com/backstage/services/giftcard/metrics"
)

const startTimeKey = "metrics:start_time"

// RegisterMetricsHooks times creates, queries, updates, deletes and raw statements into metrics.DBLatency
func RegisterMetricsHooks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("duration:create", markStart),
		cb.Create().After("gorm:create").Register("metrics:create", observe("insert")),
		cb.Query().Before("gorm:query").Register("duration:query", markStart),
		cb.Query().After("gorm:query").Register("metrics:query", observe("select")),
		cb.Update().Before("gorm:update").Register("duration:update", markStart),
		cb.Update().After("gorm:update").Register("metrics:update", observe("update")),
		cb.Delete().Before("gorm:delete").Register("duration:delete", markStart),
		cb.Delete().After("gorm:delete").Register("metrics:delete", observe("delete")),
		cb.Row().Before("gorm:row").Register("duration:row", markStart),
		cb.Row().After("gorm:row").Register("metrics:row", observe("row")),
		cb.Raw().Before("gorm:raw").Register("duration:raw", markStart),
		cb.Raw().After("gorm:raw").Register("metrics:raw", observe("raw")),
	)
}

// markStart sets the start time of the database operation
func markStart(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		metrics.DBLatency.
			WithLabelValues(operation, strconv.FormatBool(db.Error == nil)).
			Observe(getDuration(db).Seconds())
	}
}

// getDuration returns the time since markStart ran for this statement
func getDuration(db *gorm.DB) time.Duration {
	if start, ok := db.InstanceGet(startTimeKey); ok {
		return time.Since(start.(time.Time))
	}
	return 0
}

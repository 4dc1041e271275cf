package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/backstage/services/giftcard/models"
)

// DSNEnv names the variable pointing integration tests at a disposable Postgres.
const DSNEnv = "GIFTCARD_TEST_DATABASE_DSN"

// NewTestDB opens the test database, migrates it and empties every table.
// The test is skipped when no database is configured or reachable.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("skipping Postgres integration tests: %s not set", DSNEnv)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Exec(`TRUNCATE gift_card_events, gift_cards RESTART IDENTITY`).Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

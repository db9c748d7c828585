// Package dbtest opens the MySQL database used by integration tests and
// skips the test when none is reachable.
package dbtest

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

var tables = []string{
	"scan_logs",
	"notifications",
	"processed_events",
	"reservations",
	"tickets",
	"order_items",
	"orders",
	"ticket_types",
	"events",
	"operators",
}

// Open connects with TEST_DB_DSN (or the DB_* variables), migrates the
// schema and empties every table.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := env.GetEnv("TEST_DB_DSN", "")
	if dsn == "" {
		dsn = database.DSN()
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Skipf("Skipping MySQL-dependent test: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Skipf("Skipping MySQL-dependent test: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		t.Skipf("Skipping MySQL-dependent test: no reachable database (%v)", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	Truncate(t, db)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Truncate empties all tables on one connection so the foreign key switch
// applies. The scan log rejects deletes through the model, hence raw SQL.
func Truncate(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SET FOREIGN_KEY_CHECKS = 0").Error; err != nil {
			return err
		}
		for _, table := range tables {
			if err := conn.Exec("TRUNCATE TABLE " + table).Error; err != nil {
				return err
			}
		}
		return conn.Exec("SET FOREIGN_KEY_CHECKS = 1").Error
	})
	if err != nil {
		t.Fatalf("failed to truncate test tables: %v", err)
	}
}

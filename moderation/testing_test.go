package moderation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/quorum-social/quorum/directory"
	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"
	"github.com/quorum-social/quorum/notifs"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	// a fresh connection would get a fresh empty :memory: database
	sqldb.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Moderator{},
		&models.ModerationAction{},
		&models.Appeal{},
		&models.Report{},
		&events.OutboxEvent{},
	))
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIntake(db *gorm.DB) *Intake {
	return NewIntake(db, testLogger())
}

func testActions(db *gorm.DB, notifier notifs.Notifier) *Actions {
	return NewActions(db, notifier, testLogger())
}

func testAppeals(db *gorm.DB) *Appeals {
	return NewAppeals(db, directory.NewGormDirectory(db), testLogger())
}

func seedModerator(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	mod := models.Moderator{ID: id, Handle: id, DisplayName: id, Active: true}
	require.NoError(t, db.Create(&mod).Error)
}

func outboxRows(t *testing.T, db *gorm.DB, kind string) []events.OutboxEvent {
	t.Helper()
	var rows []events.OutboxEvent
	require.NoError(t, db.Where("kind = ?", kind).Order("id asc").Find(&rows).Error)
	return rows
}

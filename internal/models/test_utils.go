package models

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

// setupTestDBWithSilentLogger creates an in-memory test database with a
// silent logger to suppress SQL logs.
func setupTestDBWithSilentLogger(t *testing.T, models ...interface{}) *gorm.DB {
	silentLogger := glog.New(
		log.New(io.Discard, "", log.LstdFlags),
		glog.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glog.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: silentLogger,
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// One connection: every session sees the same in-memory database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if len(models) > 0 {
		err = db.AutoMigrate(models...)
		if err != nil {
			t.Fatalf("Failed to migrate: %v", err)
		}
	}

	return db
}

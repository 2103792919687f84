package models

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

// OpenDatabase connects per driver and migrates the entitlement schema.
func OpenDatabase(logWriter io.Writer, driver, dsn string) (*gorm.DB, error) {
	gormLogger := glog.New(
		log.New(logWriter, "\r\n", log.LstdFlags),
		glog.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glog.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Entitlement{}, &CallRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

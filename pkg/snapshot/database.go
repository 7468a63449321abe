package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// document is the single-row-per-store table backing Database.
type document struct {
	Name      string `gorm:"primaryKey"`
	Data      []byte
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (document) TableName() string { return "snapshots" }

// Database keeps the document in a SQL database, one row per named store.
// The DSN selects PostgreSQL (postgres:// / postgresql://) or a SQLite file.
type Database struct {
	db   *gorm.DB
	name string
}

// Open connects to the database behind dsn and migrates the snapshot table.
// The returned connection can be shared by several named stores.
func Open(dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var (
		gormDB *gorm.DB
		err    error
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		gormDB, err = gorm.Open(postgres.Open(dsn), gormConfig)
	} else {
		gormDB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := gormDB.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return gormDB, nil
}

// NewDatabase returns a Store reading and writing the named document.
func NewDatabase(db *gorm.DB, name string) *Database {
	return &Database{db: db, name: name}
}

func (d *Database) Load() ([]byte, error) {
	var doc document
	err := d.db.First(&doc, "name = ?", d.name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", d.name, err)
	}
	return doc.Data, nil
}

func (d *Database) Save(data []byte) error {
	doc := document{Name: d.name, Data: data}
	if err := d.db.Save(&doc).Error; err != nil {
		return fmt.Errorf("failed to save snapshot %q: %w", d.name, err)
	}
	return nil
}

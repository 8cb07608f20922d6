package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/booklibrary/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the local cache at dbPath and migrates the schema.
// Migrations are additive: new tables and columns are created, nothing is dropped.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

// Migrate creates or extends every table of the local cache.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.Book{},
		&entities.Genre{},
		&entities.BookGenre{},
		&entities.Bookmark{},
		&entities.Note{},
		&entities.ReaderState{},
		&entities.ReadingPosition{},
		&entities.SyncProgress{},
		&entities.MediaEntry{},
	)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the underlying connection is usable.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// withForeignKeys enables SQLite foreign key enforcement, which the cascading
// book_genres relation relies on.
func withForeignKeys(dbPath string) string {
	if strings.Contains(dbPath, "_foreign_keys") {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on"
}

// Package versionstore implements a gorm/sqlite-backed
// moduleloader.VersionPinStore, letting an embedder pin specific historical
// revisions of a whitelisted library module by name (spec §4.6; grounded on
// the teacher's repository.Manager, which persisted per-contract code the
// same way, and on original_source/contract/v8/lib/load_sc.cc's name-based
// resolution).
package versionstore

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pin is a single persisted module-name -> source-text revision.
type Pin struct {
	ModuleName string `gorm:"primaryKey;column:module_name"`
	Source     string `gorm:"column:source"`
	Revision   uint64 `gorm:"column:revision"`
}

func (Pin) TableName() string { return "version_pins" }

// Store opens (creating if needed) a sqlite database at path and exposes it
// as a moduleloader.VersionPinStore.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the pin database at path. An empty path opens an
// in-memory database, useful for tests and for embedders who don't need
// pins to survive a process restart.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("versionstore: open %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Pin{}); err != nil {
		return nil, fmt.Errorf("versionstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// ResolvePin implements moduleloader.VersionPinStore: it returns the most
// recently written pin for moduleName, or ok=false if none was ever set.
func (s *Store) ResolvePin(moduleName string) (source string, ok bool, err error) {
	var p Pin
	err = s.db.First(&p, "module_name = ?", moduleName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("versionstore: lookup %q: %w", moduleName, err)
	}
	return p.Source, true, nil
}

// Pin records source as the pinned revision for moduleName, monotonically
// bumping revision. Pinning the same moduleName again overwrites the prior
// pin; there is no history beyond the current revision number, matching the
// "pin a single specific revision" framing in spec §4.6 rather than a full
// version catalog.
func (s *Store) Pin(moduleName, source string) error {
	var existing Pin
	err := s.db.First(&existing, "module_name = ?", moduleName).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(&Pin{ModuleName: moduleName, Source: source, Revision: 1}).Error
	case err != nil:
		return fmt.Errorf("versionstore: lookup %q: %w", moduleName, err)
	default:
		existing.Source = source
		existing.Revision++
		return s.db.Save(&existing).Error
	}
}

// Unpin removes moduleName's pin, reverting resolution to the ordinary
// whitelist contents.
func (s *Store) Unpin(moduleName string) error {
	return s.db.Delete(&Pin{}, "module_name = ?", moduleName).Error
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package database

import (
	"context"
	"testing"

	"cms-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory database is migrated", func(t *testing.T) {
		db, err := NewDatabaseFromConfig(ctx, config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database needs migration", func(t *testing.T) {
		db, err := NewDatabaseFromConfig(ctx, config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error before migrate")
		}
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() after migrate error = %v", err)
		}
	})

	errorCases := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{"sqlite without data_dir", config.DatabaseConfig{Type: "sqlite"}},
		{"postgres without dsn", config.DatabaseConfig{Type: "postgres"}},
		{"unknown type", config.DatabaseConfig{Type: "mysql"}},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			db, err := NewDatabaseFromConfig(ctx, tc.cfg)
			if err == nil {
				db.Close()
				t.Fatal("NewDatabaseFromConfig() expected error, got nil")
			}
			if db != nil {
				t.Error("NewDatabaseFromConfig() should return nil on error")
			}
		})
	}
}

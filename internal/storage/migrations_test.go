package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateToV4_CopiesVRFAndRenames(t *testing.T) {
	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "impacts.db")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", dbPath))
	if err != nil {
		t.Fatal(err)
	}

	// Bring the schema up to v3 by hand
	_, err = db.Exec(`CREATE TABLE schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		t.Fatal(err)
	}
	for _, m := range migrations {
		if m.version > 3 {
			break
		}
		for _, stmt := range m.statements {
			if _, err := db.Exec(stmt); err != nil {
				db.Close()
				t.Fatalf("migration %d: %v", m.version, err)
			}
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			db.Close()
			t.Fatal(err)
		}
	}

	// Legacy data: an impact still called "name", without VRF
	legacy := []string{
		`INSERT INTO vrfs (id, name) VALUES (7, 'PROD')`,
		`INSERT INTO ip_addresses (id, address, vrf_id) VALUES (1, '10.0.0.1/24', 7)`,
		`INSERT INTO impacts (id, name, redundancy, ip_address_id) VALUES (1, 'Billing', 1, 1)`,
	}
	for _, stmt := range legacy {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatal(err)
		}
	}
	db.Close()

	store, err := NewSQLiteStorage(tmpDir)
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	defer store.Close()

	version, err := store.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("Expected schema version %d, got %d", len(migrations), version)
	}

	impact, err := store.GetImpact(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetImpact() error = %v", err)
	}
	if impact.Impact != "Billing" {
		t.Errorf("Expected impact text 'Billing', got %q", impact.Impact)
	}
	if !impact.Redundancy {
		t.Error("Redundancy lost in migration")
	}
	if impact.VRFID == nil || *impact.VRFID != 7 {
		t.Errorf("Expected VRF 7 copied from IP address, got %v", impact.VRFID)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStorage(tmpDir)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		store.Close()
	}
}

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
)

type migration struct {
	version    int
	name       string
	statements []string
}

// migrations are applied in order, each in its own transaction, and never
// edited once released.
var migrations = []migration{
	{
		version: 1,
		name:    "inventory",
		statements: []string{
			`CREATE TABLE vrfs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				rd TEXT UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_vrfs_name ON vrfs(name)`,
			`CREATE TABLE devices (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE virtual_machines (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE interfaces (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				UNIQUE (device_id, name)
			)`,
			`CREATE TABLE vm_interfaces (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				virtual_machine_id INTEGER NOT NULL REFERENCES virtual_machines(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				UNIQUE (virtual_machine_id, name)
			)`,
			`CREATE TABLE ip_addresses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				address TEXT NOT NULL,
				vrf_id INTEGER REFERENCES vrfs(id) ON DELETE SET NULL,
				assigned_object_type TEXT,
				assigned_object_id INTEGER,
				custom_field_data TEXT NOT NULL DEFAULT '{}',
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_ip_addresses_address ON ip_addresses(address)`,
			`CREATE INDEX idx_ip_addresses_assigned ON ip_addresses(assigned_object_type, assigned_object_id)`,
			// assignments are polymorphic, so interface deletion unassigns by trigger
			`CREATE TRIGGER interfaces_unassign_ips
				AFTER DELETE ON interfaces
				FOR EACH ROW
				BEGIN
					UPDATE ip_addresses SET assigned_object_type = NULL, assigned_object_id = NULL
					WHERE assigned_object_type = 'dcim.interface' AND assigned_object_id = OLD.id;
				END`,
			`CREATE TRIGGER vm_interfaces_unassign_ips
				AFTER DELETE ON vm_interfaces
				FOR EACH ROW
				BEGIN
					UPDATE ip_addresses SET assigned_object_type = NULL, assigned_object_id = NULL
					WHERE assigned_object_type = 'virtualization.vminterface' AND assigned_object_id = OLD.id;
				END`,
		},
	},
	{
		version: 2,
		name:    "impacts",
		statements: []string{
			`CREATE TABLE impacts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				redundancy INTEGER NOT NULL DEFAULT 0,
				device_id INTEGER REFERENCES devices(id) ON DELETE CASCADE,
				ip_address_id INTEGER REFERENCES ip_addresses(id) ON DELETE CASCADE,
				custom_field_data TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_impacts_device ON impacts(device_id)`,
			`CREATE INDEX idx_impacts_ip_address ON impacts(ip_address_id)`,
		},
	},
	{
		version: 3,
		name:    "impacts_vm",
		statements: []string{
			`ALTER TABLE impacts ADD COLUMN vm_id INTEGER REFERENCES virtual_machines(id) ON DELETE CASCADE`,
			`CREATE INDEX idx_impacts_vm ON impacts(vm_id)`,
		},
	},
	{
		version: 4,
		name:    "impacts_vrf",
		statements: []string{
			`ALTER TABLE impacts RENAME COLUMN name TO impact`,
			`ALTER TABLE impacts ADD COLUMN description TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE impacts ADD COLUMN vrf_id INTEGER REFERENCES vrfs(id) ON DELETE CASCADE`,
			`UPDATE impacts SET vrf_id = (
				SELECT ip.vrf_id FROM ip_addresses ip WHERE ip.id = impacts.ip_address_id
			) WHERE ip_address_id IS NOT NULL`,
			`CREATE UNIQUE INDEX idx_impacts_ip_vrf ON impacts(ip_address_id, vrf_id)`,
		},
	},
	{
		version: 5,
		name:    "object_changes",
		statements: []string{
			`CREATE TABLE object_changes (
				id TEXT PRIMARY KEY,
				time TIMESTAMP NOT NULL,
				user_name TEXT NOT NULL DEFAULT '',
				request_id TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				changed_object_type TEXT NOT NULL,
				changed_object_id INTEGER NOT NULL,
				object_repr TEXT NOT NULL DEFAULT '',
				prechange_data TEXT,
				postchange_data TEXT
			)`,
			`CREATE INDEX idx_object_changes_object ON object_changes(changed_object_type, changed_object_id)`,
		},
	},
}

// SchemaVersion returns the highest applied migration.
func (ss *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := ss.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("checking migration version: %w", err)
	}
	return int(version.Int64), nil
}

func (ss *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := ss.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	current, err := ss.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		err := ss.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %d (%s): %w", m.version, m.name, err)
		}

		log.Info("Applied migration", "version", m.version, "name", m.name)
	}

	return nil
}

package kv

import (
	"encoding/json"
	"fmt"
	"time"
)

// reserved keys.
var (
	schemaVersionKey    = []byte("_schema_version")
	migrationHistoryKey = []byte("_migration_history")
)

// Migration transforms every value under KeyPrefix when moving the schema
// from FromVersion to ToVersion.
type Migration struct {
	FromVersion int
	ToVersion   int
	KeyPrefix   []byte
	MigrateItem func(key, value []byte) ([]byte, error)
}

// MigrationRecord is one entry in the append-only migration history.
type MigrationRecord struct {
	From          int       `json:"from"`
	To            int       `json:"to"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	ItemsMigrated int       `json:"items_migrated"`
	BackupKey     string    `json:"backup_key"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// SchemaVersion returns the persisted schema version, or 0 if never set.
func (s *Store) SchemaVersion() (int, error) {
	raw, err := s.Get(schemaVersionKey)
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("kv: decode schema version: %w", err)
	}
	return v, nil
}

func (s *Store) setSchemaVersion(v int) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(schemaVersionKey, raw)
}

// MigrationHistory returns the append-only list of past migration attempts.
func (s *Store) MigrationHistory() ([]MigrationRecord, error) {
	raw, err := s.Get(migrationHistoryKey)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var history []MigrationRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("kv: decode migration history: %w", err)
	}
	return history, nil
}

func (s *Store) appendMigrationHistory(rec MigrationRecord) error {
	history, err := s.MigrationHistory()
	if err != nil {
		return err
	}
	history = append(history, rec)
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.Put(migrationHistoryKey, raw)
}

// backupNamespace returns the KV-internal namespace a pre-migration backup
// of prefix is copied under. This is the narrow "forward copy of pairs plus
// a manifest" backup used for rollback, distinct from the full directory
// snapshots the backup package produces.
func backupNamespace(step Migration, startedAt time.Time) []byte {
	return []byte(fmt.Sprintf("_migration_backup_%d_%d_%d:", step.FromVersion, step.ToVersion, startedAt.UnixNano()))
}

type backupManifest struct {
	Prefix    string   `json:"prefix"`
	Keys      []string `json:"keys"`
	CreatedAt string   `json:"created_at"`
}

// backupPrefix copies every pair under prefix into a reserved backup
// namespace and writes a JSON manifest, so a failed migration can be rolled
// back by restorePrefix.
func (s *Store) backupPrefix(prefix, namespace []byte, now time.Time) error {
	pairs, err := s.ScanPrefix(prefix)
	if err != nil {
		return fmt.Errorf("kv: migration backup scan: %w", err)
	}
	ops := make([]Op, 0, len(pairs)+1)
	manifest := backupManifest{Prefix: string(prefix), CreatedAt: now.UTC().Format(time.RFC3339Nano)}
	for _, p := range pairs {
		backupKey := append(append([]byte{}, namespace...), p.Key...)
		ops = append(ops, Op{Key: backupKey, Value: p.Value})
		manifest.Keys = append(manifest.Keys, string(p.Key))
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	ops = append(ops, Op{Key: append(append([]byte{}, namespace...), []byte("_manifest")...), Value: manifestJSON})
	return s.BatchWrite(ops)
}

// restorePrefix deletes everything currently under prefix and re-writes the
// pairs saved under namespace, reversing a partially-applied migration.
func (s *Store) restorePrefix(prefix, namespace []byte) error {
	backed, err := s.ScanPrefix(namespace)
	if err != nil {
		return fmt.Errorf("kv: migration restore scan: %w", err)
	}
	if err := s.DeletePrefix(prefix); err != nil {
		return fmt.Errorf("kv: migration restore clear: %w", err)
	}
	manifestSuffix := append(append([]byte{}, namespace...), []byte("_manifest")...)
	ops := make([]Op, 0, len(backed))
	for _, p := range backed {
		if string(p.Key) == string(manifestSuffix) {
			continue
		}
		key := p.Key[len(namespace):]
		ops = append(ops, Op{Key: key, Value: p.Value})
	}
	if len(ops) == 0 {
		return nil
	}
	return s.BatchWrite(ops)
}

// RunMigrations compares the stored schema version against the highest
// ToVersion reachable through steps and applies each pending step in order.
// Each step: scans its KeyPrefix, takes a pre-migration backup of that
// prefix, transforms every item via MigrateItem, writes the results back,
// and bumps the schema version only on success. On any item error the step
// is rolled back from its own backup and the whole run aborts; the schema
// version is left unchanged. History is appended whether a step succeeds or
// fails.
func RunMigrations(s *Store, steps []Migration, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("kv: read schema version: %w", err)
	}

	for _, step := range steps {
		if step.FromVersion != current {
			continue
		}
		startedAt := now()
		namespace := backupNamespace(step, startedAt)

		rec := MigrationRecord{From: step.FromVersion, To: step.ToVersion, StartedAt: startedAt, BackupKey: string(namespace)}

		if err := s.backupPrefix(step.KeyPrefix, namespace, startedAt); err != nil {
			rec.CompletedAt = now()
			rec.Error = err.Error()
			_ = s.appendMigrationHistory(rec)
			return fmt.Errorf("kv: migration %d->%d: pre-migration backup: %w", step.FromVersion, step.ToVersion, err)
		}

		items, migrateErr := s.migrateItems(step)
		if migrateErr != nil {
			restoreErr := s.restorePrefix(step.KeyPrefix, namespace)
			rec.CompletedAt = now()
			rec.ItemsMigrated = items
			if restoreErr != nil {
				rec.Error = fmt.Sprintf("migrate failed (%v) AND rollback failed (%v)", migrateErr, restoreErr)
				_ = s.appendMigrationHistory(rec)
				return fmt.Errorf("kv: migration %d->%d: CRITICAL rollback failure, restore from backup %q manually: %w", step.FromVersion, step.ToVersion, string(namespace), restoreErr)
			}
			rec.Error = migrateErr.Error()
			_ = s.appendMigrationHistory(rec)
			return fmt.Errorf("kv: migration %d->%d failed and was rolled back from backup %q (restore from backup id to recover manually if needed): %w", step.FromVersion, step.ToVersion, string(namespace), migrateErr)
		}

		if err := s.setSchemaVersion(step.ToVersion); err != nil {
			return fmt.Errorf("kv: migration %d->%d: bump schema version: %w", step.FromVersion, step.ToVersion, err)
		}
		rec.CompletedAt = now()
		rec.ItemsMigrated = items
		rec.Success = true
		if err := s.appendMigrationHistory(rec); err != nil {
			return err
		}
		current = step.ToVersion
	}
	return nil
}

func (s *Store) migrateItems(step Migration) (int, error) {
	pairs, err := s.ScanPrefix(step.KeyPrefix)
	if err != nil {
		return 0, err
	}
	ops := make([]Op, 0, len(pairs))
	for _, p := range pairs {
		newValue, err := step.MigrateItem(p.Key, p.Value)
		if err != nil {
			return len(ops), fmt.Errorf("item %q: %w", string(p.Key), err)
		}
		ops = append(ops, Op{Key: p.Key, Value: newValue})
	}
	if err := s.BatchWrite(ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

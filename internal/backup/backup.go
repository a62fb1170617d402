// Package backup creates point-in-time logical copies of the KV store,
// verifies them by re-hashing, and restores them on demand. Retention is
// enforced per backup type after every successful create.
package backup

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/antigravity-dev/meridian/internal/kv"
)

// Type identifies why a backup was taken.
type Type string

const (
	TypeManual       Type = "manual"
	TypeScheduled    Type = "scheduled"
	TypePreMigration Type = "pre_migration"
	TypeIncremental  Type = "incremental"
)

// Metadata describes a single backup.
type Metadata struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	CreatedAt       time.Time `json:"created_at"`
	SizeBytes       int64     `json:"size_bytes"`
	FileCount       int       `json:"file_count"`
	Checksum        string    `json:"checksum"`
	MeridianVersion string    `json:"meridian_version"`
	SchemaVersion   int       `json:"schema_version"`
	Verified        bool      `json:"verified"`
	VerifiedAt      time.Time `json:"verified_at,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

// Retention caps applied per backup Type. Manual and pre-migration backups
// are kept indefinitely.
type Retention struct {
	Scheduled   int
	Incremental int
}

// DefaultRetention keeps 7 scheduled and 10 incremental backups; manual
// and pre-migration backups are never swept.
func DefaultRetention() Retention {
	return Retention{Scheduled: 7, Incremental: 10}
}

// Manager creates, verifies, lists, and restores backups of a kv.Store under
// a root directory.
type Manager struct {
	store     *kv.Store
	dir       string
	version   string
	retention Retention
	now       func() time.Time
}

// New returns a Manager rooted at dir, creating it if necessary.
func New(store *kv.Store, dir, meridianVersion string, retention Retention) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create dir %s: %w", dir, err)
	}
	return &Manager{store: store, dir: dir, version: meridianVersion, retention: retention, now: time.Now}, nil
}

type record struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// deterministicEncode renders pairs (already sorted by kv.ScanPrefix/All) as
// newline-delimited base64 JSON records, one per line, which is the exact
// byte sequence the checksum is taken over.
func deterministicEncode(pairs []kv.Pair) ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range pairs {
		rec := record{Key: base64.StdEncoding.EncodeToString(p.Key), Value: base64.StdEncoding.EncodeToString(p.Value)}
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("blake3:%x", sum)
}

// Create snapshots every (key, value) pair in the store into a new backup
// directory, writes metadata.json, and sweeps old backups of the same type
// past the retention cap.
func (m *Manager) Create(typ Type, schemaVersion int, tags []string) (*Metadata, error) {
	pairs, err := m.store.All()
	if err != nil {
		return nil, fmt.Errorf("backup: scan store: %w", err)
	}

	id := fmt.Sprintf("%d-%s", m.now().UnixNano(), uuid.NewString())
	backupDir := filepath.Join(m.dir, id)
	dataDir := filepath.Join(backupDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create data dir: %w", err)
	}

	encoded, err := deterministicEncode(pairs)
	if err != nil {
		return nil, fmt.Errorf("backup: encode pairs: %w", err)
	}
	dataPath := filepath.Join(dataDir, "kv.jsonl")
	if err := os.WriteFile(dataPath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("backup: write data: %w", err)
	}

	meta := &Metadata{
		ID:              id,
		Type:            typ,
		CreatedAt:       m.now(),
		SizeBytes:       int64(len(encoded)),
		FileCount:       len(pairs),
		Checksum:        checksum(encoded),
		MeridianVersion: m.version,
		SchemaVersion:   schemaVersion,
		Tags:            tags,
	}
	if err := m.writeMetadata(backupDir, meta); err != nil {
		return nil, err
	}

	if err := m.sweepRetention(typ); err != nil {
		return meta, fmt.Errorf("backup: retention sweep: %w", err)
	}
	return meta, nil
}

func (m *Manager) writeMetadata(backupDir string, meta *Metadata) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(backupDir, "metadata.json"), raw, 0o644); err != nil {
		return fmt.Errorf("backup: write metadata: %w", err)
	}
	return nil
}

// Get loads the metadata for a single backup id.
func (m *Manager) Get(id string) (*Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(m.dir, id, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("backup: read metadata %s: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("backup: decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

// List returns every backup's metadata, newest first.
func (m *Manager) List() ([]*Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: list dir: %w", err)
	}
	var metas []*Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.Get(e.Name())
		if err != nil {
			continue // tolerate partial/corrupt directories
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

// Verify re-hashes a backup's data and compares it against the stored
// checksum, marking the backup verified on success.
func (m *Manager) Verify(id string) error {
	meta, err := m.Get(id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(m.dir, id, "data", "kv.jsonl"))
	if err != nil {
		return fmt.Errorf("backup: read data for verify: %w", err)
	}
	if checksum(data) != meta.Checksum {
		return fmt.Errorf("backup: checksum mismatch for %s: stored %s, computed %s", id, meta.Checksum, checksum(data))
	}
	meta.Verified = true
	meta.VerifiedAt = m.now()
	return m.writeMetadata(filepath.Join(m.dir, id), meta)
}

// Restore replaces the target store's contents with a backup's contents. If
// the target already holds data, a safety backup is taken first.
func (m *Manager) Restore(id string, target *kv.Store, schemaVersion int) error {
	existing, err := target.All()
	if err != nil {
		return fmt.Errorf("backup: scan target before restore: %w", err)
	}
	if len(existing) > 0 {
		safety := &Manager{store: target, dir: m.dir, version: m.version, retention: m.retention, now: m.now}
		if _, err := safety.Create(TypePreMigration, schemaVersion, []string{"pre_restore_safety"}); err != nil {
			return fmt.Errorf("backup: safety backup before restore: %w", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(m.dir, id, "data", "kv.jsonl"))
	if err != nil {
		return fmt.Errorf("backup: read backup data: %w", err)
	}
	pairs, err := decode(data)
	if err != nil {
		return fmt.Errorf("backup: decode backup data: %w", err)
	}

	if err := target.DeletePrefix(nil); err != nil {
		return fmt.Errorf("backup: clear target: %w", err)
	}
	ops := make([]kv.Op, 0, len(pairs))
	for _, p := range pairs {
		ops = append(ops, kv.Op{Key: p.Key, Value: p.Value})
	}
	if len(ops) == 0 {
		return nil
	}
	return target.BatchWrite(ops)
}

func decode(data []byte) ([]kv.Pair, error) {
	var pairs []kv.Pair
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		key, err := base64.StdEncoding.DecodeString(rec.Key)
		if err != nil {
			return nil, err
		}
		value, err := base64.StdEncoding.DecodeString(rec.Value)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, kv.Pair{Key: key, Value: value})
	}
	return pairs, nil
}

// sweepRetention deletes the oldest backups of typ beyond the configured cap.
// Manual and pre-migration backups are kept indefinitely.
func (m *Manager) sweepRetention(typ Type) error {
	limit := 0
	switch typ {
	case TypeScheduled:
		limit = m.retention.Scheduled
	case TypeIncremental:
		limit = m.retention.Incremental
	default:
		return nil
	}
	if limit <= 0 {
		return nil
	}

	all, err := m.List()
	if err != nil {
		return err
	}
	var ofType []*Metadata
	for _, meta := range all {
		if meta.Type == typ {
			ofType = append(ofType, meta)
		}
	}
	if len(ofType) <= limit {
		return nil
	}
	// ofType is newest-first (List sorts descending); drop the tail.
	for _, stale := range ofType[limit:] {
		if err := os.RemoveAll(filepath.Join(m.dir, stale.ID)); err != nil {
			return fmt.Errorf("backup: prune %s: %w", stale.ID, err)
		}
	}
	return nil
}

// Stats summarizes the backup set.
type Stats struct {
	Total       int
	ByType      map[Type]int
	TotalSize   int64
	TotalSizeH  string
	Verified    int
	Unverified  int
	OldestID    string
	NewestID    string
}

// GetStats reports totals, by-type counts, size, verification status, and
// the oldest/newest backup ids.
func (m *Manager) GetStats() (*Stats, error) {
	all, err := m.List() // newest first
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByType: make(map[Type]int)}
	stats.Total = len(all)
	for i, meta := range all {
		stats.ByType[meta.Type]++
		stats.TotalSize += meta.SizeBytes
		if meta.Verified {
			stats.Verified++
		} else {
			stats.Unverified++
		}
		if i == 0 {
			stats.NewestID = meta.ID
		}
		if i == len(all)-1 {
			stats.OldestID = meta.ID
		}
	}
	stats.TotalSizeH = humanize.Bytes(uint64(stats.TotalSize))
	return stats, nil
}

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"agrirec/config"
	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and encoder configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (j *BoltJournal) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if b == nil {
			return nil
		}

		versionData := b.Get(keySchemaVersion)
		if versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}

		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (j *BoltJournal) SetSchemaInfo(info *SchemaInfo) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the encoder settings the stored vectors depend on.
// A different hash means the embedding matrix has to be rebuilt.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		TaskType  string `json:"task_type"`
		Dimension int    `json:"dimension"`
	}{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		TaskType:  cfg.Embedding.TaskType,
		Dimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed.
func (j *BoltJournal) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := j.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("data directory created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	newHash := ComputeConfigHash(cfg)
	if info.ConfigHash != "" && info.ConfigHash != newHash {
		result.NeedsRebuild = true
		result.Reason = "embedding configuration changed"
	}

	return result, nil
}

// Migrate performs any necessary schema migrations and records the current
// encoder configuration.
func (j *BoltJournal) Migrate(cfg *config.Config) error {
	info, err := j.GetSchemaInfo()
	if err != nil {
		return err
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := j.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return j.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}

// runMigration runs a specific version migration.
func (j *BoltJournal) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return nil
	case from == 1 && to == 2:
		// v2 added the id index; the caller reindexes from the metadata table.
		return j.db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketIDs)
			return err
		})
	default:
		return nil
	}
}

// Clear removes the id index and the pending entries (for rebuild).
func (j *BoltJournal) Clear() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPending, bucketIDs} {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return tx.Bucket(bucketStats).Delete(keyCounts)
	})
}

// NeedsRebuild checks if the embedding matrix needs a full rebuild due to
// encoder config changes.
func (j *BoltJournal) NeedsRebuild(cfg *config.Config) (bool, string, error) {
	result, err := j.CheckMigration(cfg)
	if err != nil {
		return false, "", err
	}
	return result.NeedsRebuild, result.Reason, nil
}

// Package state persists the node's durable side-effects: the ordered
// transaction record, the flat key/value state and its diff history, and the
// evolving state root.
package state

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/poc"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// initialRoot is the hex encoding of the 32-byte zero string.
const initialRoot = "0000000000000000000000000000000000000000000000000000000000000000"

const schema = `
CREATE TABLE IF NOT EXISTS state_roots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    root_hash TEXT NOT NULL,
    transaction_hash TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE TABLE IF NOT EXISTS state_entries (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE TABLE IF NOT EXISTS state_diffs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prev_root_hash TEXT NOT NULL,
    new_root_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE TABLE IF NOT EXISTS state_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    diff_id INTEGER NOT NULL REFERENCES state_diffs(id),
    operation_type TEXT NOT NULL CHECK (operation_type IN ('insert', 'delete')),
    key TEXT NOT NULL,
    value TEXT
);
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    payload BLOB,
    timestamp TEXT NOT NULL,
    sender TEXT
);
`

// Config holds state storage configuration
type Config struct {
	DBPath        string
	StateRootPath string
}

// Storage is the SQLite-backed state store.
type Storage struct {
	cfg    Config
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// Open creates the database, applies the schema and seeds the initial root.
func Open(cfg Config) (*Storage, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if cfg.StateRootPath != "" {
		if err := os.MkdirAll(cfg.StateRootPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state root directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// SQLite serialises writers; one connection avoids lock contention from
	// the pool.
	db.SetMaxOpenConns(1)

	s := &Storage{cfg: cfg, db: db, logger: log.WithComponent("state")}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM state_roots").Scan(&count); err != nil {
		return fmt.Errorf("failed to query state roots: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO state_roots (root_hash, transaction_hash) VALUES (?, NULL)", initialRoot); err != nil {
			return fmt.Errorf("failed to seed initial state root: %w", err)
		}
		s.logger.Info().Str("root", initialRoot).Msg("Created initial state root")
	}
	return nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// StateRoot returns the most recent root hash.
func (s *Storage) StateRoot() (string, error) {
	var root string
	err := s.db.QueryRow("SELECT root_hash FROM state_roots ORDER BY id DESC LIMIT 1").Scan(&root)
	if err != nil {
		return "", fmt.Errorf("failed to read state root: %w", err)
	}
	return root, nil
}

// ApplyDiff atomically records a diff and applies its operations to the flat
// state. The previous root must exist; the new root is inserted if missing.
func (s *Storage) ApplyDiff(diff *Diff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM state_roots WHERE root_hash = ?)", diff.PrevRoot).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check previous root: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("previous root %s not found", diff.PrevRoot)
	}

	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM state_roots WHERE root_hash = ?)", diff.NewRoot).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check new root: %w", err)
	}
	if exists == 0 {
		if _, err := tx.Exec("INSERT INTO state_roots (root_hash, transaction_hash) VALUES (?, NULL)", diff.NewRoot); err != nil {
			return fmt.Errorf("failed to insert new root: %w", err)
		}
	}

	result, err := tx.Exec("INSERT INTO state_diffs (prev_root_hash, new_root_hash) VALUES (?, ?)", diff.PrevRoot, diff.NewRoot)
	if err != nil {
		return fmt.Errorf("failed to insert diff: %w", err)
	}
	diffID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read diff id: %w", err)
	}

	for _, op := range diff.Operations {
		switch op.Type {
		case OpInsert:
			if _, err := tx.Exec("INSERT INTO state_operations (diff_id, operation_type, key, value) VALUES (?, 'insert', ?, ?)", diffID, op.Key, op.Value); err != nil {
				return fmt.Errorf("failed to record insert of %s: %w", op.Key, err)
			}
			if _, err := tx.Exec("INSERT OR REPLACE INTO state_entries (key, value, updated_at) VALUES (?, ?, strftime('%s','now'))", op.Key, op.Value); err != nil {
				return fmt.Errorf("failed to apply insert of %s: %w", op.Key, err)
			}
		case OpDelete:
			if _, err := tx.Exec("INSERT INTO state_operations (diff_id, operation_type, key) VALUES (?, 'delete', ?)", diffID, op.Key); err != nil {
				return fmt.Errorf("failed to record delete of %s: %w", op.Key, err)
			}
			if _, err := tx.Exec("DELETE FROM state_entries WHERE key = ?", op.Key); err != nil {
				return fmt.Errorf("failed to apply delete of %s: %w", op.Key, err)
			}
		default:
			return fmt.Errorf("unknown operation type %q", op.Type)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit diff: %w", err)
	}
	return nil
}

// Checkpoint returns an empty diff anchored at the current root.
func (s *Storage) Checkpoint() (*Diff, error) {
	root, err := s.StateRoot()
	if err != nil {
		return nil, err
	}
	return NewDiff(root), nil
}

// Keys returns the sorted state keys.
func (s *Storage) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM state_entries ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan state key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Get reads one state entry.
func (s *Storage) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM state_entries WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state entry %s: %w", key, err)
	}
	return value, true, nil
}

// ApplyTransaction records a committed transaction and refreshes the
// persisted state root.
func (s *Storage) ApplyTransaction(tx types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sender interface{}
	if tx.Sender != "" {
		sender = tx.Sender
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO transactions (id, type, payload, timestamp, sender) VALUES (?, ?, ?, ?, ?)",
		tx.ID.String(), tx.Kind.String(), tx.Payload, tx.Timestamp.Format(time.RFC3339), sender,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction %s: %w", tx.ID, err)
	}

	root, err := s.calculateStateRoot()
	if err != nil {
		return err
	}
	if s.cfg.StateRootPath != "" {
		path := filepath.Join(s.cfg.StateRootPath, "state_root")
		if err := os.WriteFile(path, []byte(root), 0644); err != nil {
			return fmt.Errorf("failed to persist state root: %w", err)
		}
	}
	return nil
}

// calculateStateRoot derives the root from the sorted key set. The digest is
// a keccak over the comma-joined keys; swapping in an ordered trie over
// (key, value) pairs does not change this interface.
func (s *Storage) calculateStateRoot() (string, error) {
	keys, err := s.Keys()
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return initialRoot, nil
	}
	digest := poc.Keccak256([]byte(strings.Join(keys, ",")))
	return hex.EncodeToString(digest), nil
}

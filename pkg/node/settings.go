package node

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// Settings persists the node's operator-tunable settings: arbitrary
// key/value pairs, plus a dedicated bcrypt-hashed admin password never
// stored or returned in plaintext. Grounded on pkg/tagindex/catalog.go's
// sqlite-catalog pattern, generalized from a tag/topic schema to a
// plain key/value one.
type Settings struct {
	db *sql.DB
}

// OpenSettings opens (creating if absent) the sqlite-backed settings
// store at dsn.
func OpenSettings(dsn string) (*Settings, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("node: open settings store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("node: migrate settings store: %w", err)
	}
	return &Settings{db: db}, nil
}

// Get returns the value for key, if set.
func (s *Settings) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("node: get setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value for key, overwriting any previous value.
func (s *Settings) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("node: set setting %s: %w", key, err)
	}
	return nil
}

// All returns every stored key/value pair.
func (s *Settings) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("node: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("node: scanning settings row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

const adminPasswordHashKey = "admin_password_hash"

// SetAdminPassword bcrypt-hashes password and stores it under a
// dedicated settings key; the plaintext is never persisted.
func (s *Settings) SetAdminPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("node: hash admin password: %w", err)
	}
	return s.Set(adminPasswordHashKey, string(hash))
}

// CheckAdminPassword reports whether password matches the stored hash.
// Returns false, nil if no admin password has ever been set.
func (s *Settings) CheckAdminPassword(password string) (bool, error) {
	hash, ok, err := s.Get(adminPasswordHashKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// Close closes the underlying sqlite connection.
func (s *Settings) Close() error {
	return s.db.Close()
}

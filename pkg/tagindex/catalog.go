package tagindex

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Catalog mirrors tag_hash -> tag and stream_id -> topic mappings in
// sqlite so admin listing and NotFound checks don't require scanning
// every .seq postings file; the postings files remain authoritative.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if absent) the sqlite catalog at dsn,
// e.g. a file path or ":memory:" for tests.
func OpenCatalog(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("tagindex: open catalog: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tags (tag TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS stream_topics (stream_id TEXT PRIMARY KEY, topic TEXT NOT NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("tagindex: migrate catalog: %w", err)
		}
	}
	return nil
}

// RecordTag registers tag in the catalog if not already present.
func (c *Catalog) RecordTag(tag string) error {
	_, err := c.db.Exec(`INSERT OR IGNORE INTO tags (tag) VALUES (?)`, tag)
	if err != nil {
		return fmt.Errorf("tagindex: record tag: %w", err)
	}
	return nil
}

// HasTag reports whether tag has ever been recorded, in O(1) without
// touching the postings files.
func (c *Catalog) HasTag(tag string) (bool, error) {
	var exists int
	err := c.db.QueryRow(`SELECT 1 FROM tags WHERE tag = ?`, tag).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tagindex: has tag: %w", err)
	}
	return true, nil
}

// AssignTopic records that streamID belongs to topic, for admin topic
// listing and for DeleteTopic's stream_id resolution.
func (c *Catalog) AssignTopic(streamID, topic string) error {
	_, err := c.db.Exec(`INSERT INTO stream_topics (stream_id, topic) VALUES (?, ?)
		ON CONFLICT(stream_id) DO UPDATE SET topic = excluded.topic`, streamID, topic)
	if err != nil {
		return fmt.Errorf("tagindex: assign topic: %w", err)
	}
	return nil
}

// StreamsForTopic returns every stream id assigned to topic.
func (c *Catalog) StreamsForTopic(topic string) ([]string, error) {
	rows, err := c.db.Query(`SELECT stream_id FROM stream_topics WHERE topic = ?`, topic)
	if err != nil {
		return nil, fmt.Errorf("tagindex: streams for topic: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("tagindex: scanning stream_topics row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Topics returns every distinct topic currently assigned to a stream,
// for the admin list-topics operation.
func (c *Catalog) Topics() ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT topic FROM stream_topics ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("tagindex: list topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("tagindex: scanning topics row: %w", err)
		}
		out = append(out, topic)
	}
	return out, rows.Err()
}

// RemoveTopic deletes every stream_topics row for topic, as part of an
// operator-initiated topic delete.
func (c *Catalog) RemoveTopic(topic string) error {
	_, err := c.db.Exec(`DELETE FROM stream_topics WHERE topic = ?`, topic)
	if err != nil {
		return fmt.Errorf("tagindex: remove topic: %w", err)
	}
	return nil
}

// Close closes the underlying sqlite connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

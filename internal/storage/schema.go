package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

const schemaVersion = 1

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	source_path TEXT NOT NULL,
	byte_offset INTEGER NOT NULL,
	byte_length INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL
);

CREATE INDEX idx_chunks_source ON chunks(source_path);

CREATE TABLE vectors (
	chunk_id TEXT PRIMARY KEY,
	vector   BLOB NOT NULL
);

CREATE TABLE sources (
	path        TEXT PRIMARY KEY,
	sha256      TEXT NOT NULL,
	chunks      INTEGER NOT NULL,
	ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Meta keys.
const (
	metaSchemaVersion = "schema_version"
	metaDimensions    = "dimensions"
	metaMetric        = "metric"
	metaEncoder       = "encoder"
	metaCount         = "count"
)

// Info describes a store as recorded in its meta table.
type Info struct {
	Dimensions int
	Metric     string
	Encoder    string
	Count      int
	Sources    int
}

func initSchema(ctx context.Context, db *sql.DB, opts Options) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	meta := [][2]string{
		{metaSchemaVersion, strconv.Itoa(schemaVersion)},
		{metaDimensions, strconv.Itoa(opts.Dimensions)},
		{metaMetric, string(opts.Metric)},
		{metaEncoder, opts.Encoder},
		{metaCount, "0"},
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("write meta %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}

// readInfo reads the meta table. Every key must be present and well formed.
func readInfo(ctx context.Context, db *sql.DB) (Info, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Info{}, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Info{}, fmt.Errorf("read meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return Info{}, fmt.Errorf("read meta: %w", err)
	}

	intValue := func(key string) (int, error) {
		v, ok := meta[key]
		if !ok {
			return 0, fmt.Errorf("meta %s missing", key)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("meta %s=%q: %w", key, v, err)
		}
		return n, nil
	}

	version, err := intValue(metaSchemaVersion)
	if err != nil {
		return Info{}, err
	}
	if version != schemaVersion {
		return Info{}, fmt.Errorf("schema version %d, want %d", version, schemaVersion)
	}
	var info Info
	if info.Dimensions, err = intValue(metaDimensions); err != nil {
		return Info{}, err
	}
	if info.Count, err = intValue(metaCount); err != nil {
		return Info{}, err
	}
	var ok bool
	if info.Metric, ok = meta[metaMetric]; !ok {
		return Info{}, fmt.Errorf("meta %s missing", metaMetric)
	}
	if info.Encoder, ok = meta[metaEncoder]; !ok {
		return Info{}, fmt.Errorf("meta %s missing", metaEncoder)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&info.Sources); err != nil {
		return Info{}, fmt.Errorf("count sources: %w", err)
	}
	return info, nil
}

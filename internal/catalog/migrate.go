package catalog

import (
	"database/sql"

	"github.com/ioustamora/datamesh/internal/errors"
)

// schemaVersion identifies the current schema shape, mirroring the
// migration-version stamping the teacher's DynamoDB migration used, adapted
// to a single embedded file where there is only ever one generation to track.
const schemaVersion = "20260731000000_files_and_tags"

const createSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL UNIQUE,
	fk            TEXT NOT NULL,
	original_name TEXT NOT NULL,
	size          INTEGER NOT NULL,
	uploaded_at   INTEGER NOT NULL,
	owner_fp      TEXT NOT NULL,
	health        INTEGER NOT NULL,
	data_shards   INTEGER NOT NULL,
	parity_shards INTEGER NOT NULL,
	shard_size    INTEGER NOT NULL,
	cipher_size   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_fk ON files(fk);

CREATE TABLE IF NOT EXISTS file_tags (
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	tag     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_tags_tag ON file_tags(tag);
CREATE INDEX IF NOT EXISTS idx_file_tags_file_id ON file_tags(file_id);
`

// migrate creates the catalog schema if it does not already exist and stamps
// the schema version, the way the teacher's migrate package records a
// version per applied migration.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(createSchema); err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "applying catalog schema")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "reading schema_meta")
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion); err != nil {
			return errors.Wrap(errors.KindCatalogCorrupt, err, "stamping schema version")
		}
	}
	return nil
}

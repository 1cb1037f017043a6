// Package catalog implements the embedded relational store that maps
// human-readable file names to file keys, shard layout, and tags. It
// replaces the teacher's DynamoDB-backed metadata repository with a local
// SQLite database file, per the requirement that the catalog be an embedded
// relational database rather than a hosted cloud table.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ioustamora/datamesh/internal/errors"
)

// Record is one catalog row: a named file with its content address, size,
// upload time, tag set, owning key fingerprint, and retrievability health.
//
// DataShards, ParityShards, ShardSize, and CipherSize extend the spec's
// conceptual files(...) schema: the erasure contract requires (k, m) to be
// "recorded so decode uses matching parameters," and since configuration is
// captured by value per orchestrator instance (it can change between
// restarts), that record has to live with the file, not in process config.
type Record struct {
	ID           int64
	Name         string
	FK           string // hex-encoded file key
	OriginalName string
	Size         int64
	UploadedAt   time.Time
	OwnerFP      string
	Health       int
	Tags         []string

	DataShards   int
	ParityShards int
	ShardSize    int64
	CipherSize   int64 // length of the ciphertext including the erasure length-prefix (erasure.Layout.OriginalSize)
}

// Catalog is a thread-safe handle onto the embedded SQLite database file.
// Writers are serialized with an internal mutex (sql.DB already pools
// readers safely; SQLite itself only allows one writer at a time, and a
// process-wide mutex avoids SQLITE_BUSY retries under the file lock).
type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the catalog database at path and
// applies the schema migration.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "opening catalog database")
	}
	// The catalog is single-process but accessed from many goroutines;
	// SQLite only supports one writer, so cap the pool to avoid lock
	// contention spilling out as spurious SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Store inserts a new file record. If name is already taken, it returns a
// KindNameConflict error without creating a row; StoreWithSuffix is the
// higher-level helper that resolves this by appending a numeric suffix.
func (c *Catalog) Store(rec Record) (int64, error) {
	if rec.Name == "" {
		return 0, errors.ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return 0, errors.Wrap(errors.KindCatalogCorrupt, err, "beginning transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO files(name, fk, original_name, size, uploaded_at, owner_fp, health, data_shards, parity_shards, shard_size, cipher_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.FK, rec.OriginalName, rec.Size, rec.UploadedAt.Unix(), rec.OwnerFP, rec.Health,
		rec.DataShards, rec.ParityShards, rec.ShardSize, rec.CipherSize,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, errors.New(errors.KindNameConflict, fmt.Sprintf("name %q already exists", rec.Name))
		}
		return 0, errors.Wrap(errors.KindCatalogCorrupt, err, "inserting file record")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.KindCatalogCorrupt, err, "reading inserted id")
	}

	for _, tag := range rec.Tags {
		if _, err := tx.Exec(`INSERT INTO file_tags(file_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return 0, errors.Wrap(errors.KindCatalogCorrupt, err, "inserting tag")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(errors.KindCatalogCorrupt, err, "committing transaction")
	}
	return id, nil
}

// StoreWithSuffix stores rec, and on a name collision retries with an
// incrementing numeric suffix ("name", "name_1", "name_2", ...) until it
// finds a free name or exhausts maxAttempts. It returns the name actually
// used.
func (c *Catalog) StoreWithSuffix(rec Record, maxAttempts int) (string, int64, error) {
	base := rec.Name
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d", base, attempt)
		}
		rec.Name = candidate
		id, err := c.Store(rec)
		if err == nil {
			return candidate, id, nil
		}
		if !errors.Is(err, errors.KindNameConflict) {
			return "", 0, err
		}
	}
	return "", 0, errors.New(errors.KindNameConflict, fmt.Sprintf("could not find a free name after %d attempts", maxAttempts))
}

// LookupByName returns the record filed under name, or ErrNotFound.
func (c *Catalog) LookupByName(name string) (Record, error) {
	row := c.db.QueryRow(
		`SELECT id, name, fk, original_name, size, uploaded_at, owner_fp, health, data_shards, parity_shards, shard_size, cipher_size FROM files WHERE name = ?`,
		name,
	)
	return c.scanRecord(row)
}

// LookupByKey returns every record filed under file key fk (zero or more:
// the same content may be stored under multiple names).
func (c *Catalog) LookupByKey(fk string) ([]Record, error) {
	rows, err := c.db.Query(
		`SELECT id, name, fk, original_name, size, uploaded_at, owner_fp, health, data_shards, parity_shards, shard_size, cipher_size FROM files WHERE fk = ?`,
		fk,
	)
	if err != nil {
		return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "querying by file key")
	}
	defer rows.Close()
	return c.scanRecords(rows)
}

// List returns every record, most recently uploaded first, optionally
// filtered to those carrying tag.
func (c *Catalog) List(tag string) ([]Record, error) {
	var rows *sql.Rows
	var err error
	if tag == "" {
		rows, err = c.db.Query(`SELECT id, name, fk, original_name, size, uploaded_at, owner_fp, health, data_shards, parity_shards, shard_size, cipher_size FROM files ORDER BY uploaded_at DESC`)
	} else {
		rows, err = c.db.Query(
			`SELECT f.id, f.name, f.fk, f.original_name, f.size, f.uploaded_at, f.owner_fp, f.health,
			        f.data_shards, f.parity_shards, f.shard_size, f.cipher_size
			 FROM files f JOIN file_tags t ON t.file_id = f.id
			 WHERE t.tag = ? ORDER BY f.uploaded_at DESC`,
			tag,
		)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "listing files")
	}
	defer rows.Close()
	return c.scanRecords(rows)
}

// Delete removes the record filed under name, along with its tags. It is
// purely local: the catalog never calls into the network layer to reclaim
// DHT-stored shards (spec §9's deletion-propagation open question, resolved
// in favor of leaving DHT garbage collection to the DHT).
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec(`DELETE FROM files WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "deleting file record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "reading rows affected")
	}
	if n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// UpdateHealth sets the health score recorded for name, e.g. after a
// maintenance sweep recomputes retrievability.
func (c *Catalog) UpdateHealth(name string, health int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec(`UPDATE files SET health = ? WHERE name = ?`, health, name)
	if err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "updating health")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.KindCatalogCorrupt, err, "reading rows affected")
	}
	if n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Catalog) scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var uploadedAt int64
	err := row.Scan(&rec.ID, &rec.Name, &rec.FK, &rec.OriginalName, &rec.Size, &uploadedAt, &rec.OwnerFP, &rec.Health,
		&rec.DataShards, &rec.ParityShards, &rec.ShardSize, &rec.CipherSize)
	if err == sql.ErrNoRows {
		return Record{}, errors.ErrNotFound
	}
	if err != nil {
		return Record{}, errors.Wrap(errors.KindCatalogCorrupt, err, "scanning file record")
	}
	rec.UploadedAt = time.Unix(uploadedAt, 0).UTC()

	tags, err := c.tagsForFile(rec.ID)
	if err != nil {
		return Record{}, err
	}
	rec.Tags = tags
	return rec, nil
}

func (c *Catalog) scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var uploadedAt int64
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.FK, &rec.OriginalName, &rec.Size, &uploadedAt, &rec.OwnerFP, &rec.Health,
			&rec.DataShards, &rec.ParityShards, &rec.ShardSize, &rec.CipherSize); err != nil {
			return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "scanning file record")
		}
		rec.UploadedAt = time.Unix(uploadedAt, 0).UTC()
		tags, err := c.tagsForFile(rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Tags = tags
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "iterating file records")
	}
	return out, nil
}

func (c *Catalog) tagsForFile(fileID int64) ([]string, error) {
	rows, err := c.db.Query(`SELECT tag FROM file_tags WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "querying tags")
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, errors.Wrap(errors.KindCatalogCorrupt, err, "scanning tag")
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && containsUniqueHint(err.Error())
}

func containsUniqueHint(msg string) bool {
	const hint = "UNIQUE constraint failed"
	for i := 0; i+len(hint) <= len(msg); i++ {
		if msg[i:i+len(hint)] == hint {
			return true
		}
	}
	return false
}

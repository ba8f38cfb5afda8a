/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "annotate/internal/log"
	"annotate/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	JournalFileName = "journal.sqlite"

	// tsLayout is fixed width so that timestamps sort lexicographically.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

	// schemaVersion tracks the local SQLite schema of the journal.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// language=SQL
// dialect=SQLite
const insertEntrySQL = `INSERT INTO journal(image, ts, markers, doc) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestEntrySQL = `SELECT id, image, ts, markers, doc FROM journal WHERE image = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listEntriesSQL = `SELECT id, image, ts, markers, doc FROM journal WHERE image = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const selectEntrySQL = `SELECT id, image, ts, markers, doc FROM journal WHERE id = ?`

// language=SQL
// dialect=SQLite
const pruneEntriesSQL = `DELETE FROM journal WHERE image = ? AND id NOT IN (
	SELECT id FROM journal WHERE image = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// Entry is one journaled document state.
type Entry struct {
	ID      int64
	Image   string
	TS      time.Time
	Markers int
	Doc     []byte
}

// Journal is the autosave history of documents kept in <dir>/.annotate/journal.sqlite.
type Journal struct {
	db   *sql.DB
	path string
}

// JournalPath returns the journal database file used for documents in dir.
func JournalPath(dir string) string {
	return filepath.Join(dir, DataDirName, JournalFileName)
}

// OpenJournal opens or creates the journal for dir, enables WAL and applies migrations.
// A database that fails its integrity check is moved aside and recreated empty.
func OpenJournal(ctx context.Context, dir string) (*Journal, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "journal_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("directory is required")
	}
	path := JournalPath(dir)
	j, err := openJournal(ctx, path)
	if err == nil {
		if healthy(ctx, j.db) {
			l.Debug("journal ready", slog.String("path", path))
			return j, nil
		}
		_ = j.db.Close()
		err = errors.New("integrity check failed")
	}
	l.Warn("journal unusable, recreating", slog.Any("err", err))
	backupJournalFile(path)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return openJournal(ctx, path)
}

func openJournal(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s dir: %w", DataDirName, err)
	}
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureJournalSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, path: path}, nil
}

func healthy(ctx context.Context, db *sql.DB) bool {
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(chk), "ok")
}

// backupJournalFile copies the journal into a timestamped backup in .annotate/backups.
func backupJournalFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	_ = os.WriteFile(filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp)), data, 0o644)
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureJournalSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS journal (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			image   TEXT NOT NULL,
			ts      TEXT NOT NULL,
			markers INTEGER NOT NULL DEFAULT 0,
			doc     BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_image_ts ON journal(image, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create journal schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// v1 journals had no marker count
			stmts = []string{`ALTER TABLE journal ADD COLUMN markers INTEGER NOT NULL DEFAULT 0;`}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Close() error { return j.db.Close() }

// Append stores an encoded document for image.
func (j *Journal) Append(ctx context.Context, image string, doc *Document, ts time.Time) (int64, error) {
	data, err := doc.Marshal()
	if err != nil {
		return 0, err
	}
	res, err := j.db.ExecContext(ctx, insertEntrySQL, image, ts.UTC().Format(tsLayout), len(doc.Annotations), data)
	if err != nil {
		return 0, fmt.Errorf("journal append: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns the newest entry for image, or false if there is none.
func (j *Journal) Latest(ctx context.Context, image string) (Entry, bool, error) {
	e, err := scanEntry(j.db.QueryRowContext(ctx, selectLatestEntrySQL, image))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Get returns the entry with the given id.
func (j *Journal) Get(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(j.db.QueryRowContext(ctx, selectEntrySQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("journal entry %d: %w", id, os.ErrNotExist)
	}
	return e, err
}

// List returns up to limit most recent entries for image, newest first.
func (j *Journal) List(ctx context.Context, image string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, listEntriesSQL, image, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune keeps at most keepLast entries for image and deletes older ones.
func (j *Journal) Prune(ctx context.Context, image string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := j.db.ExecContext(ctx, pruneEntriesSQL, image, image, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface{ Scan(dest ...any) error }

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var tsStr string
	if err := s.Scan(&e.ID, &e.Image, &tsStr, &e.Markers, &e.Doc); err != nil {
		return Entry{}, err
	}
	e.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return e, nil
}

// Document decodes the stored document.
func (e Entry) Document() (*Document, error) { return Decode(e.Doc) }

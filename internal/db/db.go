// Package db opens the article database.
package db

import (
	"database/sql"

	"github.com/rs/zerolog"
)

type DB interface {
	InitDB() error

	Get() *sql.DB
	Close() error

	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

var dbLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	dbLogger = l
}

// Schema creates the article tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'draft',
    title TEXT NOT NULL,
    slug TEXT UNIQUE,
    summary TEXT NOT NULL DEFAULT '',
    cover_url TEXT NOT NULL DEFAULT '',
    category_id TEXT,
    content BLOB,
    md_content_hash TEXT,
    created_at DATETIME,
    modified_at DATETIME,
    published_at DATETIME
);

CREATE TABLE IF NOT EXISTS post_tags (
    post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (post_id, tag)
);

CREATE TABLE IF NOT EXISTS post_uploads (
    post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    upload_id TEXT NOT NULL,
    PRIMARY KEY (post_id, upload_id)
);

CREATE INDEX IF NOT EXISTS idx_posts_modified_at ON posts(modified_at);
`

package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE contents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				site TEXT NOT NULL,
				url TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				author TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				favourite BOOLEAN NOT NULL DEFAULT FALSE,
				completion INTEGER NOT NULL DEFAULT 0,
				size INTEGER NOT NULL DEFAULT 0,
				cover_url TEXT,
				download_date TIMESTAMPTZ,
				last_read_at TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_contents_site_url ON contents (site, url)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_contents_status ON contents (status)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_contents_title ON contents (title COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE attributes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				name TEXT NOT NULL,
				usage_count INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0)
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_attributes_type_name ON attributes (type, name COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE content_attributes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content_id INTEGER NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
				attribute_id INTEGER NOT NULL REFERENCES attributes (id) ON DELETE CASCADE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_content_attributes ON content_attributes (content_id, attribute_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_content_attributes_attribute_id ON content_attributes (attribute_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE image_files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				content_id INTEGER NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
				page_order INTEGER NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				uri TEXT,
				mime_type TEXT,
				size INTEGER NOT NULL DEFAULT 0,
				is_cover BOOLEAN NOT NULL DEFAULT FALSE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_image_files_content_id_status ON image_files (content_id, status)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE content_status_counts (
				status TEXT PRIMARY KEY,
				total INTEGER NOT NULL DEFAULT 0
			)
		`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"content_status_counts", "image_files", "content_attributes", "attributes", "contents"} {
			_, err := db.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}

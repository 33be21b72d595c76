package storage

// enrichmentColumns is appended to every content table.
const enrichmentColumns = `
	description               TEXT,
	full_text                 TEXT,
	ai_generated_article      TEXT,
	thumbnail_url             TEXT,
	article_generations       JSONB        NOT NULL DEFAULT '[]'::jsonb,
	citations                 JSONB        NOT NULL DEFAULT '[]'::jsonb,
	versions                  JSONB        NOT NULL DEFAULT '[]'::jsonb,
	content_hash              VARCHAR(64)  NOT NULL DEFAULT '',
	thumbnail_search_failures INTEGER      NOT NULL DEFAULT 0,
	thumbnail_searched_at     TIMESTAMPTZ,
	created_at                TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at                TIMESTAMPTZ  NOT NULL DEFAULT NOW()`

// schema is idempotent DDL for all four tables.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS bill (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	bill_number     VARCHAR(100) NOT NULL,
	source_website  VARCHAR(50)  NOT NULL,
	title           TEXT         NOT NULL,
	sponsor         VARCHAR(256),
	status          VARCHAR(100),
	introduced_date TIMESTAMPTZ,
	congress        INTEGER,
	chamber         VARCHAR(50),
	bill_type       VARCHAR(50),
	summary         TEXT,
	url             TEXT         NOT NULL,` + enrichmentColumns + `,
	UNIQUE (bill_number, source_website)
)`,

	`CREATE TABLE IF NOT EXISTS government_content (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	url            TEXT         NOT NULL UNIQUE,
	title          TEXT         NOT NULL,
	type           VARCHAR(50)  NOT NULL,
	published_date TIMESTAMPTZ  NOT NULL,
	source         VARCHAR(100) NOT NULL DEFAULT 'whitehouse.gov',` + enrichmentColumns + `
)`,

	`CREATE TABLE IF NOT EXISTS court_case (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	case_number VARCHAR(100) NOT NULL UNIQUE,
	title       TEXT         NOT NULL,
	court       VARCHAR(256) NOT NULL,
	filed_date  TIMESTAMPTZ,
	status      VARCHAR(100),
	url         TEXT         NOT NULL,` + enrichmentColumns + `
)`,

	`CREATE TABLE IF NOT EXISTS video (
	id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	content_type        VARCHAR(20)  NOT NULL,
	content_id          UUID         NOT NULL,
	title               VARCHAR(25)  NOT NULL,
	description         TEXT         NOT NULL,
	image_data          BYTEA,
	image_mime_type     VARCHAR(50),
	image_width         INTEGER,
	image_height        INTEGER,
	thumbnail_url       TEXT,
	author              VARCHAR(100),
	engagement_metrics  JSONB        NOT NULL DEFAULT '{"likes":0,"comments":0,"shares":0}'::jsonb,
	source_content_hash VARCHAR(64)  NOT NULL,
	created_at          TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	UNIQUE (content_type, content_id)
)`,

	`CREATE INDEX IF NOT EXISTS video_content_id_idx ON video (content_id)`,
	`CREATE INDEX IF NOT EXISTS video_created_at_idx ON video (created_at)`,
}

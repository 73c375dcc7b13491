package pgstore

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	url               TEXT PRIMARY KEY,
	source_domain     TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	raw_text          TEXT NOT NULL DEFAULT '',
	published_at      TIMESTAMPTZ NOT NULL,
	fetched_at        TIMESTAMPTZ NOT NULL,
	image_url         TEXT NOT NULL DEFAULT '',
	lang              TEXT NOT NULL DEFAULT '',
	content_embedding REAL[],
	content_hash      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS articles_published_at_idx ON articles (published_at DESC, url);

CREATE TABLE IF NOT EXISTS analysis_packets (
	article_url TEXT PRIMARY KEY REFERENCES articles (url),
	cluster_ids TEXT[] NOT NULL DEFAULT '{}',
	extracted   JSONB NOT NULL,
	impact      JSONB NOT NULL,
	narrative   JSONB NOT NULL,
	important   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_packets_important_idx ON analysis_packets (important);

CREATE TABLE IF NOT EXISTS assets (
	ticker TEXT PRIMARY KEY,
	label  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS allocations (
	asset_ticker       TEXT PRIMARY KEY REFERENCES assets (ticker),
	allocation_percent DOUBLE PRECISION NOT NULL CHECK (allocation_percent >= 0 AND allocation_percent <= 100)
);
`

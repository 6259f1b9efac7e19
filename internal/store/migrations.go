package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id                TEXT PRIMARY KEY,
	filename          TEXT NOT NULL,
	month             TEXT NOT NULL DEFAULT '',
	year              TEXT NOT NULL DEFAULT '',
	transaction_count INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	date_text        TEXT NOT NULL DEFAULT '',
	vendor           TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	amount           TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'found', 'manual', 'downloaded')),
	confidence       INTEGER NOT NULL DEFAULT 0,
	best_subject     TEXT NOT NULL DEFAULT '',
	invoice_filename TEXT NOT NULL DEFAULT '',
	invoice_path     TEXT NOT NULL DEFAULT '',
	vendor_id        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vendors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	keywords   TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_batch_id ON transactions(batch_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

package store

// Schema is the complete notebook DDL.
//
// Line deletion cascades are handled explicitly (delete lines, then the
// document, in one transaction) rather than through ON DELETE CASCADE, so
// the two-step unit is visible in the code path that performs it.
const Schema = `
-- Documents: the named calculation files the user edits
CREATE TABLE IF NOT EXISTS documents (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL,
    last_modified INTEGER NOT NULL,
    pinned        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_order ON documents(pinned DESC, last_modified DESC);

-- Lines: ordered entries of a document; sort_order is dense from 0 per document
CREATE TABLE IF NOT EXISTS lines (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id INTEGER NOT NULL REFERENCES documents(id),
    sort_order  INTEGER NOT NULL,
    expression  TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_lines_document ON lines(document_id, sort_order);

-- Meta: key-value state (last backup timestamp)
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

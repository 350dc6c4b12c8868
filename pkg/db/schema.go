package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Documents: one row per source URL. content_hash identifies the version.
CREATE TABLE IF NOT EXISTS documents (
    document_id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    title TEXT,
    doc_type TEXT NOT NULL,
    file_path TEXT,
    content_hash TEXT,
    file_size INTEGER NOT NULL DEFAULT 0,
    page_count INTEGER NOT NULL DEFAULT 0,

    extraction_mode TEXT NOT NULL DEFAULT 'unknown'
        CHECK (extraction_mode IN ('unknown', 'searchable', 'scanned')),
    status TEXT NOT NULL DEFAULT 'unprocessed'
        CHECK (status IN ('unprocessed', 'processed', 'failed')),
    failure_reason TEXT,          -- reason code: corrupt, empty, render, backend_unavailable, ...
    failure_message TEXT,
    attempts INTEGER NOT NULL DEFAULT 0,

    taxonomy_hash TEXT,           -- fingerprint of the taxonomy the tags were computed with
    pdf_title TEXT,
    pdf_author TEXT,
    ocr_confidence REAL,

    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    processed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

-- The extraction mode of a document version never changes once known.
-- A new content_hash is a new version and may reset it.
CREATE TRIGGER IF NOT EXISTS documents_mode_immutable
BEFORE UPDATE OF extraction_mode ON documents
WHEN OLD.extraction_mode != 'unknown'
    AND NEW.extraction_mode != OLD.extraction_mode
    AND NEW.content_hash IS OLD.content_hash
BEGIN
    SELECT RAISE(ABORT, 'extraction mode is immutable for a document version');
END;

-- Pages: normalized text per page
CREATE TABLE IF NOT EXISTS pages (
    page_id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id INTEGER NOT NULL,
    page_number INTEGER NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL CHECK (source IN ('machine', 'recognized')),
    confidence REAL,
    language TEXT,
    char_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (document_id) REFERENCES documents(document_id) ON DELETE CASCADE,
    UNIQUE(document_id, page_number)
);

CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);

-- Full-text index over page text
CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
    text,
    content='pages',
    content_rowid='page_id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS pages_ai AFTER INSERT ON pages BEGIN
    INSERT INTO pages_fts(rowid, text) VALUES (new.page_id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS pages_ad AFTER DELETE ON pages BEGIN
    INSERT INTO pages_fts(pages_fts, rowid, text) VALUES ('delete', old.page_id, old.text);
END;

CREATE TRIGGER IF NOT EXISTS pages_au AFTER UPDATE ON pages BEGIN
    INSERT INTO pages_fts(pages_fts, rowid, text) VALUES ('delete', old.page_id, old.text);
    INSERT INTO pages_fts(rowid, text) VALUES (new.page_id, new.text);
END;

-- Meeting minutes: table metadata for documents found on the meetings page
CREATE TABLE IF NOT EXISTS meeting_minutes (
    document_id INTEGER PRIMARY KEY,
    sr_no TEXT,
    meeting_date_text TEXT NOT NULL DEFAULT '',
    meeting_date TEXT,            -- YYYY-MM-DD, NULL when the listed date does not parse
    year INTEGER,
    source_page TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (document_id) REFERENCES documents(document_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_meetings_date ON meeting_minutes(meeting_date);

-- Tag assignments: derived, replaced as a set
CREATE TABLE IF NOT EXISTS tag_assignments (
    document_id INTEGER NOT NULL,
    topic TEXT NOT NULL,
    occurrences INTEGER NOT NULL,
    pages TEXT NOT NULL,          -- JSON array of page numbers
    matches TEXT NOT NULL,        -- JSON array of {pattern, regex, occurrences, pages}
    taxonomy_hash TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (document_id, topic),
    FOREIGN KEY (document_id) REFERENCES documents(document_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tags_topic ON tag_assignments(topic);
`

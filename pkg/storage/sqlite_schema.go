package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the ledger database schema.
// Money columns are TEXT holding decimal strings. Entry timestamps are
// nanosecond Unix integers so half-open window queries are exact.
const Schema = `
-- Append-only cost entries, one per completed LLM invocation
CREATE TABLE IF NOT EXISTS cost_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    total_tokens INTEGER NOT NULL,
    input_cost TEXT NOT NULL,
    output_cost TEXT NOT NULL,
    total_cost TEXT NOT NULL,
    execution_time_ms INTEGER,
    request_id TEXT,
    metadata TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_user_created ON cost_entries(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_entries_created ON cost_entries(created_at);
CREATE INDEX IF NOT EXISTS idx_entries_provider ON cost_entries(provider);

-- Budget limits; soft-deleted via active=0, never removed
CREATE TABLE IF NOT EXISTS budget_limits (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    amount TEXT NOT NULL,
    period TEXT NOT NULL,
    applies_to TEXT NOT NULL,
    thresholds TEXT NOT NULL,
    actions TEXT NOT NULL,
    created_by TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    active INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_limits_active ON budget_limits(active);

-- Admin overrides; expiry is evaluated lazily at read time
CREATE TABLE IF NOT EXISTS admin_overrides (
    id TEXT PRIMARY KEY,
    budget_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    admin_user_id TEXT,
    override_type TEXT,
    original_limit TEXT NOT NULL,
    new_limit TEXT NOT NULL,
    reason TEXT,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    active INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_overrides_pair ON admin_overrides(budget_id, user_id);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

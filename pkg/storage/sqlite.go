package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
)

// SQLiteBackend implements Backend using SQLite. Suitable for
// single-instance deployments where persistence across restarts is required.
// Uses WAL mode for better concurrent read performance.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string

	closeOnce sync.Once

	// Pre-compiled statements for the hot paths.
	insertEntryStmt   *sql.Stmt
	saveLimitStmt     *sql.Stmt
	getLimitStmt      *sql.Stmt
	saveOverrideStmt  *sql.Stmt
	listOverridesStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		SchemaVersion, time.Now().Unix())
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.insertEntryStmt, err = s.db.Prepare(`
		INSERT INTO cost_entries (
			id, user_id, session_id, provider, model,
			prompt_tokens, completion_tokens, total_tokens,
			input_cost, output_cost, total_cost,
			execution_time_ms, request_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert entry statement: %w", err)
	}

	s.saveLimitStmt, err = s.db.Prepare(`
		INSERT INTO budget_limits (
			id, name, amount, period, applies_to, thresholds, actions,
			created_by, created_at, updated_at, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			period = excluded.period,
			applies_to = excluded.applies_to,
			thresholds = excluded.thresholds,
			actions = excluded.actions,
			updated_at = excluded.updated_at,
			active = excluded.active
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save limit statement: %w", err)
	}

	s.getLimitStmt, err = s.db.Prepare(`
		SELECT id, name, amount, period, applies_to, thresholds, actions,
		       created_by, created_at, updated_at, active
		FROM budget_limits
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get limit statement: %w", err)
	}

	s.saveOverrideStmt, err = s.db.Prepare(`
		INSERT INTO admin_overrides (
			id, budget_id, user_id, admin_user_id, override_type,
			original_limit, new_limit, reason, created_at, expires_at, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			new_limit = excluded.new_limit,
			reason = excluded.reason,
			expires_at = excluded.expires_at,
			active = excluded.active
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save override statement: %w", err)
	}

	s.listOverridesStmt, err = s.db.Prepare(`
		SELECT id, budget_id, user_id, admin_user_id, override_type,
		       original_limit, new_limit, reason, created_at, expires_at, active
		FROM admin_overrides
		WHERE budget_id = ? AND user_id = ?
		ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list overrides statement: %w", err)
	}

	return nil
}

// InsertEntry appends a cost entry.
func (s *SQLiteBackend) InsertEntry(ctx context.Context, entry *costs.Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal entry metadata: %w", err)
		}
	}

	_, err := s.insertEntryStmt.ExecContext(ctx,
		entry.ID,
		entry.UserID,
		entry.SessionID,
		entry.Provider,
		entry.Model,
		entry.PromptTokens,
		entry.CompletionTokens,
		entry.TotalTokens,
		entry.InputCost.String(),
		entry.OutputCost.String(),
		entry.TotalCost.String(),
		entry.ExecutionTimeMS,
		entry.RequestID,
		nullableString(metadataJSON),
		entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}
	return nil
}

// QueryEntries returns entries matching the filter, ordered by creation time
// ascending. The query is built dynamically because the provider set varies.
func (s *SQLiteBackend) QueryEntries(ctx context.Context, filter costs.EntryFilter) ([]*costs.Entry, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Start.UnixNano())
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.End.UnixNano())
	}
	if len(filter.Providers) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Providers))
		conditions = append(conditions, fmt.Sprintf("provider IN (%s)", placeholders[:len(placeholders)-1]))
		for _, p := range filter.Providers {
			args = append(args, p)
		}
	}

	query := `
		SELECT id, user_id, session_id, provider, model,
		       prompt_tokens, completion_tokens, total_tokens,
		       input_cost, output_cost, total_cost,
		       execution_time_ms, request_id, metadata, created_at
		FROM cost_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	defer rows.Close()

	var entries []*costs.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cost entries: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (*costs.Entry, error) {
	var (
		entry        costs.Entry
		sessionID    sql.NullString
		inputCost    string
		outputCost   string
		totalCost    string
		execTime     sql.NullInt64
		requestID    sql.NullString
		metadataJSON sql.NullString
		createdAt    int64
	)

	err := rows.Scan(
		&entry.ID, &entry.UserID, &sessionID, &entry.Provider, &entry.Model,
		&entry.PromptTokens, &entry.CompletionTokens, &entry.TotalTokens,
		&inputCost, &outputCost, &totalCost,
		&execTime, &requestID, &metadataJSON, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cost entry: %w", err)
	}

	entry.SessionID = sessionID.String
	entry.RequestID = requestID.String
	entry.ExecutionTimeMS = execTime.Int64
	entry.CreatedAt = time.Unix(0, createdAt).UTC()

	if entry.InputCost, err = decimal.NewFromString(inputCost); err != nil {
		return nil, fmt.Errorf("corrupt input_cost for entry %s: %w", entry.ID, err)
	}
	if entry.OutputCost, err = decimal.NewFromString(outputCost); err != nil {
		return nil, fmt.Errorf("corrupt output_cost for entry %s: %w", entry.ID, err)
	}
	if entry.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("corrupt total_cost for entry %s: %w", entry.ID, err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for entry %s: %w", entry.ID, err)
		}
	}

	return &entry, nil
}

// SaveLimit inserts or replaces a budget limit.
func (s *SQLiteBackend) SaveLimit(ctx context.Context, limit *budget.Limit) error {
	if limit == nil {
		return fmt.Errorf("limit cannot be nil")
	}
	if limit.ID == "" {
		return fmt.Errorf("limit id cannot be empty")
	}

	appliesJSON, err := json.Marshal(limit.AppliesTo)
	if err != nil {
		return fmt.Errorf("failed to marshal applicability: %w", err)
	}
	thresholdsJSON, err := json.Marshal(limit.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	actionsJSON, err := json.Marshal(limit.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	_, err = s.saveLimitStmt.ExecContext(ctx,
		limit.ID,
		limit.Name,
		limit.Amount.String(),
		string(limit.Period),
		string(appliesJSON),
		string(thresholdsJSON),
		string(actionsJSON),
		limit.CreatedBy,
		limit.CreatedAt.UnixNano(),
		limit.UpdatedAt.UnixNano(),
		boolToInt(limit.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to save budget limit: %w", err)
	}
	return nil
}

// GetLimit returns the limit with the given ID, or nil if absent.
func (s *SQLiteBackend) GetLimit(ctx context.Context, id string) (*budget.Limit, error) {
	row := s.getLimitStmt.QueryRowContext(ctx, id)
	limit, err := scanLimit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return limit, err
}

// ListLimits returns all limits, optionally only active ones.
func (s *SQLiteBackend) ListLimits(ctx context.Context, activeOnly bool) ([]*budget.Limit, error) {
	query := `
		SELECT id, name, amount, period, applies_to, thresholds, actions,
		       created_by, created_at, updated_at, active
		FROM budget_limits`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget limits: %w", err)
	}
	defer rows.Close()

	var limits []*budget.Limit
	for rows.Next() {
		limit, err := scanLimit(rows)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budget limits: %w", err)
	}

	return limits, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanLimit(row scanner) (*budget.Limit, error) {
	var (
		limit          budget.Limit
		amount         string
		period         string
		appliesJSON    string
		thresholdsJSON string
		actionsJSON    string
		createdBy      sql.NullString
		createdAt      int64
		updatedAt      int64
		active         int
	)

	err := row.Scan(
		&limit.ID, &limit.Name, &amount, &period, &appliesJSON,
		&thresholdsJSON, &actionsJSON, &createdBy, &createdAt, &updatedAt, &active,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan budget limit: %w", err)
	}

	limit.Period = budget.Period(period)
	limit.CreatedBy = createdBy.String
	limit.CreatedAt = time.Unix(0, createdAt).UTC()
	limit.UpdatedAt = time.Unix(0, updatedAt).UTC()
	limit.Active = active != 0

	if limit.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount for limit %s: %w", limit.ID, err)
	}
	if err := json.Unmarshal([]byte(appliesJSON), &limit.AppliesTo); err != nil {
		return nil, fmt.Errorf("corrupt applicability for limit %s: %w", limit.ID, err)
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &limit.Thresholds); err != nil {
		return nil, fmt.Errorf("corrupt thresholds for limit %s: %w", limit.ID, err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &limit.Actions); err != nil {
		return nil, fmt.Errorf("corrupt actions for limit %s: %w", limit.ID, err)
	}

	return &limit, nil
}

// SaveOverride inserts or replaces an admin override.
func (s *SQLiteBackend) SaveOverride(ctx context.Context, override *budget.Override) error {
	if override == nil {
		return fmt.Errorf("override cannot be nil")
	}
	if override.ID == "" {
		return fmt.Errorf("override id cannot be empty")
	}

	var expiresAt any
	if override.ExpiresAt != nil {
		expiresAt = override.ExpiresAt.UnixNano()
	}

	_, err := s.saveOverrideStmt.ExecContext(ctx,
		override.ID,
		override.BudgetID,
		override.UserID,
		override.AdminUserID,
		override.Type,
		override.OriginalLimit.String(),
		override.NewLimit.String(),
		override.Reason,
		override.CreatedAt.UnixNano(),
		expiresAt,
		boolToInt(override.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to save admin override: %w", err)
	}
	return nil
}

// ListOverrides returns all overrides for a (budget, user) pair.
func (s *SQLiteBackend) ListOverrides(ctx context.Context, budgetID, userID string) ([]*budget.Override, error) {
	rows, err := s.listOverridesStmt.QueryContext(ctx, budgetID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*budget.Override
	for rows.Next() {
		var (
			override      budget.Override
			adminUserID   sql.NullString
			overrideType  sql.NullString
			originalLimit string
			newLimit      string
			reason        sql.NullString
			createdAt     int64
			expiresAt     sql.NullInt64
			active        int
		)

		err := rows.Scan(
			&override.ID, &override.BudgetID, &override.UserID, &adminUserID,
			&overrideType, &originalLimit, &newLimit, &reason,
			&createdAt, &expiresAt, &active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin override: %w", err)
		}

		override.AdminUserID = adminUserID.String
		override.Type = overrideType.String
		override.Reason = reason.String
		override.CreatedAt = time.Unix(0, createdAt).UTC()
		override.Active = active != 0
		if expiresAt.Valid {
			expires := time.Unix(0, expiresAt.Int64).UTC()
			override.ExpiresAt = &expires
		}

		if override.OriginalLimit, err = decimal.NewFromString(originalLimit); err != nil {
			return nil, fmt.Errorf("corrupt original_limit for override %s: %w", override.ID, err)
		}
		if override.NewLimit, err = decimal.NewFromString(newLimit); err != nil {
			return nil, fmt.Errorf("corrupt new_limit for override %s: %w", override.ID, err)
		}

		overrides = append(overrides, &override)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin overrides: %w", err)
	}

	return overrides, nil
}

// Close releases the database handle. Safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{
			s.insertEntryStmt, s.saveLimitStmt, s.getLimitStmt,
			s.saveOverrideStmt, s.listOverridesStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements both persistence contracts - ledger.Store for expense
  records and group.Store for group/membership state - on SQLite. The
  same patterns apply to PostgreSQL with only dialect differences.

KEY TABLES:
  groups:        Group records with a membership version counter
  group_members: Authoritative membership relation, ordered by join
  expenses:      The ledger (organic expenses + settlement entries)

AMOUNT ENCODING:
  Amounts are stored as exact decimal strings, never floats. The
  balance calculator re-parses them with shopspring/decimal, so no
  precision is lost on the round trip.

OPTIMISTIC MEMBERSHIP UPDATES:
  UpdateMembers runs in a database transaction: it re-reads the
  version, compares it to the caller's expectation, and fails with
  ledger.ErrConcurrentModification on a mismatch. This backs the
  coordinator's gate-then-mutate re-check.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Expense store contract
  - group/store.go: Group store contract
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
)

// Store implements ledger.Store and group.Store using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.Store = (*Store)(nil)
	_ group.Store  = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_by TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id),
		FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		incurred_at TEXT NOT NULL,
		is_settlement INTEGER NOT NULL DEFAULT 0,
		payee_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_group ON expenses(group_id, incurred_at);
	CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_id, position);
	CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE - Expense persistence
// =============================================================================

const expenseColumns = `id, group_id, payer_id, amount, currency, category, title, description, incurred_at, is_settlement, payee_id, created_at`

// ListExpenses returns the group's expenses ordered by incurred_at.
// Ordering is a convenience; the balance calculator does not rely on it.
func (s *Store) ListExpenses(ctx context.Context, groupID ledger.GroupID) ([]ledger.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ? ORDER BY incurred_at`,
		string(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// GetExpense retrieves a single expense by id.
func (s *Store) GetExpense(ctx context.Context, id ledger.ExpenseID) (*ledger.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, string(id))
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "expense", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordExpense validates and persists an expense, assigning its ID
// and CreatedAt when unset.
func (s *Store) RecordExpense(ctx context.Context, e *ledger.Expense) (ledger.ExpenseID, error) {
	if err := ledger.ValidateExpense(e); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = ledger.ExpenseID(uuid.New().String())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.IncurredAt.IsZero() {
		e.IncurredAt = e.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.GroupID), string(e.PayerID),
		e.Amount.Value.String(), string(e.Amount.Currency),
		e.Category, e.Title, e.Description,
		e.IncurredAt.UTC().Format(time.RFC3339Nano),
		boolToInt(e.IsSettlement), string(e.PayeeID),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert expense: %w", err)
	}
	return e.ID, nil
}

// DeleteExpense removes an expense. Deleting an absent expense is a
// no-op success so deletion stays idempotent.
func (s *Store) DeleteExpense(ctx context.Context, id ledger.ExpenseID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (ledger.Expense, error) {
	var (
		e                     ledger.Expense
		id, groupID, payerID  string
		amount, currency      string
		description           sql.NullString
		incurredAt, createdAt string
		isSettlement          int
		payeeID               string
	)
	err := row.Scan(&id, &groupID, &payerID, &amount, &currency,
		&e.Category, &e.Title, &description, &incurredAt, &isSettlement, &payeeID, &createdAt)
	if err != nil {
		return ledger.Expense{}, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("corrupt amount for expense %s: %w", id, err)
	}
	e.ID = ledger.ExpenseID(id)
	e.GroupID = ledger.GroupID(groupID)
	e.PayerID = ledger.UserID(payerID)
	e.Amount = ledger.NewAmountFromDecimal(value, ledger.Currency(currency))
	e.Description = description.String
	e.IsSettlement = isSettlement != 0
	e.PayeeID = ledger.UserID(payeeID)
	if e.IncurredAt, err = time.Parse(time.RFC3339Nano, incurredAt); err != nil {
		return ledger.Expense{}, fmt.Errorf("corrupt incurred_at for expense %s: %w", id, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return ledger.Expense{}, fmt.Errorf("corrupt created_at for expense %s: %w", id, err)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// GROUP STORE - Group and membership persistence
// =============================================================================

// CreateGroup persists a group and its initial member set.
func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	if g.ID == "" {
		g.ID = ledger.GroupID(uuid.New().String())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, currency, created_by, version, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		string(g.ID), g.Name, string(g.Currency), string(g.CreatedBy),
		g.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	if err := insertMembers(ctx, tx, g.ID, g.MemberIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGroup retrieves a group with its ordered member set.
func (s *Store) GetGroup(ctx context.Context, id ledger.GroupID) (*group.Group, error) {
	g := &group.Group{}
	var gid, currency, createdBy, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, currency, created_by, version, created_at FROM groups WHERE id = ?`,
		string(id),
	).Scan(&gid, &g.Name, &currency, &createdBy, &g.Version, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "group", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.ID = ledger.GroupID(gid)
	g.Currency = ledger.Currency(currency)
	g.CreatedBy = ledger.UserID(createdBy)
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for group %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		g.MemberIDs = append(g.MemberIDs, ledger.UserID(userID))
	}
	return g, rows.Err()
}

// ListGroupsByMember returns all groups the user belongs to.
func (s *Store) ListGroupsByMember(ctx context.Context, userID ledger.UserID) ([]*group.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = ?`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups by member: %w", err)
	}
	defer rows.Close()

	var ids []ledger.GroupID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, ledger.GroupID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]*group.Group, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// UpdateMembers replaces the member set behind an optimistic version
// check, all within one database transaction.
func (s *Store) UpdateMembers(ctx context.Context, id ledger.GroupID, expectedVersion int, memberIDs []ledger.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `SELECT version FROM groups WHERE id = ?`, string(id)).Scan(&version)
	if err == sql.ErrNoRows {
		return &ledger.NotFoundError{Kind: "group", ID: string(id)}
	}
	if err != nil {
		return fmt.Errorf("failed to read group version: %w", err)
	}
	if version != expectedVersion {
		return ledger.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if err := insertMembers(ctx, tx, id, memberIDs); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE groups SET version = version + 1 WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to bump version: %w", err)
	}
	return tx.Commit()
}

// DeleteGroup removes the group record; membership rows cascade.
// Idempotent.
func (s *Store) DeleteGroup(ctx context.Context, id ledger.GroupID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, id ledger.GroupID, memberIDs []ledger.UserID) error {
	for i, userID := range memberIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, position) VALUES (?, ?, ?)`,
			string(id), string(userID), i)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

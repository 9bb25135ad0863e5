package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
	"github.com/fatali-fataliyev/envelope_budget/logging"
)

const (
	StorageTypeMySQL    = "mysql"
	StorageTypeSQLite   = "sqlite"
	StorageTypeInMemory = "inmemory"
)

// dialect holds the few statements that differ between MySQL and SQLite.
type dialect struct {
	name             string
	forUpdate        string
	upsertAssignment string
	upsertTarget     string
	isDuplicate      func(err error) bool
	isLockConflict   func(err error) bool
}

// SQLStorage implements budget.Storage on top of database/sql.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) GetStorageType() string {
	return s.dialect.name
}

func internalError(ctx context.Context, where string, err error, message string) error {
	logging.Logger.Errorf("[TraceID=%s] | failed in Storage.%s() | Error: %v", contextutil.TraceIDFromContext(ctx), where, err)
	return appErrors.New(appErrors.ErrInternal, "%s", message)
}

// txError reports a write transaction that lost a lock race as CONCURRENT
// MODIFICATION; anything else is internal.
func (s *SQLStorage) txError(ctx context.Context, where string, err error, message string) error {
	if s.dialect.isLockConflict != nil && s.dialect.isLockConflict(err) {
		logging.Logger.Warnf("[TraceID=%s] | lock conflict in Storage.%s() | Error: %v", contextutil.TraceIDFromContext(ctx), where, err)
		return appErrors.New(appErrors.ErrConcurrentModification, "The budget was changed by another request, reload it and try again.")
	}
	return internalError(ctx, where, err, message)
}

// lockCategory locks the owner's category row for the rest of tx, or reports
// NOT FOUND when it no longer exists.
func (s *SQLStorage) lockCategory(ctx context.Context, tx *sql.Tx, where string, ownerID string, categoryID string) error {
	var id string
	query := "SELECT id FROM category WHERE id = ? AND owner_id = ?" + s.dialect.forUpdate + ";"
	err := tx.QueryRowContext(ctx, query, categoryID, ownerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	if err != nil {
		return s.txError(ctx, where, err, "Failed to check the category, try again later.")
	}
	return nil
}

// --- GROUPS --- //

func (s *SQLStorage) SaveCategoryGroup(ctx context.Context, group budget.CategoryGroup) error {
	query := "INSERT INTO category_group (id, owner_id, name, position, created_at) VALUES (?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query, group.ID, group.OwnerID, group.Name, group.Position, toMillis(group.CreatedAt))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return appErrors.New(appErrors.ErrConflict, "The category group already exists.")
		}
		return internalError(ctx, "SaveCategoryGroup", err, "Failed to save the category group, try again later.")
	}
	return nil
}

func (s *SQLStorage) ListCategoryGroups(ctx context.Context, ownerID string) ([]budget.CategoryGroup, error) {
	query := "SELECT id, owner_id, name, position, created_at FROM category_group WHERE owner_id = ? ORDER BY position, name;"
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, internalError(ctx, "ListCategoryGroups", err, "Failed to get category groups, try again later.")
	}
	defer rows.Close()

	var groups []budget.CategoryGroup
	for rows.Next() {
		var g budget.CategoryGroup
		var createdAt int64
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Position, &createdAt); err != nil {
			return nil, internalError(ctx, "ListCategoryGroups", err, "Failed to get category groups, try again later.")
		}
		g.CreatedAt = fromMillis(createdAt)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListCategoryGroups", err, "Failed to get category groups, try again later.")
	}
	return groups, nil
}

// --- CATEGORIES --- //

const categorySelect = `SELECT c.id, c.owner_id, c.group_id, c.name, c.position, c.created_month, c.created_at, c.updated_at,
	t.type, t.amount, t.day_of_month, t.target_month, t.refill_type, t.start_month
	FROM category c LEFT JOIN category_target t ON t.category_id = c.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (budget.Category, error) {
	var (
		dbC          dbCategory
		dbT          dbTarget
		createdMonth string
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(
		&dbC.ID, &dbC.OwnerID, &dbC.GroupID, &dbC.Name, &dbC.Position, &createdMonth, &createdAt, &updatedAt,
		&dbT.Type, &dbT.Amount, &dbT.DayOfMonth, &dbT.TargetMonth, &dbT.RefillType, &dbT.StartMonth,
	)
	if err != nil {
		return budget.Category{}, err
	}

	category := budget.Category{
		ID:        dbC.ID,
		OwnerID:   dbC.OwnerID,
		GroupID:   dbC.GroupID,
		Name:      dbC.Name,
		Position:  dbC.Position,
		CreatedAt: fromMillis(createdAt),
		UpdatedAt: fromMillis(updatedAt),
	}
	if category.CreatedMonth, err = parseOptionalMonth(createdMonth); err != nil {
		return budget.Category{}, err
	}
	if category.Target, err = dbT.toTarget(); err != nil {
		return budget.Category{}, err
	}
	return category, nil
}

func (s *SQLStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	query := "INSERT INTO category (id, owner_id, group_id, name, position, created_month, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query,
		category.ID, category.OwnerID, category.GroupID, category.Name, category.Position,
		category.CreatedMonth.String(), toMillis(category.CreatedAt), toMillis(category.UpdatedAt))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return appErrors.New(appErrors.ErrConflict, "The category already exists.")
		}
		return internalError(ctx, "SaveCategory", err, "Failed to save the category, try again later.")
	}
	return nil
}

func (s *SQLStorage) GetCategory(ctx context.Context, categoryID string) (budget.Category, error) {
	category, err := scanCategory(s.db.QueryRowContext(ctx, categorySelect+" WHERE c.id = ?;", categoryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Category{}, appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
		}
		return budget.Category{}, internalError(ctx, "GetCategory", err, "Failed to get the category, try again later.")
	}
	return category, nil
}

func (s *SQLStorage) ListCategories(ctx context.Context, ownerID string) ([]budget.Category, error) {
	rows, err := s.db.QueryContext(ctx, categorySelect+" WHERE c.owner_id = ? ORDER BY c.position, c.name;", ownerID)
	if err != nil {
		return nil, internalError(ctx, "ListCategories", err, "Failed to get categories, try again later.")
	}
	defer rows.Close()

	var categories []budget.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, internalError(ctx, "ListCategories", err, "Failed to get categories, try again later.")
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListCategories", err, "Failed to get categories, try again later.")
	}
	return categories, nil
}

func (s *SQLStorage) UpdateCategory(ctx context.Context, category budget.Category) error {
	query := "UPDATE category SET name = ?, group_id = ?, position = ?, updated_at = ? WHERE id = ? AND owner_id = ?;"
	res, err := s.db.ExecContext(ctx, query,
		category.Name, category.GroupID, category.Position, toMillis(category.UpdatedAt), category.ID, category.OwnerID)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return appErrors.New(appErrors.ErrConflict, "A category with this name already exists.")
		}
		return internalError(ctx, "UpdateCategory", err, "Failed to update the category, try again later.")
	}
	return requireAffected(ctx, res, "UpdateCategory", category.ID)
}

func (s *SQLStorage) DeleteCategory(ctx context.Context, ownerID string, categoryID string) error {
	const failed = "Failed to delete the category, try again later."
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalError(ctx, "DeleteCategory", err, failed)
	}
	defer tx.Rollback()

	if err := s.lockCategory(ctx, tx, "DeleteCategory", ownerID, categoryID); err != nil {
		return err
	}

	var funded int
	query := "SELECT COUNT(*) FROM assignment WHERE owner_id = ? AND category_id = ? AND amount <> 0;"
	if err := tx.QueryRowContext(ctx, query, ownerID, categoryID).Scan(&funded); err != nil {
		return s.txError(ctx, "DeleteCategory", err, failed)
	}
	if funded > 0 {
		return appErrors.New(appErrors.ErrConflict, "category still has assigned money, move it to another category before deleting")
	}

	statements := []string{
		"DELETE FROM category_target WHERE category_id = ? AND owner_id = ?;",
		"DELETE FROM assignment WHERE category_id = ? AND owner_id = ?;",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, categoryID, ownerID); err != nil {
			return s.txError(ctx, "DeleteCategory", err, failed)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM category WHERE id = ? AND owner_id = ?;", categoryID, ownerID)
	if err != nil {
		return s.txError(ctx, "DeleteCategory", err, failed)
	}
	if err := requireAffected(ctx, res, "DeleteCategory", categoryID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.txError(ctx, "DeleteCategory", err, failed)
	}
	return nil
}

func requireAffected(ctx context.Context, res sql.Result, where string, categoryID string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return internalError(ctx, where, err, "Failed to check affected rows, try again later.")
	}
	if rowsAffected == 0 {
		return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	return nil
}

// --- TARGETS --- //

func (s *SQLStorage) SaveTarget(ctx context.Context, ownerID string, categoryID string, target budget.Target) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertTarget,
		categoryID, ownerID, string(target.Type), int64(target.Amount), target.DayOfMonth,
		formatOptionalMonth(target.TargetMonth), string(target.RefillType), formatOptionalMonth(target.StartMonth))
	if err != nil {
		return internalError(ctx, "SaveTarget", err, "Failed to save the target, try again later.")
	}
	return nil
}

func (s *SQLStorage) DeleteTarget(ctx context.Context, ownerID string, categoryID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM category_target WHERE category_id = ? AND owner_id = ?;", categoryID, ownerID)
	if err != nil {
		return internalError(ctx, "DeleteTarget", err, "Failed to delete the target, try again later.")
	}
	return nil
}

// --- TRANSACTIONS --- //

func (s *SQLStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	query := "INSERT INTO budget_transaction (id, owner_id, account_id, category_id, amount, occurred_at, cleared, note, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.AccountID, t.CategoryID, int64(t.Amount), toMillis(t.Date), t.Cleared, t.Note, toMillis(t.CreatedAt))
	if err != nil {
		return internalError(ctx, "SaveTransaction", err, "Failed to save the transaction, try again later.")
	}
	return nil
}

func (s *SQLStorage) ListTransactions(ctx context.Context, ownerID string, from, to time.Time) ([]budget.Transaction, error) {
	var (
		conditions = []string{"owner_id = ?", "occurred_at <= ?"}
		args       = []any{ownerID, toMillis(to)}
	)
	if !from.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, toMillis(from))
	}
	query := "SELECT id, owner_id, account_id, category_id, amount, occurred_at, cleared, note, created_at FROM budget_transaction WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY occurred_at, id;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalError(ctx, "ListTransactions", err, "Failed to get transactions, try again later.")
	}
	defer rows.Close()

	var transactions []budget.Transaction
	for rows.Next() {
		var (
			t          budget.Transaction
			amount     int64
			occurredAt int64
			createdAt  int64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.AccountID, &t.CategoryID, &amount, &occurredAt, &t.Cleared, &t.Note, &createdAt); err != nil {
			return nil, internalError(ctx, "ListTransactions", err, "Failed to get transactions, try again later.")
		}
		t.Amount = money.Money(amount)
		t.Date = fromMillis(occurredAt)
		t.CreatedAt = fromMillis(createdAt)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListTransactions", err, "Failed to get transactions, try again later.")
	}
	return transactions, nil
}

func (s *SQLStorage) CountCategoryTransactions(ctx context.Context, ownerID string, categoryID string) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM budget_transaction WHERE owner_id = ? AND category_id = ?;"
	if err := s.db.QueryRowContext(ctx, query, ownerID, categoryID).Scan(&count); err != nil {
		return 0, internalError(ctx, "CountCategoryTransactions", err, "Failed to count transactions, try again later.")
	}
	return count, nil
}

// --- ASSIGNMENTS --- //

func (s *SQLStorage) LoadAssignments(ctx context.Context, ownerID string) (*budget.Assignments, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category_id, month, amount FROM assignment WHERE owner_id = ?;", ownerID)
	if err != nil {
		return nil, internalError(ctx, "LoadAssignments", err, "Failed to get assignments, try again later.")
	}
	defer rows.Close()

	var records []budget.Assignment
	for rows.Next() {
		var (
			a      budget.Assignment
			month  string
			amount int64
		)
		if err := rows.Scan(&a.CategoryID, &month, &amount); err != nil {
			return nil, internalError(ctx, "LoadAssignments", err, "Failed to get assignments, try again later.")
		}
		if a.Month, err = budget.ParseMonth(month); err != nil {
			return nil, internalError(ctx, "LoadAssignments", err, "Failed to get assignments, try again later.")
		}
		a.Amount = money.Money(amount)
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "LoadAssignments", err, "Failed to get assignments, try again later.")
	}
	return budget.NewAssignments(records...), nil
}

// ApplyAssignments checks every category and expectation and writes every
// value inside one database transaction.
func (s *SQLStorage) ApplyAssignments(ctx context.Context, ownerID string, writes []budget.AssignmentWrite) error {
	const failed = "Failed to save assignments, try again later."
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalError(ctx, "ApplyAssignments", err, failed)
	}
	defer tx.Rollback()

	locked := make(map[string]bool, len(writes))
	for _, w := range writes {
		if locked[w.CategoryID] {
			continue
		}
		if err := s.lockCategory(ctx, tx, "ApplyAssignments", ownerID, w.CategoryID); err != nil {
			return err
		}
		locked[w.CategoryID] = true
	}

	selectQuery := "SELECT amount FROM assignment WHERE owner_id = ? AND category_id = ? AND month = ?" + s.dialect.forUpdate + ";"
	for _, w := range writes {
		var current int64
		err := tx.QueryRowContext(ctx, selectQuery, ownerID, w.CategoryID, w.Month.String()).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return s.txError(ctx, "ApplyAssignments", err, failed)
		}
		if money.Money(current) != w.Expected {
			return budget.ErrAssignmentChanged(w, money.Money(current))
		}
	}

	for _, w := range writes {
		if _, err := tx.ExecContext(ctx, s.dialect.upsertAssignment, ownerID, w.CategoryID, w.Month.String(), int64(w.Amount)); err != nil {
			return s.txError(ctx, "ApplyAssignments", err, failed)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.txError(ctx, "ApplyAssignments", err, failed)
	}
	return nil
}

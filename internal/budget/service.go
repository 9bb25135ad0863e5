package budget

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
	"github.com/fatali-fataliyev/envelope_budget/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	MAX_ASSIGNED_AMOUNT_LIMIT    = money.Money(999999999999999)
	MAX_TRANSACTION_AMOUNT_LIMIT = money.Money(999999999999999)
	MAX_CATEGORY_NAME_LENGTH     = 255
	MAX_TRANSACTION_NOTE_LENGTH  = 1000
)

// Storage is the persistence port of the engine. Reads of a missing entity
// return a NOT FOUND error; reads of absent budgeting data return zero values.
type Storage interface {
	SaveCategoryGroup(ctx context.Context, group CategoryGroup) error
	ListCategoryGroups(ctx context.Context, ownerID string) ([]CategoryGroup, error)
	SaveCategory(ctx context.Context, category Category) error
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, ownerID string, categoryID string) error
	ListCategories(ctx context.Context, ownerID string) ([]Category, error)
	SaveTarget(ctx context.Context, ownerID string, categoryID string, target Target) error
	DeleteTarget(ctx context.Context, ownerID string, categoryID string) error
	SaveTransaction(ctx context.Context, t Transaction) error
	// ListTransactions returns the owner's transactions dated in [from, to]; a
	// zero from means "since the beginning".
	ListTransactions(ctx context.Context, ownerID string, from, to time.Time) ([]Transaction, error)
	CountCategoryTransactions(ctx context.Context, ownerID string, categoryID string) (int, error)
	// LoadAssignments returns a consistent snapshot of every assignment of the owner.
	LoadAssignments(ctx context.Context, ownerID string) (*Assignments, error)
	// ApplyAssignments applies all writes in one transaction. If any stored
	// value differs from its write's Expected, nothing is written and a
	// CONCURRENT MODIFICATION error is returned. A write for a category the
	// owner no longer has fails the whole batch with NOT FOUND.
	ApplyAssignments(ctx context.Context, ownerID string, writes []AssignmentWrite) error
	GetStorageType() string
}

type BudgetTracker struct {
	storage     Storage
	publisher   Publisher
	StorageType string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewBudgetTracker(s Storage, p Publisher) *BudgetTracker {
	if p == nil {
		p = noopPublisher{}
	}
	return &BudgetTracker{
		storage:     s,
		publisher:   p,
		StorageType: s.GetStorageType(),
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockOwner serializes read-modify-write operations of one owner. Other
// owners and pure reads are not blocked.
func (bt *BudgetTracker) lockOwner(ownerID string) func() {
	bt.locksMu.Lock()
	l, ok := bt.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		bt.locks[ownerID] = l
	}
	bt.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// --- BUDGET --- //

func (bt *BudgetTracker) GetBudget(ctx context.Context, ownerID string, month Month) (BudgetView, error) {
	if ownerID == "" {
		return BudgetView{}, appErrors.New(appErrors.ErrNotFound, "owner is required")
	}

	var (
		groups     []CategoryGroup
		categories []Category
		snapshot   *Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		groups, err = bt.storage.ListCategoryGroups(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to list category groups: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = bt.storage.ListCategories(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		snapshot, err = bt.loadSnapshot(gctx, ownerID, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return BudgetView{}, err
	}

	view := BudgetView{
		Month:          month,
		ReadyToAssign:  snapshot.ReadyToAssign(month),
		CategoryGroups: groupBudgets(groups, categories, snapshot, month),
	}

	if view.ReadyToAssign < 0 {
		logging.Logger.Warnf("[TraceID=%s] | owner %s over-assigned %s: ready to assign is %s",
			contextutil.TraceIDFromContext(ctx), ownerID, month, view.ReadyToAssign)
	}
	return view, nil
}

func groupBudgets(groups []CategoryGroup, categories []Category, snapshot *Snapshot, month Month) []GroupBudget {
	groups = slices.Clone(groups)
	slices.SortStableFunc(groups, func(a, b CategoryGroup) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.Name, b.Name)
	})
	categories = slices.Clone(categories)
	slices.SortStableFunc(categories, func(a, b Category) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.Name, b.Name)
	})

	byGroup := make(map[string][]CategoryBudgetData, len(groups))
	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}
	var orphans []CategoryBudgetData
	for _, c := range categories {
		data := snapshot.CategoryData(c, month)
		if known[c.GroupID] {
			byGroup[c.GroupID] = append(byGroup[c.GroupID], data)
		} else {
			orphans = append(orphans, data)
		}
	}

	result := make([]GroupBudget, 0, len(groups)+1)
	for _, g := range groups {
		budgets := byGroup[g.ID]
		if budgets == nil {
			budgets = []CategoryBudgetData{}
		}
		result = append(result, GroupBudget{Group: g, Budgets: budgets})
	}
	if len(orphans) > 0 {
		result = append(result, GroupBudget{Group: CategoryGroup{Name: "Ungrouped", Position: len(groups)}, Budgets: orphans})
	}
	return result
}

func (bt *BudgetTracker) loadSnapshot(ctx context.Context, ownerID string, through Month) (*Snapshot, error) {
	var (
		txns        []Transaction
		assignments *Assignments
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = bt.storage.ListTransactions(gctx, ownerID, time.Time{}, through.LastDay())
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		assignments, err = bt.storage.LoadAssignments(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to load assignments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSnapshot(txns, assignments), nil
}

func (bt *BudgetTracker) ownedCategory(ctx context.Context, ownerID string, categoryID string) (Category, error) {
	category, err := bt.storage.GetCategory(ctx, categoryID)
	if err != nil {
		return Category{}, err
	}
	if category.OwnerID != ownerID {
		return Category{}, appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	return category, nil
}

func (bt *BudgetTracker) SetAssigned(ctx context.Context, ownerID string, categoryID string, month Month, amount money.Money) (CategoryBudgetData, error) {
	if amount.Abs() > MAX_ASSIGNED_AMOUNT_LIMIT {
		return CategoryBudgetData{}, appErrors.New(appErrors.ErrInvalidAmount, "assigned amount is too large, the limit is: %d", MAX_ASSIGNED_AMOUNT_LIMIT)
	}

	unlock := bt.lockOwner(ownerID)
	defer unlock()

	category, err := bt.ownedCategory(ctx, ownerID, categoryID)
	if err != nil {
		return CategoryBudgetData{}, fmt.Errorf("failed to set assigned: %w", err)
	}

	snapshot, err := bt.loadSnapshot(ctx, ownerID, month)
	if err != nil {
		return CategoryBudgetData{}, err
	}

	write := AssignmentWrite{
		CategoryID: categoryID,
		Month:      month,
		Expected:   snapshot.assignments.Get(categoryID, month),
		Amount:     amount,
	}
	if err := bt.storage.ApplyAssignments(ctx, ownerID, []AssignmentWrite{write}); err != nil {
		return CategoryBudgetData{}, fmt.Errorf("failed to save assigned amount: %w", err)
	}

	updated := snapshot.assignments.Clone()
	if err := updated.Apply([]AssignmentWrite{write}); err != nil {
		return CategoryBudgetData{}, err
	}
	after := snapshot.withAssignments(updated)

	bt.publish(ctx, Event{
		Type:       EventAssignmentSet,
		OwnerID:    ownerID,
		CategoryID: categoryID,
		Month:      month,
		Amount:     amount,
	})

	return after.CategoryData(category, month), nil
}

func (bt *BudgetTracker) MoveMoney(ctx context.Context, ownerID string, sourceID string, destID string, month Month, amount money.Money) (MoveResult, error) {
	if amount <= 0 {
		return MoveResult{}, appErrors.New(appErrors.ErrInvalidAmount, "amount to move must be greater than 0")
	}
	if sourceID == destID {
		return MoveResult{}, appErrors.New(appErrors.ErrInvalidInput, "source and destination categories must differ")
	}

	unlock := bt.lockOwner(ownerID)
	defer unlock()

	source, err := bt.storage.GetCategory(ctx, sourceID)
	if err != nil {
		return MoveResult{}, fmt.Errorf("failed to find source category: %w", err)
	}
	dest, err := bt.storage.GetCategory(ctx, destID)
	if err != nil {
		return MoveResult{}, fmt.Errorf("failed to find destination category: %w", err)
	}
	switch {
	case source.OwnerID != ownerID && dest.OwnerID != ownerID:
		return MoveResult{}, appErrors.New(appErrors.ErrNotFound, "categories %s and %s do not exist", sourceID, destID)
	case source.OwnerID != ownerID || dest.OwnerID != ownerID:
		return MoveResult{}, appErrors.New(appErrors.ErrCrossOwnerOperation, "both categories must belong to the same budget owner")
	}

	snapshot, err := bt.loadSnapshot(ctx, ownerID, month)
	if err != nil {
		return MoveResult{}, err
	}

	writes, mode, err := PlanMove(snapshot.assignments, sourceID, destID, month, snapshot.Available(sourceID, month), amount)
	if err != nil {
		return MoveResult{}, err
	}
	if err := bt.storage.ApplyAssignments(ctx, ownerID, writes); err != nil {
		return MoveResult{}, fmt.Errorf("failed to move money: %w", err)
	}

	updated := snapshot.assignments.Clone()
	if err := updated.Apply(writes); err != nil {
		return MoveResult{}, err
	}
	after := snapshot.withAssignments(updated)

	logging.Logger.Infof("[TraceID=%s] | moved %s from %s to %s in %s (%s)",
		contextutil.TraceIDFromContext(ctx), amount, sourceID, destID, month, mode)

	bt.publish(ctx, Event{
		Type:          EventMoneyMoved,
		OwnerID:       ownerID,
		CategoryID:    sourceID,
		DestinationID: destID,
		Month:         month,
		Amount:        amount,
		Mode:          mode,
	})

	return MoveResult{
		Mode:   mode,
		Source: after.CategoryData(source, month),
		Dest:   after.CategoryData(dest, month),
	}, nil
}

// --- TARGETS --- //

func (bt *BudgetTracker) SetTarget(ctx context.Context, ownerID string, categoryID string, target Target) error {
	if target.Type == TargetMonthly && target.RefillType == "" {
		target.RefillType = RefillReset
	}
	if err := target.Validate(); err != nil {
		return err
	}

	unlock := bt.lockOwner(ownerID)
	defer unlock()

	category, err := bt.ownedCategory(ctx, ownerID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to set target: %w", err)
	}
	if target.StartMonth.IsZero() {
		target.StartMonth = category.CreatedMonth
	}

	if err := bt.storage.SaveTarget(ctx, ownerID, categoryID, target); err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}

	bt.publish(ctx, Event{
		Type:       EventTargetSet,
		OwnerID:    ownerID,
		CategoryID: categoryID,
		Month:      target.StartMonth,
		Amount:     target.Amount,
	})
	return nil
}

func (bt *BudgetTracker) ClearTarget(ctx context.Context, ownerID string, categoryID string) error {
	unlock := bt.lockOwner(ownerID)
	defer unlock()

	if _, err := bt.ownedCategory(ctx, ownerID, categoryID); err != nil {
		return fmt.Errorf("failed to clear target: %w", err)
	}
	if err := bt.storage.DeleteTarget(ctx, ownerID, categoryID); err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	bt.publish(ctx, Event{
		Type:       EventTargetCleared,
		OwnerID:    ownerID,
		CategoryID: categoryID,
	})
	return nil
}

// --- CATEGORIES --- //

func (bt *BudgetTracker) CreateGroup(ctx context.Context, ownerID string, req CategoryGroupRequest) (CategoryGroup, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return CategoryGroup{}, appErrors.New(appErrors.ErrInvalidInput, "group name is empty")
	}
	if len(name) > MAX_CATEGORY_NAME_LENGTH {
		return CategoryGroup{}, appErrors.New(appErrors.ErrInvalidInput, "group name is too long, the limit is: %d", MAX_CATEGORY_NAME_LENGTH)
	}

	group := CategoryGroup{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Position:  req.Position,
		CreatedAt: time.Now().UTC(),
	}
	if err := bt.storage.SaveCategoryGroup(ctx, group); err != nil {
		return CategoryGroup{}, fmt.Errorf("failed to save category group: %w", err)
	}
	return group, nil
}

func (bt *BudgetTracker) CreateCategory(ctx context.Context, ownerID string, req CategoryRequest) (Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Category{}, appErrors.New(appErrors.ErrInvalidInput, "category name is empty")
	}
	if len(name) > MAX_CATEGORY_NAME_LENGTH {
		return Category{}, appErrors.New(appErrors.ErrInvalidInput, "category name is too long, the limit is: %d", MAX_CATEGORY_NAME_LENGTH)
	}
	if err := bt.checkGroup(ctx, ownerID, req.GroupID); err != nil {
		return Category{}, err
	}

	now := time.Now().UTC()
	category := Category{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		GroupID:      req.GroupID,
		Name:         name,
		Position:     req.Position,
		CreatedMonth: MonthOf(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := bt.storage.SaveCategory(ctx, category); err != nil {
		return Category{}, fmt.Errorf("failed to save category: %w", err)
	}
	return category, nil
}

func (bt *BudgetTracker) checkGroup(ctx context.Context, ownerID string, groupID string) error {
	groups, err := bt.storage.ListCategoryGroups(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to list category groups: %w", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return nil
		}
	}
	return appErrors.New(appErrors.ErrNotFound, "category group %s does not exist", groupID)
}

func (bt *BudgetTracker) UpdateCategory(ctx context.Context, ownerID string, req UpdateCategoryRequest) (Category, error) {
	unlock := bt.lockOwner(ownerID)
	defer unlock()

	category, err := bt.ownedCategory(ctx, ownerID, req.ID)
	if err != nil {
		return Category{}, fmt.Errorf("failed to update category: %w", err)
	}

	if name := strings.TrimSpace(req.NewName); name != "" {
		if len(name) > MAX_CATEGORY_NAME_LENGTH {
			return Category{}, appErrors.New(appErrors.ErrInvalidInput, "category name is too long, the limit is: %d", MAX_CATEGORY_NAME_LENGTH)
		}
		category.Name = name
	}
	if req.NewGroupID != "" && req.NewGroupID != category.GroupID {
		if err := bt.checkGroup(ctx, ownerID, req.NewGroupID); err != nil {
			return Category{}, err
		}
		category.GroupID = req.NewGroupID
	}
	if req.NewPosition != nil {
		category.Position = *req.NewPosition
	}
	category.UpdatedAt = time.Now().UTC()

	if err := bt.storage.UpdateCategory(ctx, category); err != nil {
		return Category{}, fmt.Errorf("failed to update category: %w", err)
	}
	return category, nil
}

// DeleteCategory removes a category only when nothing refers to it: no
// transaction and no non-zero assignment in any month. History is never
// rewritten, so Ready to Assign is unaffected by a deletion.
func (bt *BudgetTracker) DeleteCategory(ctx context.Context, ownerID string, categoryID string) error {
	unlock := bt.lockOwner(ownerID)
	defer unlock()

	if _, err := bt.ownedCategory(ctx, ownerID, categoryID); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	count, err := bt.storage.CountCategoryTransactions(ctx, ownerID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to count category transactions: %w", err)
	}
	if count > 0 {
		return appErrors.New(appErrors.ErrConflict, "category has %d transaction(s), recategorize them before deleting", count)
	}

	assignments, err := bt.storage.LoadAssignments(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load assignments: %w", err)
	}
	if assignments.HasNonZero(categoryID) {
		return appErrors.New(appErrors.ErrConflict, "category still has assigned money, move it to another category before deleting")
	}

	if err := bt.storage.DeleteCategory(ctx, ownerID, categoryID); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (bt *BudgetTracker) ListCategories(ctx context.Context, ownerID string) ([]CategoryGroup, []Category, error) {
	groups, err := bt.storage.ListCategoryGroups(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list category groups: %w", err)
	}
	categories, err := bt.storage.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return groups, categories, nil
}

// --- TRANSACTIONS --- //

func (bt *BudgetTracker) SaveTransaction(ctx context.Context, ownerID string, req TransactionRequest) (Transaction, error) {
	if req.Amount == 0 {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidAmount, "transaction amount is zero")
	}
	if req.Amount.Abs() > MAX_TRANSACTION_AMOUNT_LIMIT {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidAmount, "maximum allowed amount per transaction is: %d", MAX_TRANSACTION_AMOUNT_LIMIT)
	}
	if req.Date.IsZero() {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "transaction date is required")
	}
	if len(req.Note) > MAX_TRANSACTION_NOTE_LENGTH {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "note so long, maximum allowed length is: %d", MAX_TRANSACTION_NOTE_LENGTH)
	}
	unlock := bt.lockOwner(ownerID)
	defer unlock()

	if req.CategoryID != "" {
		if _, err := bt.ownedCategory(ctx, ownerID, req.CategoryID); err != nil {
			return Transaction{}, fmt.Errorf("failed to save transaction: %w", err)
		}
	}

	txn := Transaction{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Date:       req.Date.UTC(),
		Cleared:    req.Cleared,
		Note:       req.Note,
		CreatedAt:  time.Now().UTC(),
	}
	if err := bt.storage.SaveTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to save transaction to db: %w", err)
	}
	return txn, nil
}

func (bt *BudgetTracker) publish(ctx context.Context, event Event) {
	event.ID = uuid.New().String()
	event.OccurredAt = time.Now().UTC()
	if err := bt.publisher.Publish(ctx, event); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to publish %s event for owner %s: %v",
			contextutil.TraceIDFromContext(ctx), event.Type, event.OwnerID, err)
	}
}

package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mocks
type MockStorage struct {
	mu           sync.Mutex
	groups       map[string]CategoryGroup
	categories   map[string]Category
	transactions []Transaction
	assignments  map[string]*Assignments
	failList     error
}

func newMockStorage() *MockStorage {
	return &MockStorage{
		groups:      make(map[string]CategoryGroup),
		categories:  make(map[string]Category),
		assignments: make(map[string]*Assignments),
	}
}

func (m *MockStorage) SaveCategoryGroup(ctx context.Context, group CategoryGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
	return nil
}

func (m *MockStorage) ListCategoryGroups(ctx context.Context, ownerID string) ([]CategoryGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CategoryGroup
	for _, g := range m.groups {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *MockStorage) SaveCategory(ctx context.Context, category Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[category.ID] = category
	return nil
}

func (m *MockStorage) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	if !ok {
		return Category{}, appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	return c, nil
}

func (m *MockStorage) UpdateCategory(ctx context.Context, category Category) error {
	return m.SaveCategory(ctx, category)
}

func (m *MockStorage) DeleteCategory(ctx context.Context, ownerID string, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, categoryID)
	return nil
}

func (m *MockStorage) ListCategories(ctx context.Context, ownerID string) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []Category
	for _, c := range m.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockStorage) SaveTarget(ctx context.Context, ownerID string, categoryID string, target Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.categories[categoryID]
	c.Target = &target
	m.categories[categoryID] = c
	return nil
}

func (m *MockStorage) DeleteTarget(ctx context.Context, ownerID string, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.categories[categoryID]
	c.Target = nil
	m.categories[categoryID] = c
	return nil
}

func (m *MockStorage) SaveTransaction(ctx context.Context, t Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, t)
	return nil
}

func (m *MockStorage) ListTransactions(ctx context.Context, ownerID string, from, to time.Time) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.transactions {
		if t.OwnerID != ownerID || t.Date.After(to) || (!from.IsZero() && t.Date.Before(from)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MockStorage) CountCategoryTransactions(ctx context.Context, ownerID string, categoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.transactions {
		if t.OwnerID == ownerID && t.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func (m *MockStorage) LoadAssignments(ctx context.Context, ownerID string) (*Assignments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[ownerID]
	if !ok {
		return NewAssignments(), nil
	}
	return a.Clone(), nil
}

func (m *MockStorage) ApplyAssignments(ctx context.Context, ownerID string, writes []AssignmentWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		if c, ok := m.categories[w.CategoryID]; !ok || c.OwnerID != ownerID {
			return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", w.CategoryID)
		}
	}
	a, ok := m.assignments[ownerID]
	if !ok {
		a = NewAssignments()
		m.assignments[ownerID] = a
	}
	return a.Apply(writes)
}

func (m *MockStorage) GetStorageType() string {
	return "mock"
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

const owner = "owner-1"

type fixture struct {
	storage   *MockStorage
	publisher *recordingPublisher
	tracker   *BudgetTracker
	group     CategoryGroup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage := newMockStorage()
	publisher := &recordingPublisher{}
	tracker := NewBudgetTracker(storage, publisher)

	group, err := tracker.CreateGroup(context.Background(), owner, CategoryGroupRequest{Name: "Everyday"})
	require.NoError(t, err)

	return &fixture{storage: storage, publisher: publisher, tracker: tracker, group: group}
}

func (f *fixture) category(t *testing.T, name string) Category {
	t.Helper()
	c, err := f.tracker.CreateCategory(context.Background(), owner, CategoryRequest{GroupID: f.group.ID, Name: name})
	require.NoError(t, err)
	return c
}

func (f *fixture) income(t *testing.T, amount money.Money, m Month) {
	t.Helper()
	_, err := f.tracker.SaveTransaction(context.Background(), owner, TransactionRequest{
		Amount: amount,
		Date:   m.FirstDay().Add(12 * time.Hour),
	})
	require.NoError(t, err)
}

func (f *fixture) spend(t *testing.T, categoryID string, amount money.Money, m Month) {
	t.Helper()
	_, err := f.tracker.SaveTransaction(context.Background(), owner, TransactionRequest{
		CategoryID: categoryID,
		Amount:     amount,
		Date:       m.FirstDay().Add(36 * time.Hour),
	})
	require.NoError(t, err)
}

func findBudget(t *testing.T, view BudgetView, categoryID string) CategoryBudgetData {
	t.Helper()
	for _, g := range view.CategoryGroups {
		for _, b := range g.Budgets {
			if b.CategoryID == categoryID {
				return b
			}
		}
	}
	t.Fatalf("category %s not in budget view", categoryID)
	return CategoryBudgetData{}
}

func TestGetBudgetScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	groceries := f.category(t, "Groceries")
	f.income(t, 300000, jan)

	view, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Money(300000), view.ReadyToAssign)

	data, err := f.tracker.SetAssigned(ctx, owner, groceries.ID, jan, 50000)
	require.NoError(t, err)
	assert.Equal(t, money.Money(50000), data.Available)
	assert.Equal(t, StatusAvailable, data.Status)

	view, err = f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Money(250000), view.ReadyToAssign)
	assert.Equal(t, money.Money(50000), findBudget(t, view, groceries.ID).Available)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventAssignmentSet, f.publisher.events[0].Type)
}

func TestGetBudgetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rent := f.category(t, "Rent")
	f.income(t, 100000, jan)
	f.spend(t, rent.ID, -80000, jan)
	_, err := f.tracker.SetAssigned(ctx, owner, rent.ID, jan, 60000)
	require.NoError(t, err)

	first, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	second, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, StatusOverspent, findBudget(t, first, rent.ID).Status)
}

func TestGetBudgetOrdersGroupsAndKeepsOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tracker.CreateGroup(ctx, owner, CategoryGroupRequest{Name: "Bills", Position: -1})
	require.NoError(t, err)
	f.category(t, "Food")
	require.NoError(t, f.storage.SaveCategory(ctx, Category{ID: "orphan", OwnerID: owner, GroupID: "gone", Name: "Lost"}))

	view, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	require.Len(t, view.CategoryGroups, 3)
	assert.Equal(t, "Bills", view.CategoryGroups[0].Group.Name)
	assert.Empty(t, view.CategoryGroups[0].Budgets)
	assert.Equal(t, "Everyday", view.CategoryGroups[1].Group.Name)
	assert.Equal(t, "Ungrouped", view.CategoryGroups[2].Group.Name)
	assert.Equal(t, "orphan", view.CategoryGroups[2].Budgets[0].CategoryID)
}

func TestGetBudgetStorageError(t *testing.T) {
	f := newFixture(t)
	f.storage.failList = errors.New("connection refused")

	_, err := f.tracker.GetBudget(context.Background(), owner, jan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMoveMoneyKeepsReadyToAssign(t *testing.T) {
	testCases := []struct {
		name       string
		spent      money.Money
		wantMode   MoveMode
		wantSource money.Money
		wantDest   money.Money
	}{
		{name: "surplus", spent: -10000, wantMode: MoveSurplus, wantSource: 20000, wantDest: 10000},
		{name: "cover overspend", spent: -50000, wantMode: MoveCoverOverspend, wantSource: 0, wantDest: -10000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			source := f.category(t, "Dining")
			dest := f.category(t, "Savings")
			f.income(t, 100000, jan)
			f.spend(t, source.ID, tc.spent, jan)
			_, err := f.tracker.SetAssigned(ctx, owner, source.ID, jan, 40000)
			require.NoError(t, err)

			before, err := f.tracker.GetBudget(ctx, owner, jan)
			require.NoError(t, err)

			result, err := f.tracker.MoveMoney(ctx, owner, source.ID, dest.ID, jan, 10000)
			require.NoError(t, err)
			assert.Equal(t, tc.wantMode, result.Mode)
			assert.Equal(t, tc.wantSource, result.Source.Available)
			assert.Equal(t, tc.wantDest, result.Dest.Available)

			after, err := f.tracker.GetBudget(ctx, owner, jan)
			require.NoError(t, err)
			assert.Equal(t, before.ReadyToAssign, after.ReadyToAssign)
			assert.Equal(t, tc.wantSource, findBudget(t, after, source.ID).Available)
			assert.Equal(t, tc.wantDest, findBudget(t, after, dest.ID).Available)
		})
	}
}

func TestMoveMoneyErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.category(t, "A")
	b := f.category(t, "B")
	require.NoError(t, f.storage.SaveCategory(ctx, Category{ID: "foreign", OwnerID: "owner-2", Name: "Theirs"}))
	require.NoError(t, f.storage.SaveCategory(ctx, Category{ID: "foreign-2", OwnerID: "owner-2", Name: "Also theirs"}))

	testCases := []struct {
		name   string
		source string
		dest   string
		amount money.Money
		code   string
	}{
		{name: "zero amount", source: a.ID, dest: b.ID, amount: 0, code: appErrors.ErrInvalidAmount},
		{name: "negative amount", source: a.ID, dest: b.ID, amount: -5, code: appErrors.ErrInvalidAmount},
		{name: "same category", source: a.ID, dest: a.ID, amount: 5, code: appErrors.ErrInvalidInput},
		{name: "missing category", source: a.ID, dest: "nope", amount: 5, code: appErrors.ErrNotFound},
		{name: "other owner", source: a.ID, dest: "foreign", amount: 5, code: appErrors.ErrCrossOwnerOperation},
		{name: "other owner source", source: "foreign", dest: b.ID, amount: 5, code: appErrors.ErrCrossOwnerOperation},
		{name: "both belong to another owner", source: "foreign", dest: "foreign-2", amount: 5, code: appErrors.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tracker.MoveMoney(ctx, owner, tc.source, tc.dest, jan, tc.amount)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.CodeOf(err))
		})
	}

	view, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, findBudget(t, view, a.ID).Assigned)
}

func TestConcurrentMovesAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	source := f.category(t, "Pool")
	dest := f.category(t, "Bucket")
	f.income(t, 100000, jan)
	_, err := f.tracker.SetAssigned(ctx, owner, source.ID, jan, 100000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tracker.MoveMoney(ctx, owner, source.ID, dest.ID, jan, 1000)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Money(80000), findBudget(t, view, source.ID).Available)
	assert.Equal(t, money.Money(20000), findBudget(t, view, dest.ID).Available)
	assert.Equal(t, money.Zero, view.ReadyToAssign)
}

// hookedStorage runs hook once, right after the first lookup of hookID.
type hookedStorage struct {
	*MockStorage
	once   sync.Once
	hookID string
	hook   func()
}

func (h *hookedStorage) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	c, err := h.MockStorage.GetCategory(ctx, categoryID)
	if h.hook != nil && categoryID == h.hookID {
		h.once.Do(h.hook)
	}
	return c, err
}

func visibleTotal(t *testing.T, view BudgetView) money.Money {
	t.Helper()
	total := view.ReadyToAssign
	for _, g := range view.CategoryGroups {
		for _, b := range g.Budgets {
			total += b.Available
		}
	}
	return total
}

func TestMoveMoneyBlocksConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	storage := &hookedStorage{MockStorage: f.storage}
	tracker := NewBudgetTracker(storage, nil)
	source := f.category(t, "Source")
	dest := f.category(t, "Dest")
	f.income(t, 100000, jan)
	_, err := tracker.SetAssigned(ctx, owner, source.ID, jan, 1000)
	require.NoError(t, err)

	deleted := make(chan error, 1)
	storage.hookID = dest.ID
	storage.hook = func() {
		go func() { deleted <- tracker.DeleteCategory(ctx, owner, dest.ID) }()
	}

	_, err = tracker.MoveMoney(ctx, owner, source.ID, dest.ID, jan, 500)
	require.NoError(t, err)

	err = <-deleted
	assert.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err), "delete must wait for the move and then see the assigned money")

	view, err := tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Money(99000), view.ReadyToAssign)
	assert.Equal(t, money.Money(500), findBudget(t, view, dest.ID).Available)
	assert.Equal(t, money.Money(100000), visibleTotal(t, view))
}

func TestMoveMoneyToCategoryDeletedElsewhere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	storage := &hookedStorage{MockStorage: f.storage}
	tracker := NewBudgetTracker(storage, nil)
	source := f.category(t, "Source")
	dest := f.category(t, "Dest")
	f.income(t, 100000, jan)
	_, err := tracker.SetAssigned(ctx, owner, source.ID, jan, 1000)
	require.NoError(t, err)

	// another process removes the destination between lookup and write
	storage.hookID = dest.ID
	storage.hook = func() {
		require.NoError(t, f.storage.DeleteCategory(ctx, owner, dest.ID))
	}

	_, err = tracker.MoveMoney(ctx, owner, source.ID, dest.ID, jan, 500)
	assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

	view, err := tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, money.Money(99000), view.ReadyToAssign)
	assert.Equal(t, money.Money(1000), findBudget(t, view, source.ID).Available)
	assert.Equal(t, money.Money(100000), visibleTotal(t, view))

	assignments, err := f.storage.LoadAssignments(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, assignments.Get(dest.ID, jan))
}

func TestSetAssignedUnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.SetAssigned(context.Background(), owner, "missing", jan, 100)
	assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
}

func TestSetAndClearTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.category(t, "Insurance")

	err := f.tracker.SetTarget(ctx, owner, c.ID, Target{Type: TargetMonthly, Amount: 0})
	assert.Equal(t, appErrors.ErrInvalidAmount, appErrors.CodeOf(err))

	require.NoError(t, f.tracker.SetTarget(ctx, owner, c.ID, Target{Type: TargetMonthly, Amount: 5000}))
	stored, err := f.storage.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Target)
	assert.Equal(t, RefillReset, stored.Target.RefillType)
	assert.Equal(t, c.CreatedMonth, stored.Target.StartMonth)

	_, err = f.tracker.SetAssigned(ctx, owner, c.ID, jan, 5000)
	require.NoError(t, err)
	view, err := f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	assert.Equal(t, StatusFunded, findBudget(t, view, c.ID).Status)

	require.NoError(t, f.tracker.ClearTarget(ctx, owner, c.ID))
	view, err = f.tracker.GetBudget(ctx, owner, jan)
	require.NoError(t, err)
	data := findBudget(t, view, c.ID)
	assert.Nil(t, data.Target)
	assert.Equal(t, StatusAvailable, data.Status)
}

func TestDeleteCategoryPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	used := f.category(t, "Used")
	funded := f.category(t, "Funded")
	empty := f.category(t, "Empty")
	f.spend(t, used.ID, -100, jan)
	_, err := f.tracker.SetAssigned(ctx, owner, funded.ID, jan, 100)
	require.NoError(t, err)

	err = f.tracker.DeleteCategory(ctx, owner, used.ID)
	assert.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err))

	err = f.tracker.DeleteCategory(ctx, owner, funded.ID)
	assert.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err))

	require.NoError(t, f.tracker.DeleteCategory(ctx, owner, empty.ID))
	_, err = f.storage.GetCategory(ctx, empty.ID)
	assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
}

func TestCreateAndUpdateCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.CreateCategory(ctx, owner, CategoryRequest{GroupID: f.group.ID, Name: "   "})
	assert.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))

	_, err = f.tracker.CreateCategory(ctx, owner, CategoryRequest{GroupID: "missing", Name: "Food"})
	assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

	c := f.category(t, "Food")
	other, err := f.tracker.CreateGroup(ctx, owner, CategoryGroupRequest{Name: "Fun"})
	require.NoError(t, err)

	pos := 3
	updated, err := f.tracker.UpdateCategory(ctx, owner, UpdateCategoryRequest{ID: c.ID, NewName: "Groceries", NewGroupID: other.ID, NewPosition: &pos})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Name)
	assert.Equal(t, other.ID, updated.GroupID)
	assert.Equal(t, 3, updated.Position)

	_, err = f.tracker.UpdateCategory(ctx, "owner-2", UpdateCategoryRequest{ID: c.ID, NewName: "Stolen"})
	assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
}

func TestSaveTransactionValidation(t *testing.T) {
	f := newFixture(t)
	date := jan.FirstDay()

	testCases := []struct {
		name string
		req  TransactionRequest
		code string
	}{
		{name: "zero amount", req: TransactionRequest{Date: date}, code: appErrors.ErrInvalidAmount},
		{name: "too large", req: TransactionRequest{Amount: MAX_TRANSACTION_AMOUNT_LIMIT + 1, Date: date}, code: appErrors.ErrInvalidAmount},
		{name: "no date", req: TransactionRequest{Amount: 10}, code: appErrors.ErrInvalidInput},
		{name: "unknown category", req: TransactionRequest{Amount: 10, Date: date, CategoryID: "x"}, code: appErrors.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tracker.SaveTransaction(context.Background(), owner, tc.req)
			assert.Equal(t, tc.code, appErrors.CodeOf(err))
		})
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	c := f.category(t, "Gifts")

	_, err := f.tracker.SetAssigned(ctx, owner, c.ID, jan, 100)
	assert.NoError(t, err)
}

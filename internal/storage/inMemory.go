package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
)

// InMemoryStorage keeps everything in process memory. It is meant for local
// runs and tests; nothing survives a restart.
type InMemoryStorage struct {
	mu           sync.RWMutex
	groups       []budget.CategoryGroup
	categories   map[string]budget.Category
	transactions []budget.Transaction
	assignments  map[string]*budget.Assignments
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		categories:  make(map[string]budget.Category),
		assignments: make(map[string]*budget.Assignments),
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return StorageTypeInMemory
}

func (inMem *InMemoryStorage) SaveCategoryGroup(ctx context.Context, group budget.CategoryGroup) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, g := range inMem.groups {
		if g.OwnerID == group.OwnerID && g.Name == group.Name {
			return appErrors.New(appErrors.ErrConflict, "The category group already exists.")
		}
	}
	inMem.groups = append(inMem.groups, group)
	return nil
}

func (inMem *InMemoryStorage) ListCategoryGroups(ctx context.Context, ownerID string) ([]budget.CategoryGroup, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var result []budget.CategoryGroup
	for _, g := range inMem.groups {
		if g.OwnerID == ownerID {
			result = append(result, g)
		}
	}
	return result, nil
}

func (inMem *InMemoryStorage) nameTaken(ownerID, name, exceptID string) bool {
	for _, c := range inMem.categories {
		if c.OwnerID == ownerID && c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (inMem *InMemoryStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if inMem.nameTaken(category.OwnerID, category.Name, "") {
		return appErrors.New(appErrors.ErrConflict, "The category already exists.")
	}
	category.Target = nil
	inMem.categories[category.ID] = category
	return nil
}

func (inMem *InMemoryStorage) GetCategory(ctx context.Context, categoryID string) (budget.Category, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	c, ok := inMem.categories[categoryID]
	if !ok {
		return budget.Category{}, appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	return copyCategory(c), nil
}

func (inMem *InMemoryStorage) UpdateCategory(ctx context.Context, category budget.Category) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	current, ok := inMem.categories[category.ID]
	if !ok || current.OwnerID != category.OwnerID {
		return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", category.ID)
	}
	if inMem.nameTaken(category.OwnerID, category.Name, category.ID) {
		return appErrors.New(appErrors.ErrConflict, "A category with this name already exists.")
	}
	current.Name = category.Name
	current.GroupID = category.GroupID
	current.Position = category.Position
	current.UpdatedAt = category.UpdatedAt
	inMem.categories[category.ID] = current
	return nil
}

func (inMem *InMemoryStorage) DeleteCategory(ctx context.Context, ownerID string, categoryID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	c, ok := inMem.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	if a, ok := inMem.assignments[ownerID]; ok && a.HasNonZero(categoryID) {
		return appErrors.New(appErrors.ErrConflict, "category still has assigned money, move it to another category before deleting")
	}
	delete(inMem.categories, categoryID)

	if a, ok := inMem.assignments[ownerID]; ok {
		kept := budget.NewAssignments()
		for _, r := range a.Records() {
			if r.CategoryID != categoryID {
				kept.Set(r.CategoryID, r.Month, r.Amount)
			}
		}
		inMem.assignments[ownerID] = kept
	}
	return nil
}

func (inMem *InMemoryStorage) ListCategories(ctx context.Context, ownerID string) ([]budget.Category, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var result []budget.Category
	for _, c := range inMem.categories {
		if c.OwnerID == ownerID {
			result = append(result, copyCategory(c))
		}
	}
	slices.SortFunc(result, func(a, b budget.Category) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func copyCategory(c budget.Category) budget.Category {
	if c.Target != nil {
		target := *c.Target
		c.Target = &target
	}
	return c
}

func (inMem *InMemoryStorage) SaveTarget(ctx context.Context, ownerID string, categoryID string, target budget.Target) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	c, ok := inMem.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", categoryID)
	}
	c.Target = &target
	inMem.categories[categoryID] = c
	return nil
}

func (inMem *InMemoryStorage) DeleteTarget(ctx context.Context, ownerID string, categoryID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	c, ok := inMem.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return nil
	}
	c.Target = nil
	inMem.categories[categoryID] = c
	return nil
}

func (inMem *InMemoryStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	inMem.transactions = append(inMem.transactions, t)
	return nil
}

func (inMem *InMemoryStorage) ListTransactions(ctx context.Context, ownerID string, from, to time.Time) ([]budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	var result []budget.Transaction
	for _, t := range inMem.transactions {
		if t.OwnerID != ownerID || t.Date.After(to) || (!from.IsZero() && t.Date.Before(from)) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (inMem *InMemoryStorage) CountCategoryTransactions(ctx context.Context, ownerID string, categoryID string) (int, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	count := 0
	for _, t := range inMem.transactions {
		if t.OwnerID == ownerID && t.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func (inMem *InMemoryStorage) LoadAssignments(ctx context.Context, ownerID string) (*budget.Assignments, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	if a, ok := inMem.assignments[ownerID]; ok {
		return a.Clone(), nil
	}
	return budget.NewAssignments(), nil
}

func (inMem *InMemoryStorage) ApplyAssignments(ctx context.Context, ownerID string, writes []budget.AssignmentWrite) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, w := range writes {
		if c, ok := inMem.categories[w.CategoryID]; !ok || c.OwnerID != ownerID {
			return appErrors.New(appErrors.ErrNotFound, "category %s does not exist", w.CategoryID)
		}
	}

	a, ok := inMem.assignments[ownerID]
	if !ok {
		a = budget.NewAssignments()
		inMem.assignments[ownerID] = a
	}
	return a.Apply(writes)
}

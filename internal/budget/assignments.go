package budget

import (
	"slices"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

type Assignment struct {
	CategoryID string
	Month      Month
	Amount     money.Money
}

// Assignments maps (category, month) to the assigned amount. A pair that was
// never set reads as zero; Get is the only place that default lives.
type Assignments struct {
	values     map[categoryMonth]money.Money
	byCategory map[string][]Month
}

func NewAssignments(records ...Assignment) *Assignments {
	a := &Assignments{
		values:     make(map[categoryMonth]money.Money, len(records)),
		byCategory: make(map[string][]Month),
	}
	for _, r := range records {
		a.Set(r.CategoryID, r.Month, r.Amount)
	}
	return a
}

func (a *Assignments) Get(categoryID string, m Month) money.Money {
	return a.values[categoryMonth{categoryID: categoryID, month: m}]
}

// Set replaces the stored value. Negative amounts are allowed.
func (a *Assignments) Set(categoryID string, m Month, amount money.Money) {
	key := categoryMonth{categoryID: categoryID, month: m}
	if _, ok := a.values[key]; !ok {
		a.byCategory[categoryID] = append(a.byCategory[categoryID], m)
	}
	a.values[key] = amount
}

func (a *Assignments) Delta(categoryID string, m Month, delta money.Money) money.Money {
	updated := a.Get(categoryID, m) + delta
	a.Set(categoryID, m, updated)
	return updated
}

// Months returns the months with a stored entry for the category, oldest first.
func (a *Assignments) Months(categoryID string) []Month {
	out := slices.Clone(a.byCategory[categoryID])
	slices.SortFunc(out, Month.Compare)
	return out
}

// TotalThrough sums every assignment of every category for months up to and including m.
func (a *Assignments) TotalThrough(m Month) money.Money {
	var total money.Money
	for key, amount := range a.values {
		if !key.month.After(m) {
			total += amount
		}
	}
	return total
}

// HasNonZero reports whether the category has any non-zero assignment in any month.
func (a *Assignments) HasNonZero(categoryID string) bool {
	for _, m := range a.byCategory[categoryID] {
		if a.Get(categoryID, m) != 0 {
			return true
		}
	}
	return false
}

func (a *Assignments) Records() []Assignment {
	out := make([]Assignment, 0, len(a.values))
	for key, amount := range a.values {
		out = append(out, Assignment{CategoryID: key.categoryID, Month: key.month, Amount: amount})
	}
	slices.SortFunc(out, func(x, y Assignment) int {
		if x.CategoryID != y.CategoryID {
			if x.CategoryID < y.CategoryID {
				return -1
			}
			return 1
		}
		return x.Month.Compare(y.Month)
	})
	return out
}

func (a *Assignments) Clone() *Assignments {
	return NewAssignments(a.Records()...)
}

// Apply writes every change after checking all expectations, so either all
// writes land or none do.
func (a *Assignments) Apply(writes []AssignmentWrite) error {
	for _, w := range writes {
		if current := a.Get(w.CategoryID, w.Month); current != w.Expected {
			return ErrAssignmentChanged(w, current)
		}
	}
	for _, w := range writes {
		a.Set(w.CategoryID, w.Month, w.Amount)
	}
	return nil
}

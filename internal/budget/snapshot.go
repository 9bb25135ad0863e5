package budget

import (
	"sync"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// Snapshot is an immutable view of one owner's transactions and assignments.
// Every read of the engine goes through a Snapshot, so a reader never sees
// half of a money movement.
type Snapshot struct {
	ledger      *Ledger
	assignments *Assignments
	rollover    *Rollover

	rtaOnce sync.Once
	rta     *readyToAssignIndex
}

func NewSnapshot(txns []Transaction, assignments *Assignments) *Snapshot {
	if assignments == nil {
		assignments = NewAssignments()
	}
	ledger := Aggregate(txns)
	return &Snapshot{
		ledger:      ledger,
		assignments: assignments,
		rollover:    NewRollover(ledger, assignments),
	}
}

func (s *Snapshot) Assigned(categoryID string, m Month) money.Money {
	return s.assignments.Get(categoryID, m)
}

func (s *Snapshot) Activity(categoryID string, m Month) money.Money {
	return s.ledger.Activity(categoryID, m)
}

func (s *Snapshot) Available(categoryID string, m Month) money.Money {
	return s.rollover.Available(categoryID, m)
}

func (s *Snapshot) ReadyToAssign(m Month) money.Money {
	s.rtaOnce.Do(func() {
		s.rta = newReadyToAssignIndex(s.ledger, s.assignments)
	})
	return s.rta.at(m)
}

// CategoryData derives the full budget row of one category for month m.
func (s *Snapshot) CategoryData(c Category, m Month) CategoryBudgetData {
	data := CategoryBudgetData{
		CategoryID: c.ID,
		Name:       c.Name,
		Month:      m,
		Assigned:   s.Assigned(c.ID, m),
		Activity:   s.Activity(c.ID, m),
		Available:  s.Available(c.ID, m),
	}
	if c.Target != nil {
		progress := EvaluateTarget(*c.Target, c.ID, m, s)
		data.Target = &progress
	}
	data.Status = Classify(data, s.ledger.Outflow(c.ID, m))
	return data
}

// withAssignments returns a snapshot over the same transactions and a
// different assignment set.
func (s *Snapshot) withAssignments(assignments *Assignments) *Snapshot {
	return &Snapshot{
		ledger:      s.ledger,
		assignments: assignments,
		rollover:    NewRollover(s.ledger, assignments),
	}
}

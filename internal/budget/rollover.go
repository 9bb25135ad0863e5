package budget

import (
	"slices"
	"sort"
	"sync"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// balanceSeries holds, for every month in which a category had activity or an
// assignment, the available balance at the end of that month. Months between
// two entries carry the earlier balance unchanged.
type balanceSeries struct {
	months  []Month
	closing []money.Money
}

func (s *balanceSeries) at(m Month) money.Money {
	i := sort.Search(len(s.months), func(i int) bool { return s.months[i].After(m) })
	if i == 0 {
		return 0
	}
	return s.closing[i-1]
}

// Rollover computes available(c, m) = assigned(c, m) + activity(c, m) + available(c, m-1).
// Negative balances carry forward as they are. Series are built lazily per
// category and memoized; a Rollover is safe for concurrent use.
type Rollover struct {
	ledger      *Ledger
	assignments *Assignments

	mu     sync.Mutex
	series map[string]*balanceSeries
}

func NewRollover(ledger *Ledger, assignments *Assignments) *Rollover {
	return &Rollover{
		ledger:      ledger,
		assignments: assignments,
		series:      make(map[string]*balanceSeries),
	}
}

func (r *Rollover) Available(categoryID string, m Month) money.Money {
	return r.seriesFor(categoryID).at(m)
}

func (r *Rollover) seriesFor(categoryID string) *balanceSeries {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.series[categoryID]; ok {
		return s
	}
	s := r.build(categoryID)
	r.series[categoryID] = s
	return s
}

func (r *Rollover) build(categoryID string) *balanceSeries {
	months := append(r.assignments.Months(categoryID), r.ledger.months(categoryID)...)
	slices.SortFunc(months, Month.Compare)
	months = slices.Compact(months)

	s := &balanceSeries{
		months:  months,
		closing: make([]money.Money, len(months)),
	}
	var running money.Money
	for i, m := range months {
		running += r.assignments.Get(categoryID, m) + r.ledger.Activity(categoryID, m)
		s.closing[i] = running
	}
	return s
}

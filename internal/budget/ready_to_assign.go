package budget

import (
	"slices"
	"sort"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// ReadyToAssign is the money taken in but not yet assigned, through month m:
// every uncategorized inflow dated up to m minus every assignment made for a
// month up to m. It is never clamped; a negative result means the owner
// assigned more than they received.
func ReadyToAssign(ledger *Ledger, assignments *Assignments, m Month) money.Money {
	var inflow money.Money
	for _, month := range ledger.inflowMonths() {
		if !month.After(m) {
			inflow += ledger.UnassignedInflow(month)
		}
	}
	return inflow - assignments.TotalThrough(m)
}

// readyToAssignIndex answers ReadyToAssign in O(log months) after one pass
// over the snapshot.
type readyToAssignIndex struct {
	months     []Month
	cumulative []money.Money
}

func newReadyToAssignIndex(ledger *Ledger, assignments *Assignments) *readyToAssignIndex {
	perMonth := make(map[Month]money.Money)
	for _, m := range ledger.inflowMonths() {
		perMonth[m] += ledger.UnassignedInflow(m)
	}
	for _, a := range assignments.Records() {
		perMonth[a.Month] -= a.Amount
	}

	idx := &readyToAssignIndex{
		months:     make([]Month, 0, len(perMonth)),
		cumulative: make([]money.Money, 0, len(perMonth)),
	}
	for m := range perMonth {
		idx.months = append(idx.months, m)
	}
	slices.SortFunc(idx.months, Month.Compare)

	var running money.Money
	for _, m := range idx.months {
		running += perMonth[m]
		idx.cumulative = append(idx.cumulative, running)
	}
	return idx
}

func (idx *readyToAssignIndex) at(m Month) money.Money {
	i := sort.Search(len(idx.months), func(i int) bool { return idx.months[i].After(m) })
	if i == 0 {
		return 0
	}
	return idx.cumulative[i-1]
}

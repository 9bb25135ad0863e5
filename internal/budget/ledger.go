package budget

import (
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

type categoryMonth struct {
	categoryID string
	month      Month
}

// Ledger is the per-category, per-month view of a transaction set. It is
// built in one pass and never mutated afterwards, so it can be shared by
// concurrent readers.
type Ledger struct {
	activity          map[categoryMonth]money.Money
	outflow           map[categoryMonth]money.Money
	unassignedInflow  map[Month]money.Money
	unassignedOutflow map[Month]money.Money
	firstMonth        map[string]Month
	categoryMonths    map[string][]Month
	byMonth           map[Month]map[string]money.Money
	total             map[Month]money.Money
}

// Aggregate partitions txns by calendar month. Cleared and uncleared
// transactions count the same.
func Aggregate(txns []Transaction) *Ledger {
	l := &Ledger{
		activity:          make(map[categoryMonth]money.Money),
		outflow:           make(map[categoryMonth]money.Money),
		unassignedInflow:  make(map[Month]money.Money),
		unassignedOutflow: make(map[Month]money.Money),
		firstMonth:        make(map[string]Month),
		categoryMonths:    make(map[string][]Month),
		byMonth:           make(map[Month]map[string]money.Money),
		total:             make(map[Month]money.Money),
	}

	for _, t := range txns {
		m := MonthOf(t.Date)
		l.total[m] += t.Amount

		if t.CategoryID == "" {
			if t.Amount > 0 {
				l.unassignedInflow[m] += t.Amount
			} else {
				l.unassignedOutflow[m] += t.Amount
			}
			continue
		}

		key := categoryMonth{categoryID: t.CategoryID, month: m}
		if _, seen := l.activity[key]; !seen {
			l.categoryMonths[t.CategoryID] = append(l.categoryMonths[t.CategoryID], m)
		}
		l.activity[key] += t.Amount
		if t.Amount < 0 {
			l.outflow[key] += t.Amount
		}

		monthly, ok := l.byMonth[m]
		if !ok {
			monthly = make(map[string]money.Money)
			l.byMonth[m] = monthly
		}
		monthly[t.CategoryID] += t.Amount

		if first, ok := l.firstMonth[t.CategoryID]; !ok || m.Before(first) {
			l.firstMonth[t.CategoryID] = m
		}
	}
	return l
}

// MonthActivity aggregates only the transactions dated within m.
func MonthActivity(txns []Transaction, m Month) (map[string]money.Money, money.Money) {
	var inMonth []Transaction
	for _, t := range txns {
		if m.Contains(t.Date) {
			inMonth = append(inMonth, t)
		}
	}
	l := Aggregate(inMonth)
	return l.MonthActivity(m), l.UnassignedInflow(m)
}

func (l *Ledger) Activity(categoryID string, m Month) money.Money {
	return l.activity[categoryMonth{categoryID: categoryID, month: m}]
}

// Outflow is the sum of the negative amounts booked to the category in m.
func (l *Ledger) Outflow(categoryID string, m Month) money.Money {
	return l.outflow[categoryMonth{categoryID: categoryID, month: m}]
}

func (l *Ledger) UnassignedInflow(m Month) money.Money {
	return l.unassignedInflow[m]
}

// UnassignedOutflow is informational: uncategorized outflows are neither
// activity nor inflow.
func (l *Ledger) UnassignedOutflow(m Month) money.Money {
	return l.unassignedOutflow[m]
}

// MonthActivity returns a copy of the activity of every category touched in m.
func (l *Ledger) MonthActivity(m Month) map[string]money.Money {
	out := make(map[string]money.Money, len(l.byMonth[m]))
	for id, amount := range l.byMonth[m] {
		out[id] = amount
	}
	return out
}

func (l *Ledger) FirstMonth(categoryID string) (Month, bool) {
	m, ok := l.firstMonth[categoryID]
	return m, ok
}

// months returns every month holding activity for the category, unsorted.
func (l *Ledger) months(categoryID string) []Month {
	return l.categoryMonths[categoryID]
}

// TotalThrough sums every transaction dated in or before m.
func (l *Ledger) TotalThrough(m Month) money.Money {
	var total money.Money
	for month, amount := range l.total {
		if !month.After(m) {
			total += amount
		}
	}
	return total
}

func (l *Ledger) inflowMonths() []Month {
	out := make([]Month, 0, len(l.unassignedInflow))
	for m := range l.unassignedInflow {
		out = append(out, m)
	}
	return out
}

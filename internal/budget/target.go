package budget

import (
	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

const MAX_TARGET_AMOUNT_LIMIT = money.Money(999999999999999)

// CategoryState is the read side a target is evaluated against.
type CategoryState interface {
	Assigned(categoryID string, m Month) money.Money
	Available(categoryID string, m Month) money.Money
}

func (t Target) Validate() error {
	if t.Amount <= 0 {
		return appErrors.New(appErrors.ErrInvalidAmount, "target amount must be greater than 0")
	}
	if t.Amount > MAX_TARGET_AMOUNT_LIMIT {
		return appErrors.New(appErrors.ErrInvalidAmount, "target amount is too large, the limit is: %d", MAX_TARGET_AMOUNT_LIMIT)
	}
	if t.DayOfMonth < 0 || t.DayOfMonth > 31 {
		return appErrors.New(appErrors.ErrInvalidInput, "day of month must be between 1 and 31, or 0 for none")
	}
	switch t.Type {
	case TargetMonthly:
		switch t.RefillType {
		case RefillReset, RefillCarry, "":
		default:
			return appErrors.New(appErrors.ErrInvalidInput, "invalid refill type: %s", t.RefillType)
		}
	case TargetByDate:
		if t.TargetMonth.IsZero() {
			return appErrors.New(appErrors.ErrInvalidInput, "target month is required for a target balance by date")
		}
	default:
		return appErrors.New(appErrors.ErrInvalidInput, "invalid target type: %s", t.Type)
	}
	return nil
}

// EvaluateTarget reports how far the category is from meeting its target in m.
func EvaluateTarget(t Target, categoryID string, m Month, state CategoryState) TargetProgress {
	progress := TargetProgress{
		Type:       t.Type,
		Amount:     t.Amount,
		DayOfMonth: t.DayOfMonth,
	}

	assigned := state.Assigned(categoryID, m)

	switch t.Type {
	case TargetByDate:
		remaining := m.MonthsUntil(t.TargetMonth) + 1
		if remaining < 1 {
			remaining = 1
		}
		outstanding := t.Amount - state.Available(categoryID, m.Prev())
		var perMonth money.Money
		if outstanding > 0 {
			perMonth = outstanding.CeilDiv(int64(remaining))
		}
		progress.Needed = money.Max(0, perMonth-assigned)
		progress.Progress = ratio(state.Available(categoryID, m), t.Amount)

	default:
		due := t.Amount
		if t.RefillType == RefillCarry {
			due = t.Amount + carriedShortfall(t, categoryID, m, state)
		}
		progress.Needed = money.Max(0, due-assigned)
		progress.Progress = ratio(assigned, due)
	}
	return progress
}

// carriedShortfall walks from the target's start month to the month before m,
// accumulating whatever was left unassigned each month.
func carriedShortfall(t Target, categoryID string, m Month, state CategoryState) money.Money {
	start := t.StartMonth
	if start.IsZero() || start.After(m) {
		return 0
	}
	var shortfall money.Money
	for k := start; k.Before(m); k = k.Next() {
		due := t.Amount + shortfall
		shortfall = money.Max(0, due-state.Assigned(categoryID, k))
	}
	return shortfall
}

func ratio(part, whole money.Money) float64 {
	if whole <= 0 {
		return 1
	}
	r := float64(part) / float64(whole)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// Classify picks the presentation state of a category-month. The checks run
// in priority order; overspent always wins.
func Classify(data CategoryBudgetData, outflow money.Money) Status {
	switch {
	case data.Available < 0:
		return StatusOverspent
	case data.Target != nil && data.Target.Needed == 0:
		return StatusFunded
	case data.Target != nil:
		return StatusUnderfunded
	case data.Available == 0 && outflow < 0:
		return StatusSpent
	case data.Available > 0:
		return StatusAvailable
	default:
		// No assignment and no activity, or a zero balance reached without
		// outflow (a negative assignment offset by inflow). Neither leaves
		// anything to spend.
		return StatusEmpty
	}
}

package budget

import (
	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// PlanMove turns "move amount from source to dest in m" into the pair of
// assignment writes that must be applied together.
//
// When the source still has money (available >= 0) the amount leaves the
// source's assignment and joins the destination's. When the source is
// overspent the move covers it instead: the source's assignment grows and
// the destination pays for it. Either way the two deltas cancel, so Ready to
// Assign does not change.
func PlanMove(current *Assignments, sourceID, destID string, m Month, sourceAvailable, amount money.Money) ([]AssignmentWrite, MoveMode, error) {
	if amount <= 0 {
		return nil, "", appErrors.New(appErrors.ErrInvalidAmount, "amount to move must be greater than 0")
	}
	if sourceID == destID {
		return nil, "", appErrors.New(appErrors.ErrInvalidInput, "source and destination categories must differ")
	}

	mode := MoveSurplus
	delta := amount.Neg()
	if sourceAvailable < 0 {
		mode = MoveCoverOverspend
		delta = amount
	}

	sourceAssigned := current.Get(sourceID, m)
	destAssigned := current.Get(destID, m)

	writes := []AssignmentWrite{
		{CategoryID: sourceID, Month: m, Expected: sourceAssigned, Amount: sourceAssigned + delta},
		{CategoryID: destID, Month: m, Expected: destAssigned, Amount: destAssigned - delta},
	}
	return writes, mode, nil
}

// ErrAssignmentChanged reports a failed compare-and-set on an assignment.
func ErrAssignmentChanged(w AssignmentWrite, current money.Money) error {
	return appErrors.New(appErrors.ErrConcurrentModification,
		"assigned amount of category %s in %s changed: expected %d, found %d",
		w.CategoryID, w.Month, w.Expected, current)
}

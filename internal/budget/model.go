package budget

import (
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// REQUESTS START:
type CategoryGroupRequest struct {
	Name     string
	Position int
}

type CategoryRequest struct {
	GroupID  string
	Name     string
	Position int
}

type UpdateCategoryRequest struct {
	ID          string
	NewName     string
	NewGroupID  string
	NewPosition *int
}

type TransactionRequest struct {
	AccountID  string
	CategoryID string
	Amount     money.Money
	Date       time.Time
	Cleared    bool
	Note       string
}

// REQUESTS END:

// MODELS:

type CategoryGroup struct {
	ID        string
	OwnerID   string
	Name      string
	Position  int
	CreatedAt time.Time
}

type Category struct {
	ID           string
	OwnerID      string
	GroupID      string
	Name         string
	Position     int
	CreatedMonth Month
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Target       *Target
}

// Transaction is read-only for the engine. An empty CategoryID marks income
// or any other uncategorized flow.
type Transaction struct {
	ID         string
	OwnerID    string
	AccountID  string
	CategoryID string
	Amount     money.Money
	Date       time.Time
	Cleared    bool
	Note       string
	CreatedAt  time.Time
}

type TargetType string

const (
	TargetMonthly TargetType = "monthly"
	TargetByDate  TargetType = "by_date"
)

// RefillType decides whether an unmet monthly target is owed again next month.
type RefillType string

const (
	RefillReset RefillType = "reset"
	RefillCarry RefillType = "carry"
)

type Target struct {
	Type        TargetType
	Amount      money.Money
	DayOfMonth  int
	TargetMonth Month
	RefillType  RefillType
	StartMonth  Month
}

// AssignmentWrite replaces the assigned amount of one category-month, provided
// the stored value still equals Expected.
type AssignmentWrite struct {
	CategoryID string
	Month      Month
	Expected   money.Money
	Amount     money.Money
}

// RESPONSES:

type Status string

const (
	StatusOverspent   Status = "overspent"
	StatusFunded      Status = "funded"
	StatusUnderfunded Status = "underfunded"
	StatusSpent       Status = "spent"
	StatusAvailable   Status = "available"
	StatusEmpty       Status = "empty"
)

type TargetProgress struct {
	Type       TargetType
	Amount     money.Money
	Needed     money.Money
	Progress   float64
	DayOfMonth int
}

// CategoryBudgetData is the derived state of one category in one month.
type CategoryBudgetData struct {
	CategoryID string
	Name       string
	Month      Month
	Assigned   money.Money
	Activity   money.Money
	Available  money.Money
	Status     Status
	Target     *TargetProgress
}

type GroupBudget struct {
	Group   CategoryGroup
	Budgets []CategoryBudgetData
}

type BudgetView struct {
	Month          Month
	ReadyToAssign  money.Money
	CategoryGroups []GroupBudget
}

type MoveMode string

const (
	MoveSurplus        MoveMode = "surplus"
	MoveCoverOverspend MoveMode = "cover_overspend"
)

type MoveResult struct {
	Mode   MoveMode
	Source CategoryBudgetData
	Dest   CategoryBudgetData
}

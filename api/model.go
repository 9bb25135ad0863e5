package api

import (
	"errors"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

// REQUESTS START:
type SetAssignedRequest struct {
	Amount *int64 `json:"amount"`
}

type MoveMoneyRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type TargetRequest struct {
	Type        string       `json:"type"`
	Amount      int64        `json:"amount"`
	DayOfMonth  int          `json:"day_of_month"`
	TargetMonth budget.Month `json:"target_month"`
	RefillType  string       `json:"refill_type"`
	StartMonth  budget.Month `json:"start_month"`
}

type GroupRequest struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type CategoryRequest struct {
	GroupID  string `json:"group_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type UpdateCategoryRequest struct {
	Name     string `json:"name"`
	GroupID  string `json:"group_id"`
	Position *int   `json:"position"`
}

type CreateTransactionRequest struct {
	AccountID  string `json:"account_id"`
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"` // keep as string to allow "-145.00"
	Date       string `json:"date"`   // YYYY-MM-DD or RFC3339
	Cleared    bool   `json:"cleared"`
	Note       string `json:"note"`
}

//REQUESTS END:

//RESPONSES:

type MessageResponse struct {
	Message string `json:"message"`
}

type TargetItem struct {
	Type       string  `json:"type"`
	Amount     int64   `json:"amount"`
	Needed     int64   `json:"needed"`
	Progress   float64 `json:"progress"`
	DayOfMonth int     `json:"day_of_month,omitempty"`
}

type CategoryBudgetItem struct {
	CategoryID string      `json:"category_id"`
	Name       string      `json:"name"`
	Assigned   int64       `json:"assigned"`
	Activity   int64       `json:"activity"`
	Available  int64       `json:"available"`
	Status     string      `json:"status"`
	Target     *TargetItem `json:"target,omitempty"`
}

type GroupBudgetItem struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Categories []CategoryBudgetItem `json:"categories"`
}

type BudgetResponse struct {
	Month                  budget.Month      `json:"month"`
	ReadyToAssign          int64             `json:"ready_to_assign"`
	ReadyToAssignFormatted string            `json:"ready_to_assign_formatted"`
	CategoryGroups         []GroupBudgetItem `json:"category_groups"`
}

type MoveMoneyResponse struct {
	Mode        string             `json:"mode"`
	Source      CategoryBudgetItem `json:"source"`
	Destination CategoryBudgetItem `json:"destination"`
}

type GroupItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type CategoryItem struct {
	ID           string        `json:"id"`
	GroupID      string        `json:"group_id"`
	Name         string        `json:"name"`
	Position     int           `json:"position"`
	CreatedMonth budget.Month  `json:"created_month"`
	Target       *TargetRequest `json:"target,omitempty"`
}

type ListCategoriesResponse struct {
	Groups     []GroupItem    `json:"groups"`
	Categories []CategoryItem `json:"categories"`
}

type TransactionItem struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
	Amount     int64  `json:"amount"`
	Date       string `json:"date"`
	Cleared    bool   `json:"cleared"`
	Note       string `json:"note,omitempty"`
}

//RESPONSES END:

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrNotFound:
		return 404 // not found
	case appErrors.ErrInvalidInput:
		return 400 // bad request
	case appErrors.ErrInvalidAmount:
		return 422 // unprocessable
	case appErrors.ErrConcurrentModification:
		return 409 // retry with fresh data
	case appErrors.ErrCrossOwnerOperation:
		return 403 // access denied
	case appErrors.ErrConflict:
		return 409 // conflict
	case appErrors.ErrAuth:
		return 401 // unauthorized
	default:
		return 500 //internal error
	}
}

// errorBody hides everything but coded messages from clients.
func errorBody(err error) appErrors.ErrorResponse {
	var appErr appErrors.ErrorResponse
	if errors.As(err, &appErr) && appErr.Code != appErrors.ErrInternal {
		return appErr
	}
	return appErrors.New(appErrors.ErrInternal, "Something went wrong, try again later.")
}

func CategoryBudgetToHttp(data budget.CategoryBudgetData) CategoryBudgetItem {
	item := CategoryBudgetItem{
		CategoryID: data.CategoryID,
		Name:       data.Name,
		Assigned:   data.Assigned.Cents(),
		Activity:   data.Activity.Cents(),
		Available:  data.Available.Cents(),
		Status:     string(data.Status),
	}
	if data.Target != nil {
		item.Target = &TargetItem{
			Type:       string(data.Target.Type),
			Amount:     data.Target.Amount.Cents(),
			Needed:     data.Target.Needed.Cents(),
			Progress:   data.Target.Progress,
			DayOfMonth: data.Target.DayOfMonth,
		}
	}
	return item
}

func BudgetToHttp(view budget.BudgetView) BudgetResponse {
	resp := BudgetResponse{
		Month:                  view.Month,
		ReadyToAssign:          view.ReadyToAssign.Cents(),
		ReadyToAssignFormatted: view.ReadyToAssign.String(),
		CategoryGroups:         make([]GroupBudgetItem, 0, len(view.CategoryGroups)),
	}
	for _, g := range view.CategoryGroups {
		item := GroupBudgetItem{
			ID:         g.Group.ID,
			Name:       g.Group.Name,
			Categories: make([]CategoryBudgetItem, 0, len(g.Budgets)),
		}
		for _, b := range g.Budgets {
			item.Categories = append(item.Categories, CategoryBudgetToHttp(b))
		}
		resp.CategoryGroups = append(resp.CategoryGroups, item)
	}
	return resp
}

func (t TargetRequest) toTarget() budget.Target {
	return budget.Target{
		Type:        budget.TargetType(t.Type),
		Amount:      money.Cents(t.Amount),
		DayOfMonth:  t.DayOfMonth,
		TargetMonth: t.TargetMonth,
		RefillType:  budget.RefillType(t.RefillType),
		StartMonth:  t.StartMonth,
	}
}

func TargetToHttp(t *budget.Target) *TargetRequest {
	if t == nil {
		return nil
	}
	return &TargetRequest{
		Type:        string(t.Type),
		Amount:      t.Amount.Cents(),
		DayOfMonth:  t.DayOfMonth,
		TargetMonth: t.TargetMonth,
		RefillType:  string(t.RefillType),
		StartMonth:  t.StartMonth,
	}
}

func CategoryToHttp(c budget.Category) CategoryItem {
	return CategoryItem{
		ID:           c.ID,
		GroupID:      c.GroupID,
		Name:         c.Name,
		Position:     c.Position,
		CreatedMonth: c.CreatedMonth,
		Target:       TargetToHttp(c.Target),
	}
}

func GroupToHttp(g budget.CategoryGroup) GroupItem {
	return GroupItem{ID: g.ID, Name: g.Name, Position: g.Position}
}

func TransactionToHttp(t budget.Transaction) TransactionItem {
	return TransactionItem{
		ID:         t.ID,
		AccountID:  t.AccountID,
		CategoryID: t.CategoryID,
		Amount:     t.Amount.Cents(),
		Date:       t.Date.Format(time.RFC3339),
		Cleared:    t.Cleared,
		Note:       t.Note,
	}
}

// parseTransactionDate accepts a calendar day or a full RFC3339 timestamp.
func parseTransactionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, appErrors.New(appErrors.ErrInvalidInput, "invalid date %q, expected YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

package storage

import (
	"database/sql"
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

type dbCategory struct {
	ID       string
	OwnerID  string
	GroupID  string
	Name     string
	Position int
}

// dbTarget is the LEFT JOINed target row; every column is NULL when the
// category has no target.
type dbTarget struct {
	Type        sql.NullString
	Amount      sql.NullInt64
	DayOfMonth  sql.NullInt64
	TargetMonth sql.NullString
	RefillType  sql.NullString
	StartMonth  sql.NullString
}

func (t dbTarget) toTarget() (*budget.Target, error) {
	if !t.Type.Valid {
		return nil, nil
	}
	target := &budget.Target{
		Type:       budget.TargetType(t.Type.String),
		Amount:     money.Money(t.Amount.Int64),
		DayOfMonth: int(t.DayOfMonth.Int64),
		RefillType: budget.RefillType(t.RefillType.String),
	}
	var err error
	if target.TargetMonth, err = parseOptionalMonth(t.TargetMonth.String); err != nil {
		return nil, err
	}
	if target.StartMonth, err = parseOptionalMonth(t.StartMonth.String); err != nil {
		return nil, err
	}
	return target, nil
}

func parseOptionalMonth(s string) (budget.Month, error) {
	if s == "" {
		return budget.Month{}, nil
	}
	return budget.ParseMonth(s)
}

func formatOptionalMonth(m budget.Month) string {
	if m.IsZero() {
		return ""
	}
	return m.String()
}

// Timestamps are stored as UTC unix milliseconds so both dialects compare
// them the same way.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

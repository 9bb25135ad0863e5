package budget

import (
	"context"
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/money"
)

type EventType string

const (
	EventAssignmentSet EventType = "assignment.set"
	EventMoneyMoved    EventType = "money.moved"
	EventTargetSet     EventType = "target.set"
	EventTargetCleared EventType = "target.cleared"
)

// Event describes a committed change to an owner's budget.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	OwnerID       string      `json:"owner_id"`
	CategoryID    string      `json:"category_id,omitempty"`
	DestinationID string      `json:"destination_id,omitempty"`
	Month         Month       `json:"month"`
	Amount        money.Money `json:"amount"`
	Mode          MoveMode    `json:"mode,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, event Event) error {
	return nil
}

package notify

import (
	"context"

	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/logging"
)

// LogPublisher writes events to the application log. It is used when no
// broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event budget.Event) error {
	logging.Logger.Infof("[TraceID=%s] | %s owner=%s category=%s month=%s amount=%s",
		contextutil.TraceIDFromContext(ctx), event.Type, event.OwnerID, event.CategoryID, event.Month, event.Amount)
	return nil
}

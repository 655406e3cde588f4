package fulfill

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RunOverdueSweep marks every pending invoice whose due date has passed as
// overdue and returns how many changed. Running it twice with the same
// time changes nothing the second time.
func (e *Engine) RunOverdueSweep(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := e.startSpan(ctx, "RunOverdueSweep")
	defer span.End()

	n, err := e.store.MarkOverdue(ctx, now)
	if err != nil {
		recordError(span, err)
		return 0, fmt.Errorf("overdue sweep: %w", err)
	}
	span.SetAttributes(attribute.Int64("invoices.overdue", n))

	if n > 0 {
		e.plugins.EmitInvoicesOverdue(ctx, n)
	}
	e.logger.Info("overdue sweep completed", "marked", n)

	return n, nil
}

package fulfill

import (
	"context"
	"fmt"
	"time"
)

// BillingStats returns dashboard figures as of now. Monthly revenue covers
// invoices paid in now's calendar month (UTC); services due billing are
// the active ones falling due within the billing horizon.
func (e *Engine) BillingStats(ctx context.Context, now time.Time) (*Stats, error) {
	ctx, span := e.startSpan(ctx, "BillingStats")
	defer span.End()

	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	st, err := e.store.BillingStats(ctx, monthStart, monthEnd, now.Add(e.billingHorizon))
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("billing stats: %w", err)
	}
	return st, nil
}

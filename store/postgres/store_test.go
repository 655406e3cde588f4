package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/postgres"
	"github.com/xraph/fulfill/store/storetest"
)

// TestConformance runs against a live database named by FULFILL_POSTGRES_DSN.
// Every case starts from truncated tables.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("FULFILL_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FULFILL_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()

		drv := pgdriver.New()
		require.NoError(t, drv.Open(ctx, dsn))
		db, err := grove.Open(drv)
		require.NoError(t, err)

		s := postgres.New(db)
		require.NoError(t, s.Migrate(ctx))
		_, err = drv.Exec(ctx, `TRUNCATE fulfill_customers, fulfill_service_types,
			fulfill_orders, fulfill_invoices, fulfill_services`)
		require.NoError(t, err)
		return s
	})
}

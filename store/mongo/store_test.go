package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/mongo"
	"github.com/xraph/fulfill/store/storetest"
)

// TestConformance runs against the server named by FULFILL_MONGO_URI. Each
// case gets its own database, dropped on cleanup. The suite runs once with
// transaction support detected from the server and once with ordered,
// compensated writes.
func TestConformance(t *testing.T) {
	uri := os.Getenv("FULFILL_MONGO_URI")
	if uri == "" {
		t.Skip("FULFILL_MONGO_URI not set")
	}

	t.Run("Detected", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store { return openStore(t, uri) })
	})
	t.Run("WithoutTransactions", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store {
			s := openStore(t, uri, mongo.WithTransactions(false))
			require.False(t, s.Transactions())
			return s
		})
	})
}

func openStore(t *testing.T, uri string, opts ...mongo.Option) *droppingStore {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("fulfill_test_%d", time.Now().UnixNano())
	drv := mongodriver.New()
	require.NoError(t, drv.Open(ctx, uri, mongodriver.WithDatabase(name)))

	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := mongo.New(db, opts...)
	require.NoError(t, s.Migrate(ctx))
	return &droppingStore{Store: s, drv: drv}
}

// droppingStore removes its database before disconnecting.
type droppingStore struct {
	*mongo.Store
	drv *mongodriver.MongoDB
}

func (s *droppingStore) Close() error {
	_ = s.drv.Database().Drop(context.Background())
	return s.Store.Close()
}

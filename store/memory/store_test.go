package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/store/storetest"
	"github.com/xraph/fulfill/types"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	c := &customer.Customer{
		Entity:   types.NewEntity(),
		ID:       id.NewCustomerID(),
		Name:     "Jane",
		Email:    "jane@example.com",
		Metadata: map[string]string{"tier": "gold"},
	}
	require.NoError(t, s.CreateCustomer(ctx, c))

	c.Name = "changed"
	c.Metadata["tier"] = "changed"

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, "gold", got.Metadata["tier"])

	got.Metadata["tier"] = "mutated"
	again, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "gold", again.Metadata["tier"])
}

func TestLifecycleNoops(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	assert.NoError(t, s.Migrate(ctx))
	assert.NoError(t, s.Ping(ctx))
	assert.NoError(t, s.Close())
}

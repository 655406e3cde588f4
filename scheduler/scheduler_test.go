package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/scheduler"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/types"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	times    []time.Time
	billErr  error
	sweepErr error
}

func (r *fakeRunner) RunRecurringBilling(_ context.Context, now time.Time) (*fulfill.BillingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "bill")
	r.times = append(r.times, now)
	if r.billErr != nil {
		return nil, r.billErr
	}
	return &fulfill.BillingResult{Generated: 2}, nil
}

func (r *fakeRunner) RunOverdueSweep(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "sweep")
	r.times = append(r.times, now)
	return 5, r.sweepErr
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTickBillsThenSweepsAtOneInstant(t *testing.T) {
	r := &fakeRunner{}
	s := scheduler.New(r, scheduler.WithClock(func() time.Time { return t0 }), scheduler.WithLogger(quietLogger()))

	res, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bill", "sweep"}, r.calls)
	assert.Equal(t, []time.Time{t0, t0}, r.times)
	assert.Equal(t, t0, res.At)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Billing.Generated)
	assert.Equal(t, int64(5), res.Overdue)
}

func TestTickSweepsWhenBillingFails(t *testing.T) {
	r := &fakeRunner{billErr: errors.New("store unavailable")}
	s := scheduler.New(r, scheduler.WithLogger(quietLogger()))

	res, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Equal(t, []string{"bill", "sweep"}, r.calls)
	assert.Equal(t, int64(5), res.Overdue)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeRunner{}
	s := scheduler.New(r,
		scheduler.WithInterval(5*time.Millisecond),
		scheduler.WithRunOnStart(),
		scheduler.WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.callCount() >= 4 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	s := scheduler.New(&fakeRunner{}, scheduler.WithInterval(0), scheduler.WithLogger(quietLogger()))
	assert.Error(t, s.Run(context.Background()))
}

func TestRedisLockerExclusive(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := scheduler.NewRedisLocker(client, "test:")
	b := scheduler.NewRedisLocker(client, "test:")

	release, ok, err := a.Acquire(ctx, "billing", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:billing"))

	_, ok, err = b.Acquire(ctx, "billing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:billing"))

	_, ok, err = b.Acquire(ctx, "billing", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerExpiredHolderKeepsSuccessorLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	l := scheduler.NewRedisLocker(client, "")

	stale, ok, err := l.Acquire(ctx, "billing", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = l.Acquire(ctx, "billing", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("billing"))
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	locker := scheduler.NewRedisLocker(client, "")

	_, ok, err := locker.Acquire(ctx, scheduler.DefaultLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	r := &fakeRunner{}
	s := scheduler.New(r, scheduler.WithLocker(locker), scheduler.WithLogger(quietLogger()))
	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, r.calls)
}

func TestTickReleasesLock(t *testing.T) {
	mr, client := newRedis(t)
	r := &fakeRunner{}
	s := scheduler.New(r,
		scheduler.WithLocker(scheduler.NewRedisLocker(client, "fulfill:")),
		scheduler.WithLockKey("nightly"),
		scheduler.WithLogger(quietLogger()),
	)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	_, err = s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bill", "sweep", "bill", "sweep"}, r.calls)
	assert.False(t, mr.Exists("fulfill:nightly"))
}

func TestTickDrivesEngine(t *testing.T) {
	ctx := context.Background()
	e := fulfill.New(memory.New(), fulfill.WithLogger(quietLogger()))
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	c := &customer.Customer{Name: "Jane Doe", Email: "jane@example.com"}
	require.NoError(t, e.CreateCustomer(ctx, c, t0))
	st := &servicetype.ServiceType{
		Name: "Basic Hosting", Slug: "basic-hosting", Type: servicetype.TypeHosting,
		Price: types.USD(999), BillingCycle: servicetype.CycleMonthly, Active: true,
	}
	require.NoError(t, e.CreateServiceType(ctx, st, t0))

	o, _, err := e.CreateOrder(ctx, c.ID, []order.ItemInput{{ServiceTypeID: st.ID, Quantity: 1, DomainName: "example.com"}}, t0)
	require.NoError(t, err)
	_, err = e.MarkPaid(ctx, o.ID, t0)
	require.NoError(t, err)

	// An unpaid order whose invoice falls overdue before the tick.
	_, _, err = e.CreateOrder(ctx, c.ID, []order.ItemInput{{ServiceTypeID: st.ID, Quantity: 1}}, t0)
	require.NoError(t, err)

	tick := t0.AddDate(0, 2, 0)
	s := scheduler.New(e, scheduler.WithClock(func() time.Time { return tick }), scheduler.WithLogger(quietLogger()))
	res, err := s.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Billing.Generated)
	assert.Equal(t, int64(1), res.Overdue)
}

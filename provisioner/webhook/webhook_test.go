package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/provisioner/webhook"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

func testService() (*service.Service, *servicetype.ServiceType) {
	st := &servicetype.ServiceType{
		ID:           id.NewServiceTypeID(),
		Name:         "Basic Hosting",
		Slug:         "basic-hosting",
		Type:         servicetype.TypeHosting,
		Price:        types.USD(999),
		BillingCycle: servicetype.CycleMonthly,
		Active:       true,
	}
	svc := &service.Service{
		ID:            id.NewServiceID(),
		CustomerID:    id.NewCustomerID(),
		ServiceTypeID: st.ID,
		DomainName:    "example.com",
		Status:        service.StatusActive,
	}
	return svc, st
}

func TestProvisionPostsPayload(t *testing.T) {
	var got webhook.Payload
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := webhook.New(srv.URL, webhook.WithToken("secret"), webhook.WithRetries(0, time.Millisecond))
	svc, st := testService()

	require.NoError(t, p.Provision(context.Background(), svc, st))
	assert.Equal(t, webhook.PathProvision, path)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "service.provision", got.Event)
	require.NotNil(t, got.Service)
	assert.Equal(t, svc.ID.String(), got.Service.ID.String())
	assert.Equal(t, "example.com", got.Service.DomainName)
	require.NotNil(t, got.ServiceType)
	assert.Equal(t, "basic-hosting", got.ServiceType.Slug)
}

func TestProvisionNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad domain"}`))
	}))
	defer srv.Close()

	p := webhook.New(srv.URL, webhook.WithRetries(0, time.Millisecond))
	svc, st := testService()

	err := p.Provision(context.Background(), svc, st)
	require.Error(t, err)

	var statusErr *webhook.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad domain")
}

func TestProvisionRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := webhook.New(srv.URL, webhook.WithRetries(3, time.Millisecond))
	svc, st := testService()

	require.NoError(t, p.Provision(context.Background(), svc, st))
	assert.Equal(t, int32(3), calls.Load())
}

func TestStatusChangePaths(t *testing.T) {
	var (
		paths  []string
		events []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body webhook.Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		paths = append(paths, r.URL.Path)
		events = append(events, body.Event)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := webhook.New(srv.URL, webhook.WithRetries(0, time.Millisecond))
	svc, _ := testService()

	require.NoError(t, p.Suspend(context.Background(), svc))
	require.NoError(t, p.Reactivate(context.Background(), svc))
	require.NoError(t, p.Cancel(context.Background(), svc))
	assert.Equal(t, []string{webhook.PathSuspend, webhook.PathReactivate, webhook.PathCancel}, paths)
	assert.Equal(t, []string{"service.suspend", "service.reactivate", "service.cancel"}, events)
}

func TestProvisionHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := webhook.New(srv.URL, webhook.WithRetries(0, time.Millisecond))
	svc, st := testService()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Provision(ctx, svc, st)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

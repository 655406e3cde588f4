// Package provisioner defines the boundary between the engine and the
// systems that actually create hosting accounts, register domains, issue
// certificates and open mailboxes.
package provisioner

import (
	"context"

	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

// Provisioner performs the external side effect for a committed service.
// It is called after the service row is durable and outside any store
// transaction. A returned error never retracts the service.
type Provisioner interface {
	Provision(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error
}

// Suspender is implemented by provisioners that can pause and resume an
// already provisioned service.
type Suspender interface {
	Suspend(ctx context.Context, svc *service.Service) error
	Reactivate(ctx context.Context, svc *service.Service) error
}

// Canceller is implemented by provisioners that tear a service down for
// good. Without it a cancellation is sent as a suspension.
type Canceller interface {
	Cancel(ctx context.Context, svc *service.Service) error
}

// Nop accepts every service without contacting anything.
type Nop struct{}

func (Nop) Provision(context.Context, *service.Service, *servicetype.ServiceType) error { return nil }

// Func adapts a function into a Provisioner.
type Func func(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error

func (f Func) Provision(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error {
	return f(ctx, svc, st)
}

package servicetype

import (
	"context"

	"github.com/xraph/fulfill/id"
)

// Store persists the service catalog. Slugs are unique.
type Store interface {
	CreateServiceType(ctx context.Context, st *ServiceType) error
	GetServiceType(ctx context.Context, stID id.ServiceTypeID) (*ServiceType, error)
	GetServiceTypeBySlug(ctx context.Context, slug string) (*ServiceType, error)
	ListServiceTypes(ctx context.Context, opts ListOpts) ([]*ServiceType, error)
	DeleteServiceType(ctx context.Context, stID id.ServiceTypeID) error
}

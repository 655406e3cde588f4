// Package servicetype defines the catalog of sellable products and the
// billing-cycle arithmetic that drives recurring invoices.
package servicetype

import (
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/types"
)

// Type selects the provisioning payload built for a service.
type Type string

const (
	TypeHosting Type = "hosting"
	TypeDomain  Type = "domain"
	TypeSSL     Type = "ssl"
	TypeEmail   Type = "email"
)

// Valid reports whether t is one of the known service types.
func (t Type) Valid() bool {
	switch t {
	case TypeHosting, TypeDomain, TypeSSL, TypeEmail:
		return true
	}
	return false
}

// ServiceType is read-only reference data for the engine.
type ServiceType struct {
	types.Entity
	ID           id.ServiceTypeID `json:"id"`
	Name         string           `json:"name"`
	Slug         string           `json:"slug"`
	Description  string           `json:"description,omitempty"`
	Type         Type             `json:"type"`
	Price        types.Money      `json:"price"`
	BillingCycle BillingCycle     `json:"billing_cycle"`
	Features     map[string]any   `json:"features,omitempty"`
	Active       bool             `json:"active"`
}

// ListOpts filters service type listings.
type ListOpts struct {
	ActiveOnly bool
	Type       Type
	Limit      int
	Offset     int
}

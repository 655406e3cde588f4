// Package customer defines the customer reference entity. The engine reads
// customers to validate orders but never mutates them.
package customer

import (
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/types"
)

// Customer is the account that places orders and owns services.
type Customer struct {
	types.Entity
	ID       id.CustomerID     `json:"id"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Company  string            `json:"company,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

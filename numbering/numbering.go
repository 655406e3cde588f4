// Package numbering generates human-facing document numbers for orders,
// invoices and provisioned servers.
package numbering

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Document number prefixes.
const (
	OrderPrefix   = "ORD-"
	InvoicePrefix = "INV-"
	ServerPrefix  = "SRV-"
)

// Generator produces unique, lexically sortable document numbers.
type Generator interface {
	Order(now time.Time) string
	Invoice(now time.Time) string
	Server(now time.Time) string
}

// ULID is a Generator backed by monotonic ULIDs. Numbers generated within
// the same millisecond still sort in generation order.
type ULID struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULID returns a ULID generator with monotonic entropy.
func NewULID() *ULID {
	return &ULID{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewULIDWithEntropy returns a ULID generator reading from r. Tests pass a
// fixed reader to force collisions.
func NewULIDWithEntropy(r io.Reader) *ULID {
	return &ULID{entropy: r}
}

func (g *ULID) Order(now time.Time) string   { return OrderPrefix + g.next(now) }
func (g *ULID) Invoice(now time.Time) string { return InvoicePrefix + g.next(now) }
func (g *ULID) Server(now time.Time) string  { return ServerPrefix + g.next(now) }

func (g *ULID) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		// Monotonic entropy overflows only after 2^80 numbers in one
		// millisecond; fall back to fresh randomness.
		return ulid.Make().String()
	}
	return u.String()
}

// Func adapts plain functions into a Generator.
type Func func(prefix string, now time.Time) string

func (f Func) Order(now time.Time) string   { return f(OrderPrefix, now) }
func (f Func) Invoice(now time.Time) string { return f(InvoicePrefix, now) }
func (f Func) Server(now time.Time) string  { return f(ServerPrefix, now) }

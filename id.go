package fulfill

import "github.com/xraph/fulfill/id"

// ID is the primary identifier type for all fulfill entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

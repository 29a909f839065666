package tempo

import "github.com/tempohq/tempo/id"

// ID is the primary identifier type for all tempo entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix

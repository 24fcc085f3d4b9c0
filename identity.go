package variants

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ID prefixes make identifiers recognizable in logs, storage keys and
// database rows. The prefix must remain stable over time.
const (
	setIDPrefix    = "set_"
	resultIDPrefix = "res_"
	attIDPrefix    = "att_"
)

// NewVariantSetID returns a new unique variant set identifier.
//
// IDs are prefixed ULIDs: lexicographically sortable by creation time, which
// keeps database scans over recent sets cheap and makes the creation instant
// recoverable from the ID itself.
func NewVariantSetID() string {
	return setIDPrefix + newULID()
}

// NewVariantResultID returns a new unique variant result identifier.
func NewVariantResultID() string {
	return resultIDPrefix + newULID()
}

// NewAttachmentID returns a new unique attachment identifier, used to name
// uploaded originals in the storage gateway.
func NewAttachmentID() string {
	return attIDPrefix + newULID()
}

func newULID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

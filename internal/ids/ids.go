// Package ids mints the identifiers assigned to clients, users and roles.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// A single monotonic entropy source keeps IDs minted within the same
// millisecond ordered. ulid.Monotonic readers are not safe for concurrent
// use, hence the mutex.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a ULID string. IDs sort lexicographically by creation time,
// which keeps primary-key indexes append-mostly.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

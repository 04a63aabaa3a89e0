// Package trace issues time-sortable ids that tie one scan cycle's log lines
// and audit rows together.
package trace

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID for t; ids from the same millisecond stay increasing.
func New(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t.UTC()), entropy)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

// Time recovers the timestamp encoded in id.
func Time(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}

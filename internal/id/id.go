package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// ulid.Monotonic keeps IDs from the same millisecond lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the current wall clock.
func New() string {
	return At(time.Now())
}

// At returns a ULID whose timestamp component is t. Ledger rows use the
// cycle time so that IDs sort with the rows they identify.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible if entropy fails or t is before the Unix epoch.
		panic(err)
	}
	return id.String()
}

// Time extracts the timestamp encoded in a ULID string.
func Time(s string) (time.Time, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}

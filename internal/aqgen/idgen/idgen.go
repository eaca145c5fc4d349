package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// Allocator hands out globally unique opaque record identifiers.  Callers
// must treat the returned string as opaque and must not depend on its
// internal structure.
type Allocator interface {
	Allocate() (string, error)
}

// UlidAllocator is the production Allocator.  Monotonic entropy is shared
// across callers under a mutex so ids allocated by concurrent workers remain
// unique and roughly time-ordered.
type UlidAllocator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewUlidAllocator() *UlidAllocator {
	return &UlidAllocator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (a *UlidAllocator) Allocate() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := ulid.New(ulid.Now(), a.entropy)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return strings.ToLower(id.String()), nil
}

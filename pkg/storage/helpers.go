package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// ===== HELPER FUNCTIONS =====

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// identityText stores the zero identity as the empty string
func identityText(id protocol.Identity) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func parseIdentity(s string) (protocol.Identity, error) {
	if s == "" {
		return protocol.Identity{}, nil
	}
	return protocol.ParseIdentity(s)
}

// scanID copies a BLOB column into a fixed-size id
func scanID(dst []byte, src []byte, what string) error {
	if len(src) == 0 {
		return nil
	}
	if len(src) != len(dst) {
		return fmt.Errorf("corrupt %s: %d bytes", what, len(src))
	}
	copy(dst, src)
	return nil
}

// keyedMutex serializes work per key. Entries are dropped once no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns its unlock function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

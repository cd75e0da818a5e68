package buffer

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
)

// ErrBufferFull is returned when every slot is pinned and no victim
// can be evicted.
var ErrBufferFull = errors.New("buffer: no unpinned victim available")

// ErrSlotIOFailed is returned to a caller that observes a slot's
// IO_ERR bit after waiting for another goroutine's load to finish; the
// next acquirer retries the I/O.
var ErrSlotIOFailed = errors.New("buffer: slot load failed, retry")

// Loader produces a value for a key that is not yet cached.
type Loader[K comparable, V any] interface {
	Load(k K) (V, error)
}

// Storer persists a dirty slot's value back to its origin.
type Storer[K comparable, V any] interface {
	Store(k K, v V) error
}

// EvictPolicy decides which slot is evicted when the cache is full. It
// only ever sees policy-private data, never the cached value itself.
type EvictPolicy[K comparable] interface {
	OnCreateSlot(k K) any
	OnUseSlot(k K, data any)
	OnDropSlot(k K, data any)
	// EvictCandidate nominates a victim key from entries (key ->
	// that key's policy data). The cache passes only slots that were
	// unpinned when it scanned the map. ok is false if entries is empty.
	EvictCandidate(entries map[K]any) (key K, ok bool)
}

// Cache is a fixed-capacity, generically parameterized pinned shared
// buffer cache.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	slots    map[K]*Slot[K, V]

	loader Loader[K, V]
	storer Storer[K, V]
	policy EvictPolicy[K]
	logger *slog.Logger
}

// NewCache returns an empty cache with room for capacity slots.
func NewCache[K comparable, V any](capacity int, loader Loader[K, V], storer Storer[K, V], policy EvictPolicy[K], logger *slog.Logger) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		slots:    make(map[K]*Slot[K, V]),
		loader:   loader,
		storer:   storer,
		policy:   policy,
		logger:   logger,
	}
}

// PinGuard is the handle returned by Read: it keeps its slot pinned
// until Unpin is called.
type PinGuard[K comparable, V any] struct {
	slot *Slot[K, V]
}

// Value returns the pinned slot's current value.
func (g *PinGuard[K, V]) Value() V { return g.slot.Get() }

// Set writes v into the pinned slot and marks it dirty.
func (g *PinGuard[K, V]) Set(v V) { g.slot.Set(v) }

// Unpin releases the pin. It never blocks.
func (g *PinGuard[K, V]) Unpin() { g.slot.unpin() }

// Read obtains a pinned, valid slot for k, loading it if necessary.
func (c *Cache[K, V]) Read(k K) (*PinGuard[K, V], error) {
	slot, err := c.acquire(k)
	if err != nil {
		return nil, err
	}

	if slot.isValid() {
		return &PinGuard[K, V]{slot: slot}, nil
	}

	if slot.startIO(true) {
		v, err := c.loader.Load(k)
		if err != nil {
			slot.endIO(true, false)
			slot.unpin()
			if c.logger != nil {
				c.logger.Warn("buffer: load failed", "error", err)
			}
			return nil, err
		}
		slot.mu.Lock()
		slot.value = v
		slot.mu.Unlock()
		slot.endIO(true, true)
		return &PinGuard[K, V]{slot: slot}, nil
	}

	// Another goroutine already owns the load; wait for it to finish.
	for !slot.isValid() {
		if slot.state.Load()&ioErrBit != 0 {
			slot.unpin()
			return nil, ErrSlotIOFailed
		}
		runtime.Gosched()
	}
	return &PinGuard[K, V]{slot: slot}, nil
}

// acquire returns a pinned slot for k, creating or evicting as needed.
func (c *Cache[K, V]) acquire(k K) (*Slot[K, V], error) {
	c.mu.RLock()
	if s, ok := c.slots[k]; ok {
		s.pin()
		c.policy.OnUseSlot(k, s.evict)
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	for {
		c.mu.Lock()
		if s, ok := c.slots[k]; ok {
			s.pin()
			c.policy.OnUseSlot(k, s.evict)
			c.mu.Unlock()
			return s, nil
		}
		if len(c.slots) < c.capacity {
			s := c.newSlotLocked(k)
			c.mu.Unlock()
			return s, nil
		}

		entries := make(map[K]any, len(c.slots))
		for key, sl := range c.slots {
			if sl.pinCount() != 0 {
				continue
			}
			entries[key] = sl.evict
		}
		victimKey, ok := c.policy.EvictCandidate(entries)
		c.mu.Unlock()
		if !ok {
			return nil, ErrBufferFull
		}

		c.mu.RLock()
		victim, ok := c.slots[victimKey]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		if !victim.pinIfZero() {
			continue
		}

		if victim.isDirty() {
			if err := c.tryFlush(victim); err != nil {
				victim.unpin()
				continue
			}
		}

		c.mu.Lock()
		if _, exists := c.slots[k]; exists {
			c.mu.Unlock()
			victim.unpin()
			continue
		}
		if len(c.slots) >= c.capacity {
			if victim.pinCount() != 1 || victim.isDirty() {
				c.mu.Unlock()
				victim.unpin()
				continue
			}
			delete(c.slots, victimKey)
			c.policy.OnDropSlot(victimKey, victim.evict)
		}
		s := c.newSlotLocked(k)
		c.mu.Unlock()
		victim.unpin()
		return s, nil
	}
}

func (c *Cache[K, V]) newSlotLocked(k K) *Slot[K, V] {
	s := &Slot[K, V]{key: k, evict: c.policy.OnCreateSlot(k)}
	s.state.Store(1) // pinned once, by the caller that just created it
	c.slots[k] = s
	return s
}

// tryFlush attempts a non-blocking flush of a dirty victim: it acquires
// the value read-lock non-blockingly, and the caller retries the whole
// eviction loop on contention rather than waiting here.
func (c *Cache[K, V]) tryFlush(slot *Slot[K, V]) error {
	if !slot.mu.TryRLock() {
		return ErrBufferFull
	}
	defer slot.mu.RUnlock()

	if !slot.startIO(false) {
		return nil
	}
	if err := c.storer.Store(slot.key, slot.value); err != nil {
		slot.endIO(false, false)
		return err
	}
	slot.endIO(false, true)
	return nil
}

// Len returns the number of slots currently cached.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

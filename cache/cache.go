// Package cache implements the adaptive registration cache and the generation memo.
//
// The adaptive cache maps a key to a content hash, tracks how often and when each key
// was read, expires entries after an optional TTL and sweeps itself in the background.
// Entries live in memory, in a JSON file, or both.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
)

const (
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = 5 * time.Minute
)

// Entry is a snapshot of one cached key
type Entry struct {
	Key          string            `json:"key"`
	Hash         string            `json:"hash"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastAccessed time.Time         `json:"lastAccessed"`
	AccessCount  int64             `json:"accessCount"`
	ExpiresAt    *time.Time        `json:"expiresAt,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the entry is past its expiry at now
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// record is the in-memory form of an Entry. Access bookkeeping is atomic so hits
// never take a lock.
type record struct {
	key       string
	hash      string
	createdAt time.Time
	expiresAt *time.Time
	metadata  map[string]string

	lastAccessed atomic.Int64
	accessCount  atomic.Int64
}

func newRecord(e Entry) *record {
	r := &record{
		key:       e.Key,
		hash:      e.Hash,
		createdAt: e.CreatedAt,
		expiresAt: e.ExpiresAt,
		metadata:  e.Metadata,
	}
	r.lastAccessed.Store(e.LastAccessed.UnixNano())
	r.accessCount.Store(e.AccessCount)
	return r
}

func (r *record) entry() Entry {
	return Entry{
		Key:          r.key,
		Hash:         r.hash,
		CreatedAt:    r.createdAt,
		LastAccessed: time.Unix(0, r.lastAccessed.Load()),
		AccessCount:  r.accessCount.Load(),
		ExpiresAt:    r.expiresAt,
		Metadata:     r.metadata,
	}
}

func (r *record) expired(now time.Time) bool {
	return r.expiresAt != nil && now.After(*r.expiresAt)
}

// touch bumps the access count and moves lastAccessed forward, never backward
func (r *record) touch(now time.Time) {
	r.accessCount.Add(1)
	ts := now.UnixNano()
	for {
		prev := r.lastAccessed.Load()
		if ts <= prev || r.lastAccessed.CompareAndSwap(prev, ts) {
			return
		}
	}
}

// Stats are the cache counters since construction
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is the adaptive registration cache.
type Cache struct {
	mode       Mode
	path       string
	ttl        time.Duration
	maxEntries int
	sweepEvery time.Duration
	now        func() time.Time

	// mx serialises memory writes so eviction can compare and delete. Reads never take it.
	mx   sync.Mutex
	mem  *haxmap.Map[string, *record]
	file *fileTier

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a cache and starts its background sweep when an interval is set
func New(opts ...Option) *Cache {
	c := &Cache{
		mode:       Memory,
		maxEntries: DefaultMaxEntries,
		sweepEvery: DefaultSweepInterval,
		now:        time.Now,
		mem:        haxmap.New[string, *record](),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mode.Has(File) {
		if c.path == "" {
			c.path = DefaultFile()
		}
		c.file = &fileTier{path: c.path}
	}

	if c.sweepEvery > 0 {
		go c.run()
	} else {
		close(c.done)
	}
	return c
}

func (c *Cache) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	return nil
}

// Mode returns the configured storage tiers
func (c *Cache) Mode() Mode {
	return c.mode
}

// TryGet returns the entry for key and records the hit. Expired entries are evicted
// and reported as a miss. A file hit is promoted into memory. In File mode the
// touched entry is also written back so the document carries the bookkeeping.
func (c *Cache) TryGet(key string) (Entry, bool) {
	now := c.now()

	if r, ok := c.mem.Get(key); ok {
		if r.expired(now) {
			c.expire(key, r, now)
			c.misses.Add(1)
			return Entry{}, false
		}
		r.touch(now)
		c.hits.Add(1)
		c.writeBack(r)
		return r.entry(), true
	}

	if c.file != nil {
		e, ok, err := c.file.get(key)
		if err == nil && ok {
			if e.Expired(now) {
				c.expire(key, nil, now)
				c.misses.Add(1)
				return Entry{}, false
			}
			r := newRecord(e)
			r.touch(now)
			if cur, loaded := c.promote(key, r); loaded {
				r = cur
			}
			c.hits.Add(1)
			c.writeBack(r)
			return r.entry(), true
		}
	}

	c.misses.Add(1)
	return Entry{}, false
}

// Set stores hash under key, replacing any previous entry. Memory is always written.
func (c *Cache) Set(key, hash string, metadata map[string]string) error {
	now := c.now()
	e := Entry{
		Key:          key,
		Hash:         hash,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		Metadata:     metadata,
	}
	if c.ttl > 0 {
		expires := now.Add(c.ttl)
		e.ExpiresAt = &expires
	}

	c.mx.Lock()
	c.mem.Set(key, newRecord(e))
	c.mx.Unlock()

	if c.file != nil {
		return c.file.put(e)
	}
	return nil
}

// promote stores r under key unless a concurrent Set got there first, in which case
// the stored record is touched and returned instead.
func (c *Cache) promote(key string, r *record) (*record, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if cur, ok := c.mem.Get(key); ok {
		cur.touch(time.Unix(0, r.lastAccessed.Load()))
		return cur, true
	}
	c.mem.Set(key, r)
	return r, false
}

func (c *Cache) writeBack(r *record) {
	if c.file == nil || c.mode.Has(Memory) {
		return
	}
	_ = c.file.update(r.entry())
}

// GetEntry inspects key without recording an access
func (c *Cache) GetEntry(key string) (Entry, bool) {
	if r, ok := c.mem.Get(key); ok {
		return r.entry(), true
	}
	if c.file != nil {
		e, ok, err := c.file.get(key)
		if err == nil && ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove deletes key from every tier
func (c *Cache) Remove(key string) error {
	c.mx.Lock()
	c.mem.Del(key)
	c.mx.Unlock()
	if c.file != nil {
		return c.file.remove(key)
	}
	return nil
}

// expire drops key only where the stale copy is still the one stored: memory is
// compared by record identity and the file tier rechecks expiry under its lock.
// An entry Set in the meantime survives.
func (c *Cache) expire(key string, stale *record, now time.Time) {
	removed := stale != nil && c.drop(key, stale)
	if c.file != nil {
		if ok, err := c.file.removeExpired(key, now); err == nil && ok {
			removed = true
		}
	}
	if removed {
		c.evictions.Add(1)
	}
}

func (c *Cache) drop(key string, stale *record) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	cur, ok := c.mem.Get(key)
	if !ok || cur != stale {
		return false
	}
	c.mem.Del(key)
	return true
}

// Len is the number of entries held in memory
func (c *Cache) Len() int {
	return int(c.mem.Len())
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// Sweep evicts expired entries and, while the cache holds more than its maximum,
// entries read fewer than twice, least used first.
func (c *Cache) Sweep() {
	now := c.now()
	var expired []*record
	var cold []*record

	c.mem.ForEach(func(key string, r *record) bool {
		if r.expired(now) {
			expired = append(expired, r)
			return true
		}
		if r.accessCount.Load() < 2 {
			cold = append(cold, r)
		}
		return true
	})
	for _, r := range expired {
		c.expire(r.key, r, now)
	}

	over := c.Len() - c.maxEntries
	if over > 0 && len(cold) > 0 {
		sort.Slice(cold, func(i, j int) bool {
			ci, cj := cold[i].accessCount.Load(), cold[j].accessCount.Load()
			if ci != cj {
				return ci < cj
			}
			return cold[i].lastAccessed.Load() < cold[j].lastAccessed.Load()
		})
		for i := 0; i < over && i < len(cold); i++ {
			if c.drop(cold[i].key, cold[i]) {
				c.evictions.Add(1)
			}
		}
	}

	if c.file != nil {
		if n, err := c.file.prune(now); err == nil {
			c.evictions.Add(int64(n))
		}
	}
}

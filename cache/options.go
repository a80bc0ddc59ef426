package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects the storage tiers of a Cache
type Mode uint8

const (
	Memory Mode = 1 << iota
	File

	Hybrid = Memory | File
)

// Has reports whether every tier of t is enabled in m
func (m Mode) Has(t Mode) bool {
	return m&t == t
}

func (m Mode) String() string {
	switch m {
	case Memory:
		return "Memory"
	case File:
		return "File"
	case Hybrid:
		return "Hybrid"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode reads Memory, File or Hybrid, case insensitively
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "":
		return Memory, nil
	case "file":
		return File, nil
	case "hybrid":
		return Hybrid, nil
	}
	return 0, fmt.Errorf("unknown cache mode %q", s)
}

// DefaultFile is where the file tier lives when no path is configured
func DefaultFile() string {
	return filepath.Join(os.TempDir(), "mediator_generation_cache.json")
}

type Option func(*Cache)

func WithMode(m Mode) Option {
	return func(c *Cache) {
		c.mode = m
	}
}

func WithFile(path string) Option {
	return func(c *Cache) {
		c.path = path
	}
}

// WithTTL expires entries ttl after they were set. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithSweepInterval sets how often the background sweep runs. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.sweepEvery = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

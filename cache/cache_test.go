package cache_test

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GabrielCarpr/mediator/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type clock struct {
	now atomic.Int64
}

func newClock() *clock {
	c := &clock{}
	c.now.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *clock) Now() time.Time {
	return time.Unix(0, c.now.Load()).UTC()
}

func (c *clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

type CacheSuite struct {
	suite.Suite

	clock *clock
	dir   string
}

func (s *CacheSuite) SetupTest() {
	s.clock = newClock()
	s.dir = s.T().TempDir()
}

func (s *CacheSuite) newCache(opts ...cache.Option) *cache.Cache {
	opts = append([]cache.Option{
		cache.WithClock(s.clock.Now),
		cache.WithSweepInterval(0),
	}, opts...)
	c := cache.New(opts...)
	s.T().Cleanup(func() { c.Close() })
	return c
}

func (s *CacheSuite) TestHitBookkeeping() {
	c := s.newCache()
	s.Require().NoError(c.Set("ping", "abc", nil))

	before, ok := c.GetEntry("ping")
	s.Require().True(ok)
	s.EqualValues(1, before.AccessCount)

	s.clock.Advance(time.Second)
	hit, ok := c.TryGet("ping")
	s.Require().True(ok)
	s.Equal("abc", hit.Hash)
	s.EqualValues(2, hit.AccessCount)
	s.False(hit.LastAccessed.Before(before.LastAccessed))
	s.True(hit.LastAccessed.After(before.LastAccessed))
}

func (s *CacheSuite) TestGetEntryHasNoSideEffect() {
	c := s.newCache()
	s.Require().NoError(c.Set("ping", "abc", map[string]string{"kind": "command"}))

	c.GetEntry("ping")
	c.GetEntry("ping")
	e, ok := c.GetEntry("ping")

	s.True(ok)
	s.EqualValues(1, e.AccessCount)
	s.Equal("command", e.Metadata["kind"])
	s.EqualValues(0, c.Stats().Hits)
}

func (s *CacheSuite) TestMiss() {
	c := s.newCache()

	_, ok := c.TryGet("nothing")
	s.False(ok)
	s.EqualValues(1, c.Stats().Misses)
}

func (s *CacheSuite) TestSetOverwrites() {
	c := s.newCache()
	s.Require().NoError(c.Set("k", "one", nil))
	c.TryGet("k")
	c.TryGet("k")

	s.Require().NoError(c.Set("k", "two", nil))
	e, ok := c.GetEntry("k")
	s.True(ok)
	s.Equal("two", e.Hash)
	s.EqualValues(1, e.AccessCount)
}

func (s *CacheSuite) TestExpiry() {
	c := s.newCache(cache.WithTTL(time.Minute))
	s.Require().NoError(c.Set("k", "h", nil))

	s.clock.Advance(59 * time.Second)
	_, ok := c.TryGet("k")
	s.True(ok, "hit before the ttl elapses")

	s.clock.Advance(2 * time.Second)
	_, ok = c.TryGet("k")
	s.False(ok, "miss after the ttl elapses")

	s.clock.Advance(-time.Hour)
	_, ok = c.TryGet("k")
	s.False(ok, "expired entries are never resurrected")
	s.EqualValues(1, c.Stats().Evictions)
}

func (s *CacheSuite) TestSweepEvictsExpired() {
	c := s.newCache(cache.WithTTL(time.Minute))
	s.Require().NoError(c.Set("old", "h", nil))
	s.clock.Advance(2 * time.Minute)
	s.Require().NoError(c.Set("new", "h", nil))

	c.Sweep()

	_, ok := c.GetEntry("old")
	s.False(ok)
	_, ok = c.GetEntry("new")
	s.True(ok)
}

func (s *CacheSuite) TestSweepProtectsFrequentlyUsedEntries() {
	c := s.newCache(cache.WithMaxEntries(2))
	for _, k := range []string{"a", "b", "c", "d"} {
		s.Require().NoError(c.Set(k, "h", nil))
		s.clock.Advance(time.Second)
	}
	c.TryGet("c")
	c.TryGet("d")

	c.Sweep()

	s.Equal(2, c.Len())
	_, ok := c.GetEntry("c")
	s.True(ok)
	_, ok = c.GetEntry("d")
	s.True(ok)
}

func (s *CacheSuite) TestFileRoundTrip() {
	path := filepath.Join(s.dir, "cache.json")
	writer := s.newCache(cache.WithMode(cache.File), cache.WithFile(path))
	s.Require().NoError(writer.Set("ping", "abc", map[string]string{"source": "generated"}))

	reader := s.newCache(cache.WithMode(cache.File), cache.WithFile(path))
	e, ok := reader.TryGet("ping")
	s.Require().True(ok)
	s.Equal("abc", e.Hash)
	s.Equal("generated", e.Metadata["source"])
}

func (s *CacheSuite) TestHybridRepopulatesMemoryFromFile() {
	path := filepath.Join(s.dir, "cache.json")
	writer := s.newCache(cache.WithMode(cache.Hybrid), cache.WithFile(path))
	s.Require().NoError(writer.Set("ping", "abc", nil))

	reader := s.newCache(cache.WithMode(cache.Hybrid), cache.WithFile(path))
	s.Equal(0, reader.Len())

	_, ok := reader.TryGet("ping")
	s.True(ok)
	s.Equal(1, reader.Len())
}

func (s *CacheSuite) TestExpiredFileEntryIsRemoved() {
	path := filepath.Join(s.dir, "cache.json")
	c := s.newCache(cache.WithMode(cache.File), cache.WithFile(path), cache.WithTTL(time.Second))
	s.Require().NoError(c.Set("k", "h", nil))
	s.clock.Advance(time.Minute)

	_, ok := c.TryGet("k")
	s.False(ok)

	stored, err := cache.Load[map[string]cache.Entry](path)
	s.Require().NoError(err)
	s.NotContains(stored, "k")
}

func (s *CacheSuite) TestConcurrentFileWrites() {
	path := filepath.Join(s.dir, "cache.json")
	c := s.newCache(cache.WithMode(cache.Hybrid), cache.WithFile(path))

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			s.NoError(c.Set(key, "h", nil))
			c.TryGet(key)
		}(i)
	}
	wg.Wait()

	stored, err := cache.Load[map[string]cache.Entry](path)
	s.Require().NoError(err)
	s.Len(stored, 20)
}

func (s *CacheSuite) TestFileModeHitBookkeeping() {
	path := filepath.Join(s.dir, "cache.json")
	c := s.newCache(cache.WithMode(cache.File), cache.WithFile(path))
	s.Require().NoError(c.Set("ping", "abc", nil))
	s.Equal(1, c.Len(), "writes always land in memory")

	s.clock.Advance(time.Second)
	first, ok := c.TryGet("ping")
	s.Require().True(ok)
	s.EqualValues(2, first.AccessCount)

	s.clock.Advance(time.Second)
	second, ok := c.TryGet("ping")
	s.Require().True(ok)
	s.EqualValues(3, second.AccessCount)
	s.True(second.LastAccessed.After(first.LastAccessed))

	e, ok := c.GetEntry("ping")
	s.Require().True(ok)
	s.EqualValues(3, e.AccessCount)

	stored, err := cache.Load[map[string]cache.Entry](path)
	s.Require().NoError(err)
	s.EqualValues(3, stored["ping"].AccessCount)
	s.True(stored["ping"].LastAccessed.Equal(second.LastAccessed))

	reader := s.newCache(cache.WithMode(cache.File), cache.WithFile(path))
	third, ok := reader.TryGet("ping")
	s.Require().True(ok)
	s.EqualValues(4, third.AccessCount)
	s.EqualValues(2, c.Stats().Hits)
}

func (s *CacheSuite) TestHybridHitBookkeeping() {
	path := filepath.Join(s.dir, "cache.json")
	c := s.newCache(cache.WithMode(cache.Hybrid), cache.WithFile(path))
	s.Require().NoError(c.Set("ping", "abc", nil))
	s.Equal(1, c.Len())

	c.TryGet("ping")
	hit, ok := c.TryGet("ping")
	s.Require().True(ok)
	s.EqualValues(3, hit.AccessCount)

	e, _ := c.GetEntry("ping")
	s.EqualValues(3, e.AccessCount)
}

func (s *CacheSuite) TestFileModeSweepSeesHits() {
	path := filepath.Join(s.dir, "cache.json")
	c := s.newCache(cache.WithMode(cache.File), cache.WithFile(path), cache.WithMaxEntries(1))
	s.Require().NoError(c.Set("hot", "h", nil))
	s.Require().NoError(c.Set("cold", "h", nil))
	c.TryGet("hot")

	c.Sweep()

	s.Equal(1, c.Len())
	e, ok := c.GetEntry("hot")
	s.True(ok)
	s.EqualValues(2, e.AccessCount)
}

func TestCache(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func TestBackgroundSweep(t *testing.T) {
	c := cache.New(cache.WithTTL(time.Millisecond), cache.WithSweepInterval(5*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Set("k", "h", nil))
	assert.Eventually(t, func() bool {
		_, ok := c.GetEntry("k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := cache.New()
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestParseMode(t *testing.T) {
	m, err := cache.ParseMode("hybrid")
	require.NoError(t, err)
	assert.Equal(t, cache.Hybrid, m)
	assert.True(t, m.Has(cache.Memory))
	assert.True(t, m.Has(cache.File))
	assert.False(t, cache.Memory.Has(cache.File))

	_, err = cache.ParseMode("disk")
	assert.Error(t, err)
}

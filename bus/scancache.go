package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/GabrielCarpr/mediator/cache"
)

// ScanCacheMode selects how reflective scan results are kept between buses
type ScanCacheMode int

const (
	// ScanNone rescans every module each time a bus is built
	ScanNone ScanCacheMode = iota
	// ScanMemory keeps scan results for the lifetime of the ScanCache
	ScanMemory
	// ScanFile also persists interface, implementation name pairs in a JSON file
	ScanFile
)

func (m ScanCacheMode) String() string {
	switch m {
	case ScanNone:
		return "none"
	case ScanMemory:
		return "memory"
	case ScanFile:
		return "file"
	}
	return fmt.Sprintf("ScanCacheMode(%d)", int(m))
}

func ParseScanCacheMode(s string) (ScanCacheMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ScanNone, nil
	case "memory":
		return ScanMemory, nil
	case "file":
		return ScanFile, nil
	}
	return 0, fmt.Errorf("bus: unknown scan cache mode %q", s)
}

// DefaultScanCacheFile is the file used by ScanFile caches built without a path
func DefaultScanCacheFile() string {
	return filepath.Join(os.TempDir(), "mediator_scan_cache.json")
}

// ScanCache caches the reflective scan of modules in an adaptive registration cache.
// Each module is stored under "runtime_<id>": the entry hash covers the
// [interface, implementation] pairs found, and its metadata carries the pairs and a
// fingerprint of the prototypes the module listed, so adding or removing a handler
// invalidates the entry. Pairs are resolved back to bindings through the prototypes.
type ScanCache struct {
	mode  ScanCacheMode
	file  string
	store *cache.Cache
}

// NewScanCache returns a scan cache. ScanMemory keeps entries in memory, ScanFile in
// memory and in file. opts tune the underlying cache, for example its TTL.
func NewScanCache(mode ScanCacheMode, file string, opts ...cache.Option) *ScanCache {
	if file == "" {
		file = DefaultScanCacheFile()
	}
	c := &ScanCache{mode: mode, file: file}
	switch mode {
	case ScanMemory:
		c.store = cache.New(append([]cache.Option{cache.WithMode(cache.Memory)}, opts...)...)
	case ScanFile:
		c.store = cache.New(append([]cache.Option{cache.WithMode(cache.Hybrid), cache.WithFile(file)}, opts...)...)
	}
	return c
}

func (c *ScanCache) Mode() ScanCacheMode {
	return c.mode
}

func (c *ScanCache) File() string {
	return c.file
}

// Stats reports the hits, misses and evictions of the underlying cache
func (c *ScanCache) Stats() cache.Stats {
	if c.store == nil {
		return cache.Stats{}
	}
	return c.store.Stats()
}

// Entry inspects the cached scan of the module with id, without counting a hit
func (c *ScanCache) Entry(id string) (cache.Entry, bool) {
	if c.store == nil {
		return cache.Entry{}, false
	}
	return c.store.GetEntry(scanKey(id))
}

// Close stops the cache sweep
func (c *ScanCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Bindings returns the reflected bindings of mod, from the cache when it holds them.
// A failure to persist the file is returned along with the fresh scan.
func (c *ScanCache) Bindings(mod Module) ([]Binding, bool, error) {
	protos := mod.Handlers()
	if c.store == nil {
		return Scan(protos...), false, nil
	}

	key := scanKey(mod.ID())
	fingerprint := prototypesHash(protos)
	if e, ok := c.store.TryGet(key); ok && e.Metadata["prototypes"] == fingerprint {
		pairs := e.Metadata["pairs"]
		if cache.Hash([]byte(pairs)) == e.Hash {
			if bindings, ok := resolvePairs(decodePairs(pairs), protos); ok {
				return bindings, true, nil
			}
		}
	}

	bindings := Scan(protos...)
	pairs := encodePairs(bindings)
	err := c.store.Set(key, cache.Hash([]byte(pairs)), map[string]string{
		"module":     mod.ID(),
		"prototypes": fingerprint,
		"pairs":      pairs,
		"bindings":   strconv.Itoa(len(bindings)),
	})
	return bindings, false, err
}

func encodePairs(bindings []Binding) string {
	lines := make([]string, len(bindings))
	for i, b := range bindings {
		pair := b.pair()
		lines[i] = pair[0] + "\t" + pair[1]
	}
	return strings.Join(lines, "\n")
}

func decodePairs(s string) [][2]string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	out := make([][2]string, 0, len(lines))
	for _, line := range lines {
		iface, impl, _ := strings.Cut(line, "\t")
		out = append(out, [2]string{iface, impl})
	}
	return out
}

// resolvePairs rebuilds bindings from cached name pairs. Any pair that no longer
// resolves invalidates the whole entry.
func resolvePairs(pairs [][2]string, protos []interface{}) ([]Binding, bool) {
	byImpl := make(map[string]interface{}, len(protos))
	for _, p := range protos {
		if !isNil(p) {
			byImpl[implName(p)] = p
		}
	}
	out := make([]Binding, 0, len(pairs))
	for _, pair := range pairs {
		p, ok := byImpl[pair[1]]
		if !ok {
			return nil, false
		}
		b, ok := capabilityOf(p, pair[0])
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// capabilityOf rescans p for the binding serving iface
func capabilityOf(p interface{}, iface string) (Binding, bool) {
	for _, b := range scanType(p) {
		if b.Interface == iface && b.err == nil {
			return b, true
		}
	}
	return Binding{}, false
}

func scanKey(id string) string {
	return "runtime_" + id
}

// prototypesHash fingerprints the set of prototypes a module lists
func prototypesHash(protos []interface{}) string {
	names := make([]string, 0, len(protos))
	for _, p := range protos {
		names = append(names, implName(p))
	}
	slices.Sort(names)
	return cache.Hash([]byte(strings.Join(names, "\n")))
}

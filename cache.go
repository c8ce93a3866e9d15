//go:build linux
// +build linux

package reactord

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sys/unix"
)

// Resource is a read-only mmap mapping of a file, shared among the cache's
// LRU list and every in-flight OutputChain node that embeds it (spec.md
// §3). It is destroyed — the mapping unmapped — when the last holder
// releases it; eviction from the cache only ever drops the cache's own
// handle.
type Resource struct {
	path     string
	addr     uintptr // informational only; never dereferenced directly, data is
	data     []byte
	length   int
	refcount atomic.Int32

	unmapOnce sync.Once
}

func newResource(path string, data []byte) *Resource {
	r := &Resource{path: path, data: data, length: len(data)}
	r.refcount.Store(1)
	if len(data) > 0 {
		r.addr = uintptr(unsafe.Pointer(&data[0]))
	}
	return r
}

// Path returns the filesystem path this resource maps.
func (r *Resource) Path() string { return r.path }

// Len returns the mapping length in bytes.
func (r *Resource) Len() int { return r.length }

// Bytes returns the mapped region. The returned slice is only valid while
// the caller holds a retained reference.
func (r *Resource) Bytes() []byte { return r.data }

func (r *Resource) retain() { r.refcount.Add(1) }

// release drops one reference; the last release unmaps the region.
func (r *Resource) release() {
	if r.refcount.Add(-1) == 0 {
		r.unmapOnce.Do(func() {
			if len(r.data) > 0 {
				_ = unix.Munmap(r.data)
			}
			r.data = nil
		})
	}
}

// loadFuture tracks a single in-flight load for one path, so concurrent
// misses for the same path converge to one load (spec.md §4.6).
type loadFuture struct {
	done     chan struct{}
	resource *Resource
	err      error
}

// CacheStatus is a point-in-time read of ResourceCache counters.
type CacheStatus struct {
	BytesInUse int64
	EntryCount int
	Requests   uint64
	Hits       uint64
}

// ResourceCache is a path->mmap store with LRU eviction under a byte
// budget, safe against concurrent readers and unmap-while-in-use (spec.md
// §4.6). A single mutex guards the LRU ordering, the path index, and
// current_bytes; loading a fresh path releases the mutex across the
// open/stat/mmap syscalls via a per-path loadFuture placeholder.
type ResourceCache struct {
	mu      sync.Mutex
	entries *lru.LRU[string, *Resource]
	loading map[string]*loadFuture

	currentBytes int64
	limit        int64

	requests uint64
	hits     uint64

	warnf func(format string, args ...interface{})
}

// NewResourceCache constructs a cache with the given byte budget. warnf may
// be nil; if set, it receives WARN-level messages for every failed load
// (open, stat, or mmap error, directory, or zero-length file).
func NewResourceCache(limitBytes int64, warnf func(format string, args ...interface{})) *ResourceCache {
	c := &ResourceCache{
		limit:   limitBytes,
		loading: make(map[string]*loadFuture),
		warnf:   warnf,
	}
	// size bound is irrelevant here: eviction is driven entirely by our own
	// byte-budget loop via RemoveOldest, never by simplelru's own count cap.
	entries, err := lru.NewLRU[string, *Resource](1<<31-1, c.onEvict)
	if err != nil {
		panic(err) // unreachable: constant positive size
	}
	c.entries = entries
	return c
}

// onEvict is simplelru's eviction callback; it is only ever invoked from
// within evictUntilFitsLocked, already holding c.mu.
func (c *ResourceCache) onEvict(_ string, r *Resource) {
	c.currentBytes -= int64(r.Len())
	r.release()
}

// SetLimit updates the byte budget, evicting immediately if the new limit
// is lower than current usage.
func (c *ResourceCache) SetLimit(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = bytes
	c.evictUntilFitsLocked(0)
}

// Status returns a snapshot of cache counters.
func (c *ResourceCache) Status() CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStatus{
		BytesInUse: c.currentBytes,
		EntryCount: c.entries.Len(),
		Requests:   c.requests,
		Hits:       c.hits,
	}
}

// Get returns a retained handle to path's mapping, loading it on first
// access. Returns ErrResourceNotFound on open/stat/mmap failure or for a
// zero-length file.
func (c *ResourceCache) Get(path string) (*Resource, error) {
	c.mu.Lock()
	c.requests++

	if r, ok := c.entries.Get(path); ok {
		c.hits++
		r.retain()
		c.mu.Unlock()
		return r, nil
	}

	if f, ok := c.loading[path]; ok {
		c.mu.Unlock()
		<-f.done
		if f.err != nil {
			return nil, ErrResourceNotFound
		}
		f.resource.retain()
		return f.resource, nil
	}

	f := &loadFuture{done: make(chan struct{})}
	c.loading[path] = f
	c.mu.Unlock()

	res, err := loadResource(path)
	f.resource, f.err = res, err
	close(f.done)

	c.mu.Lock()
	delete(c.loading, path)
	if err != nil {
		c.mu.Unlock()
		if c.warnf != nil {
			c.warnf("resource cache: load %s: %v", path, err)
		}
		return nil, ErrResourceNotFound
	}

	if int64(res.Len()) > c.limit {
		// Too large to retain: serve this one request without caching,
		// rather than rejecting it outright (spec.md §8, "pick one and
		// document" — documented in DESIGN.md).
		c.mu.Unlock()
		return res, nil
	}

	c.evictUntilFitsLocked(int64(res.Len()))
	c.entries.Add(path, res)
	c.currentBytes += int64(res.Len())
	res.retain() // handle for this caller; the cache keeps its own.
	c.mu.Unlock()
	return res, nil
}

// evictUntilFitsLocked evicts from the LRU end until currentBytes+incoming
// fits within limit, or the cache is empty. Caller holds c.mu.
func (c *ResourceCache) evictUntilFitsLocked(incoming int64) {
	for c.currentBytes+incoming > c.limit && c.entries.Len() > 0 {
		c.entries.RemoveOldest()
	}
}

// loadResource opens, stats, and mmaps path read-only. Zero-length files
// and any open/stat/mmap error are reported as ErrResourceNotFound by the
// caller; this function returns the raw error for logging.
func loadResource(path string) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, os.ErrInvalid
	}
	size := info.Size()
	if size == 0 {
		return nil, os.ErrInvalid
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return newResource(path, data), nil
}

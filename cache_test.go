//go:build linux
// +build linux

package reactord

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTestFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestResourceCacheGetTwiceReturnsSameMapping(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFile(t, dir, "a.txt", 128)

	c := NewResourceCache(1<<20, nil)
	r1, err := c.Get(p)
	if err != nil {
		t.Fatalf("Get #1: %v", err)
	}
	defer r1.release()

	r2, err := c.Get(p)
	if err != nil {
		t.Fatalf("Get #2: %v", err)
	}
	defer r2.release()

	if r1 != r2 {
		t.Fatalf("expected second Get to return a handle to the same mapping")
	}
	st := c.Status()
	if st.Requests != 2 || st.Hits != 1 {
		t.Fatalf("Status = %+v, want Requests=2 Hits=1", st)
	}
}

func TestResourceCacheEvictsUnderByteBudget(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTestFile(t, dir, "a.bin", 700)
	pathB := writeTestFile(t, dir, "b.bin", 500)

	c := NewResourceCache(1024, nil)

	rA, err := c.Get(pathA)
	if err != nil {
		t.Fatalf("Get A: %v", err)
	}
	rA.release() // drop caller's handle; cache still retains its own

	rB, err := c.Get(pathB)
	if err != nil {
		t.Fatalf("Get B: %v", err)
	}
	defer rB.release()

	st := c.Status()
	if st.BytesInUse != 500 {
		t.Fatalf("BytesInUse = %d, want 500 (A evicted to admit B)", st.BytesInUse)
	}
	if st.EntryCount != 1 {
		t.Fatalf("EntryCount = %d, want 1", st.EntryCount)
	}
}

func TestResourceCacheZeroLengthFileNotFound(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFile(t, dir, "empty.txt", 0)

	c := NewResourceCache(1<<20, nil)
	_, err := c.Get(p)
	if err != ErrResourceNotFound {
		t.Fatalf("Get(empty file) error = %v, want ErrResourceNotFound", err)
	}
}

func TestResourceCacheConcurrentMissesConvergeToOneLoad(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFile(t, dir, "shared.bin", 4096)

	c := NewResourceCache(1<<20, nil)

	const n = 16
	results := make([]*Resource, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			r, err := c.Get(p)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] == nil || results[0] == nil {
			continue
		}
		if results[i] != results[0] {
			t.Fatalf("concurrent Get calls for the same path returned different resources")
		}
	}
	for _, r := range results {
		if r != nil {
			r.release()
		}
	}
}

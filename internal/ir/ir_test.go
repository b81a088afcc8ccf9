package ir

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewFunctionPublishesAndCounts(t *testing.T) {
	m := NewModule()
	pool := m.WorkerPool(0)

	m.NewFunction(pool, "f", LinkagePublic, Prototype{Return: I32}, true)
	m.NewFunction(pool, "g", LinkagePrivate, Prototype{Return: Void}, true)

	if got := m.SymbolCount(TagFunction); got != 2 {
		t.Fatalf("SymbolCount(Function) = %d, want 2", got)
	}

	names := map[string]bool{}
	m.ForEachFunction(func(f *Function) { names[f.Name()] = true })
	if !names["f"] || !names["g"] {
		t.Fatalf("ForEachFunction did not observe both registered functions: %v", names)
	}
}

func TestFunctionHasDistinctBuildIDs(t *testing.T) {
	m := NewModule()
	pool := m.WorkerPool(0)
	f1 := m.NewFunction(pool, "f1", LinkagePublic, Prototype{}, true)
	f2 := m.NewFunction(pool, "f2", LinkagePublic, Prototype{}, true)
	if f1.BuildID == f2.BuildID {
		t.Fatalf("expected distinct uuid build ids")
	}
}

// Under N concurrent workers each registering M distinct symbols, the
// final per-tag linked list contains exactly N*M entries.
func TestConcurrentRegistrationCount(t *testing.T) {
	const workers = 8
	const perWorker = 200 // crosses several pool chunk boundaries

	m := NewModule()
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			pool := m.WorkerPool(w)
			for i := 0; i < perWorker; i++ {
				m.NewExternal(pool, fmt.Sprintf("w%d_sym%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	if got, want := m.SymbolCount(TagExternal), int64(workers*perWorker); got != want {
		t.Fatalf("SymbolCount(External) = %d, want %d", got, want)
	}

	count := 0
	m.ForEachExternal(func(*External) { count++ })
	if count != workers*perWorker {
		t.Fatalf("ForEachExternal traversed %d nodes, want %d", count, workers*perWorker)
	}
}

func TestGlobalInitRecords(t *testing.T) {
	m := NewModule()
	pool := m.WorkerPool(0)
	g := m.NewGlobal(pool, "g", LinkagePrivate, 4, 4, SectionData, []InitRecord{
		{Offset: 0, Data: []byte{1, 0, 0, 0}},
	})
	if g.Size != 4 || len(g.Inits) != 1 {
		t.Fatalf("unexpected global shape: %+v", g)
	}
}

// A single pool allocating past one chunk's capacity must keep every
// previously published pointer intact: list traversal after rollover sees
// all names exactly once.
func TestPoolChunkRolloverKeepsPublishedPointers(t *testing.T) {
	m := NewModule()
	pool := m.WorkerPool(0)

	const n = poolChunkSize*2 + 5
	for i := 0; i < n; i++ {
		m.NewFunction(pool, fmt.Sprintf("f%d", i), LinkagePrivate, Prototype{}, false)
	}

	seen := map[string]int{}
	m.ForEachFunction(func(f *Function) { seen[f.Name()]++ })
	if len(seen) != n {
		t.Fatalf("traversed %d distinct functions, want %d", len(seen), n)
	}
	for name, c := range seen {
		if c != 1 {
			t.Fatalf("function %q seen %d times, want 1", name, c)
		}
	}
}

func TestLabelAllocatorIssuesDistinctIDs(t *testing.T) {
	m := NewModule()
	a := m.Labels.Reserve()
	b := m.Labels.Reserve()
	if a == b || a == 0 || b == 0 {
		t.Fatalf("Reserve returned %d then %d, want distinct non-zero ids", a, b)
	}
}

package diag

import (
	"testing"
)

func TestPoolIsReusedForSameSize(t *testing.T) {
	defer DestroyPool()
	a := GetOrCreatePool(2)
	b := GetOrCreatePool(2)
	if a != b {
		t.Fatal("same concurrency returned a different pool")
	}
	if a.Size() != 2 {
		t.Fatalf("pool size = %d, want 2", a.Size())
	}
}

func TestPoolRecreatedOnResize(t *testing.T) {
	defer DestroyPool()
	a := GetOrCreatePool(2)
	b := GetOrCreatePool(4)
	if a == b {
		t.Fatal("resize returned the old pool")
	}
	if b.Size() != 4 {
		t.Fatalf("pool size = %d, want 4", b.Size())
	}

	// The old pool is shut down; submissions to it are rejected, not hung.
	oc := <-a.Submit(WorkItem{Seed: 1, Config: testConfig()})
	if oc.Err == nil {
		t.Fatal("submission to a torn-down pool succeeded")
	}
}

func TestPoolClampsConcurrency(t *testing.T) {
	defer DestroyPool()
	if got := GetOrCreatePool(0).Size(); got != 1 {
		t.Fatalf("pool size = %d, want 1", got)
	}
}

// Parallel execution must be an implementation detail: every seed yields
// exactly the result a standalone run produces.
func TestParallelRunsMatchSequential(t *testing.T) {
	defer DestroyPool()
	cfg := testConfig()
	const n = 8

	pool := GetOrCreatePool(4)
	out := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		pool.SubmitTo(WorkItem{Seed: int64(100 + i), Config: cfg}, 0, out)
	}
	parallel := map[int64]*DiagnoseResult{}
	for i := 0; i < n; i++ {
		oc := <-out
		if oc.Err != nil {
			t.Fatalf("seed=%d: %v", oc.Item.Seed, oc.Err)
		}
		parallel[oc.Item.Seed] = oc.Result
	}

	for i := 0; i < n; i++ {
		seed := int64(100 + i)
		solo, err := Run(cfg, seed, DefaultAnalyzers())
		if err != nil {
			t.Fatalf("sequential seed=%d: %v", seed, err)
		}
		checkSameResult(t, solo, parallel[seed])
	}
}

// A bad item is rejected with an error Outcome; the pool keeps serving.
func TestPoolRejectsBadItemAndSurvives(t *testing.T) {
	defer DestroyPool()
	pool := GetOrCreatePool(2)

	bad := testConfig()
	bad.RaceID = "gnome"
	oc := <-pool.Submit(WorkItem{Seed: 1, Config: bad})
	if oc.Err == nil {
		t.Fatal("invalid config produced no error")
	}
	if oc.Result != nil {
		t.Fatal("rejected item carried a result")
	}

	oc = <-pool.Submit(WorkItem{Seed: 1, Config: testConfig()})
	if oc.Err != nil {
		t.Fatalf("pool unusable after a rejection: %v", oc.Err)
	}
	if oc.Result == nil {
		t.Fatal("good item after rejection produced no result")
	}
}

func TestPoolTagsRoundTrip(t *testing.T) {
	defer DestroyPool()
	pool := GetOrCreatePool(3)
	cfg := testConfig()

	const n = 6
	out := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		pool.SubmitTo(WorkItem{Seed: int64(i), Config: cfg}, i, out)
	}
	seen := map[int]int64{}
	for i := 0; i < n; i++ {
		oc := <-out
		seen[oc.Tag] = oc.Item.Seed
	}
	for tag := 0; tag < n; tag++ {
		seed, ok := seen[tag]
		if !ok {
			t.Fatalf("tag %d never delivered", tag)
		}
		if seed != int64(tag) {
			t.Fatalf("tag %d carried seed %d", tag, seed)
		}
	}
}

package diag

import (
	"fmt"
	"testing"
)

func TestRunBatchReducesAllRuns(t *testing.T) {
	defer DestroyPool()
	cfg := testConfig()

	var progressCalls, lastDone int
	batch, err := RunBatch(cfg, BatchOptions{
		SeedBase: 500,
		Runs:     12,
		Threads:  4,
		OnProgress: func(done, total int) {
			progressCalls++
			lastDone = done
			if total != 12 {
				t.Fatalf("progress total = %d, want 12", total)
			}
		},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	if batch.TotalRuns != 12 || len(batch.Runs) != 12 {
		t.Fatalf("total=%d runs=%d, want 12", batch.TotalRuns, len(batch.Runs))
	}
	if progressCalls != 12 || lastDone != 12 {
		t.Fatalf("progress calls=%d last=%d, want 12/12", progressCalls, lastDone)
	}
	for i, rs := range batch.Runs {
		if rs.Seed != 500+int64(i) {
			t.Fatalf("runs[%d].Seed = %d, want %d", i, rs.Seed, 500+int64(i))
		}
	}
	ends := batch.VictoryCount + batch.DeathCount + batch.MaxTurnsCount + batch.CircuitBreakerCount
	if ends != 12 {
		t.Fatalf("outcome counters sum to %d, want 12", ends)
	}
}

func TestRunBatchValidatesUpFront(t *testing.T) {
	defer DestroyPool()
	bad := testConfig()
	bad.MaxTurns = 0
	if _, err := RunBatch(bad, BatchOptions{SeedBase: 1, Runs: 3, Threads: 2}); err == nil {
		t.Fatal("expected config error")
	}
	if _, err := RunBatch(testConfig(), BatchOptions{SeedBase: 1, Runs: 0, Threads: 2}); err == nil {
		t.Fatal("expected run count error")
	}
}

// Batch results must not depend on worker count.
func TestRunBatchThreadCountInvariant(t *testing.T) {
	defer DestroyPool()
	cfg := testConfig()

	one, err := RunBatch(cfg, BatchOptions{SeedBase: 900, Runs: 6, Threads: 1})
	if err != nil {
		t.Fatalf("threads=1: %v", err)
	}
	many, err := RunBatch(cfg, BatchOptions{SeedBase: 900, Runs: 6, Threads: 6})
	if err != nil {
		t.Fatalf("threads=6: %v", err)
	}

	if one.VictoryCount != many.VictoryCount ||
		one.DeathCount != many.DeathCount ||
		one.MaxTurnsCount != many.MaxTurnsCount ||
		one.CircuitBreakerCount != many.CircuitBreakerCount {
		t.Fatalf("outcomes diverged across thread counts:\n1: %+v\n6: %+v", one.Runs, many.Runs)
	}
	for i := range one.Runs {
		if one.Runs[i] != many.Runs[i] {
			t.Fatalf("run summary diverged at %d:\n%+v\nvs\n%+v", i, one.Runs[i], many.Runs[i])
		}
	}
}

func TestCollectBatchReturnsRawResults(t *testing.T) {
	defer DestroyPool()
	cfg := testConfig()
	results, failures, err := CollectBatch(cfg, BatchOptions{SeedBase: 40, Runs: 5, Threads: 2})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	seen := map[int64]bool{}
	for _, r := range results {
		if r == nil {
			t.Fatal("nil result in collection")
		}
		seen[r.Seed] = true
	}
	for s := int64(40); s < 45; s++ {
		if !seen[s] {
			t.Fatalf("seed %d missing from collection", s)
		}
	}
}

// Raw collections must come back in seed order, not scheduler arrival
// order, so seed scans report the same runs on every invocation.
func TestCollectBatchSortsResultsBySeed(t *testing.T) {
	defer DestroyPool()
	results, _, err := CollectBatch(testConfig(), BatchOptions{SeedBase: 300, Runs: 10, Threads: 4})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	for i := range results {
		if want := int64(300 + i); results[i].Seed != want {
			t.Fatalf("results[%d].Seed = %d, want %d (not sorted)", i, results[i].Seed, want)
		}
	}
}

// A rejected item must not abort the batch or strand the in-flight
// remainder: it becomes a failure entry and the rest reduces normally.
func TestBatchFailedItemsReduceAsProblemEntries(t *testing.T) {
	cfg := testConfig()
	good1, err := Run(cfg, 11, DefaultAnalyzers())
	if err != nil {
		t.Fatalf("run seed=11: %v", err)
	}
	good2, err := Run(cfg, 12, DefaultAnalyzers())
	if err != nil {
		t.Fatalf("run seed=12: %v", err)
	}

	out := make(chan Outcome, 3)
	out <- Outcome{Item: WorkItem{Seed: 12, Config: cfg}, Result: good2}
	out <- Outcome{Item: WorkItem{Seed: 99, Config: cfg}, Err: fmt.Errorf("run seed=99 panicked: index out of range")}
	out <- Outcome{Item: WorkItem{Seed: 11, Config: cfg}, Result: good1}

	var progressCalls int
	results, failures := drainOutcomes(out, 3, func(done, total int) {
		progressCalls++
		if total != 3 {
			t.Fatalf("progress total = %d, want 3", total)
		}
	})
	if len(results) != 2 || len(failures) != 1 {
		t.Fatalf("got %d results and %d failures, want 2 and 1", len(results), len(failures))
	}
	if progressCalls != 3 {
		t.Fatalf("progress fired %d times, want 3 (failed items still count)", progressCalls)
	}

	br := Aggregate(results)
	attachFailures(br, failures)
	if br.TotalRuns != 3 {
		t.Fatalf("TotalRuns = %d, want 3 including the failed item", br.TotalRuns)
	}
	if len(br.Runs) != 2 {
		t.Fatalf("reduced %d runs, want the 2 that completed", len(br.Runs))
	}
	if br.Failures[0].Seed != 99 || br.Failures[0].Error == "" {
		t.Fatalf("failure entry = %+v, want seed 99 with its error", br.Failures[0])
	}
	ends := br.VictoryCount + br.DeathCount + br.MaxTurnsCount + br.CircuitBreakerCount
	if ends != 2 {
		t.Fatalf("outcome counters sum to %d, want 2 (failures carry no end reason)", ends)
	}
}

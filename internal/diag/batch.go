package diag

import (
	"fmt"
	"sort"

	"github.com/delvelab/delveprobe/internal/sim"
)

// BatchOptions drives a flat batch of runs over one configuration.
type BatchOptions struct {
	SeedBase int64
	Runs     int
	Threads  int

	// OnProgress, when set, is called after every completed run.
	OnProgress func(done, total int)
}

// RunBatch plays the same configuration across a contiguous seed range and
// reduces the results. A rejected item is fatal for that item only: it lands
// in the reduction as a failure entry and the rest of the batch reduces
// normally.
func RunBatch(cfg sim.Config, opt BatchOptions) (*BatchResult, error) {
	results, failures, err := CollectBatch(cfg, opt)
	if err != nil {
		return nil, err
	}
	br := Aggregate(results)
	attachFailures(br, failures)
	return br, nil
}

// CollectBatch is RunBatch without the reduction: it returns the raw per-run
// results for callers that reduce differently (compare mode, seed scans).
// Results and failures come back sorted by seed so downstream consumers see
// the same order whatever order the scheduler delivered in.
func CollectBatch(cfg sim.Config, opt BatchOptions) ([]*DiagnoseResult, []RunFailure, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if opt.Runs <= 0 {
		return nil, nil, fmt.Errorf("batch needs at least one run, got %d", opt.Runs)
	}
	cfg = cfg.ResolvePresets()

	pool := GetOrCreatePool(opt.Threads)
	out := make(chan Outcome, opt.Runs)
	for i := 0; i < opt.Runs; i++ {
		pool.SubmitTo(WorkItem{Seed: opt.SeedBase + int64(i), Config: cfg}, 0, out)
	}
	results, failures := drainOutcomes(out, opt.Runs, opt.OnProgress)
	sort.Slice(results, func(i, j int) bool { return results[i].Seed < results[j].Seed })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Seed < failures[j].Seed })
	return results, failures, nil
}

// drainOutcomes reads n outcomes off the shared channel, splitting completed
// runs from scheduler-level rejections. Every outcome is read even when some
// items failed; a failure never strands the in-flight remainder.
func drainOutcomes(out <-chan Outcome, n int, onProgress func(done, total int)) ([]*DiagnoseResult, []RunFailure) {
	results := make([]*DiagnoseResult, 0, n)
	var failures []RunFailure
	for i := 0; i < n; i++ {
		oc := <-out
		if oc.Err != nil {
			failures = append(failures, RunFailure{Seed: oc.Item.Seed, Error: oc.Err.Error()})
		} else {
			results = append(results, oc.Result)
		}
		if onProgress != nil {
			onProgress(i+1, n)
		}
	}
	return results, failures
}

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"golang.org/x/term"

	"github.com/delvelab/delveprobe/internal/diag"
	"github.com/delvelab/delveprobe/internal/logger"
	"github.com/delvelab/delveprobe/internal/sim"
	"github.com/delvelab/delveprobe/internal/store"
)

type cliFlags struct {
	mode    string
	seed    int64
	runs    int
	turns   int
	breaker int
	threads int

	race        string
	class       string
	personality string
	upgrades    string
	caps        string
	booster     string
	overrides   string
	presets     string

	classes       string
	races         string
	personalities string
	upgradeTiers  string
	capTiers      string
	paired        bool

	variant     string
	sweep       string
	maxProblems int
	id          int64
	limit       int

	out       string
	db        string
	logConfig string
	noColor   bool
}

func main() {
	var cf cliFlags
	flag.StringVar(&cf.mode, "mode", "quick", "deep|quick|batch|find|compare|baseline|matrix|sensitivity|list|show")
	flag.Int64Var(&cf.seed, "seed", 42, "base RNG seed (run i uses seed+i)")
	flag.IntVar(&cf.runs, "runs", 100, "runs per batch / per matrix cell / seeds to scan")
	flag.IntVar(&cf.turns, "turns", 2000, "turn cap per run")
	flag.IntVar(&cf.breaker, "breaker", 400, "circuit breaker: max turns on one level")
	flag.IntVar(&cf.threads, "threads", runtime.NumCPU(), "worker pool size")

	flag.StringVar(&cf.race, "race", "human", "race id")
	flag.StringVar(&cf.class, "class", "warrior", "class id")
	flag.StringVar(&cf.personality, "personality", "cautious", "personality tag")
	flag.StringVar(&cf.upgrades, "upgrades", "none", "upgrade preset")
	flag.StringVar(&cf.caps, "caps", "standard", "capability preset")
	flag.StringVar(&cf.booster, "booster", "none", "booster preset")
	flag.StringVar(&cf.overrides, "overrides", "", "balance overrides, e.g. monster_hp_pct=120,gold_pct=80")
	flag.StringVar(&cf.presets, "presets", "", "yaml preset pack merged over built-ins")

	flag.StringVar(&cf.classes, "classes", "", "matrix: comma-separated class axis")
	flag.StringVar(&cf.races, "races", "", "matrix: comma-separated race axis")
	flag.StringVar(&cf.personalities, "personalities", "", "matrix: comma-separated personality axis")
	flag.StringVar(&cf.upgradeTiers, "upgrade-tiers", "", "matrix: comma-separated upgrade preset axis")
	flag.StringVar(&cf.capTiers, "cap-tiers", "", "matrix: comma-separated capability preset axis")
	flag.BoolVar(&cf.paired, "paired", false, "matrix: zip upgrade and capability axes instead of crossing them")

	flag.StringVar(&cf.variant, "variant", "", "compare: overrides for the B config, e.g. class=mage,personality=aggressive")
	flag.StringVar(&cf.sweep, "sweep", "", "sensitivity: key=v1,v2,v3 balance override sweep")
	flag.IntVar(&cf.maxProblems, "max-problems", 5, "find: stop after this many problem runs")
	flag.Int64Var(&cf.id, "id", 0, "show: archived batch id")
	flag.IntVar(&cf.limit, "limit", 20, "list: max archived batches to show")

	flag.StringVar(&cf.out, "out", "", "directory for JSON artifacts (stdout only when empty)")
	flag.StringVar(&cf.db, "db", "", "sqlite database to archive results into")
	flag.StringVar(&cf.logConfig, "log-config", "", "yaml logging config file")
	flag.BoolVar(&cf.noColor, "no-color", false, "disable ANSI colors")
	flag.Parse()

	logger.Initialize(logger.LoadConfig(cf.logConfig))
	if cf.noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.Disable()
	}

	err := run(cf)
	diag.DestroyPool()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cf cliFlags) error {
	// Archive queries need no run configuration.
	switch cf.mode {
	case "list":
		return runList(cf)
	case "show":
		return runShow(cf)
	}

	if cf.presets != "" {
		if err := sim.LoadPresetPack(cf.presets); err != nil {
			return err
		}
	}
	cfg, err := buildConfig(cf)
	if err != nil {
		return err
	}
	invocation := diag.NewInvocationID()
	logger.Info("starting", "mode", cf.mode, "config", cfg.Label(), "seed", cf.seed, "invocation", invocation)

	switch cf.mode {
	case "quick":
		return runSingle(cf, cfg, invocation, false)
	case "deep":
		return runSingle(cf, cfg, invocation, true)
	case "batch":
		return runBatchMode(cf, cfg, invocation)
	case "find":
		return runFind(cf, cfg)
	case "compare":
		return runCompare(cf, cfg, invocation)
	case "baseline":
		return runBaseline(cf, cfg, invocation)
	case "matrix":
		return runMatrixMode(cf, cfg, invocation)
	case "sensitivity":
		return runSensitivity(cf, cfg)
	default:
		return fmt.Errorf("unknown mode %q (want deep|quick|batch|find|compare|baseline|matrix|sensitivity|list|show)", cf.mode)
	}
}

func buildConfig(cf cliFlags) (sim.Config, error) {
	overrides, err := sim.ParseOverrides(cf.overrides)
	if err != nil {
		return sim.Config{}, err
	}
	cfg := sim.Config{
		RaceID:              cf.race,
		ClassID:             cf.class,
		Personality:         cf.personality,
		MaxTurns:            cf.turns,
		CircuitBreakerTurns: cf.breaker,
		UpgradePreset:       cf.upgrades,
		CapabilityPreset:    cf.caps,
		BoosterPreset:       cf.booster,
		Overrides:           overrides,
	}
	return cfg, cfg.Validate()
}

func runSingle(cf cliFlags, cfg sim.Config, invocation string, deep bool) error {
	var trace *diag.TraceLog
	if deep {
		trace = diag.NewTraceLog()
	}
	result, err := diag.RunTraced(cfg, cf.seed, diag.DefaultAnalyzers(), trace)
	if err != nil {
		return err
	}
	if deep {
		fmt.Printf("=== Trace (seed=%d, %d entries) ===\n", cf.seed, len(trace.Entries()))
		fmt.Print(trace.Format())
		fmt.Println()
	}
	fmt.Print(diag.FormatRun(result))
	if cf.out != "" {
		mode := "quick"
		if deep {
			mode = "deep"
		}
		path, err := diag.SaveRun(cf.out, mode, invocation, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", path)
	}
	return nil
}

func runBatchMode(cf cliFlags, cfg sim.Config, invocation string) error {
	pp := diag.NewProgressPrinter("runs")
	batch, err := diag.RunBatch(cfg, diag.BatchOptions{
		SeedBase:   cf.seed,
		Runs:       cf.runs,
		Threads:    cf.threads,
		OnProgress: pp.Update,
	})
	if err != nil {
		return err
	}
	fmt.Print(diag.FormatBatch(batch))
	if cf.out != "" {
		path, err := diag.SaveBatch(cf.out, "batch", invocation, cfg, batch)
		if err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", path)
	}
	if cf.db != "" {
		if err := archiveBatch(cf.db, invocation, "batch", cfg, cf.seed, batch); err != nil {
			return err
		}
	}
	return nil
}

// runFind scans a seed range and reports the first problem runs it finds.
// A problem run is one with an error-severity issue or a circuit breaker
// termination. The scan submits the whole range; filtering happens on the
// collected results so the pool stays saturated.
func runFind(cf cliFlags, cfg sim.Config) error {
	pp := diag.NewProgressPrinter("scanned")
	results, failures, err := diag.CollectBatch(cfg, diag.BatchOptions{
		SeedBase:   cf.seed,
		Runs:       cf.runs,
		Threads:    cf.threads,
		OnProgress: pp.Update,
	})
	if err != nil {
		return err
	}

	fmt.Printf("=== Seed Scan (%d..%d, %s) ===\n", cf.seed, cf.seed+int64(cf.runs)-1, cfg.Label())
	found := 0
	for _, f := range failures {
		if found >= cf.maxProblems {
			break
		}
		found++
		fmt.Printf("\nseed=%d run failed: %s\n", f.Seed, f.Error)
	}
	for _, r := range results {
		if found >= cf.maxProblems {
			break
		}
		if !r.HasError && r.EndReason != diag.EndCircuitBreaker {
			continue
		}
		found++
		fmt.Printf("\nseed=%d end=%s turn=%d depth=%d\n", r.Seed, r.EndReason, r.Final.Turn, r.Final.Depth)
		for _, is := range r.Issues {
			fmt.Printf("  %s [T=%d] %s\n", strings.ToUpper(is.Severity), is.Turn, is.Message)
		}
	}
	if found == 0 {
		fmt.Println("no problem runs in range")
		return nil
	}
	fmt.Printf("\n%d problem run(s); rerun any with -mode=deep -seed=N for the full trace\n", found)
	return nil
}

// runCompare plays the base config and a variant over the same seed set so
// every difference in the aggregates is attributable to the variant.
func runCompare(cf cliFlags, cfg sim.Config, invocation string) error {
	if cf.variant == "" {
		return fmt.Errorf("compare mode needs -variant, e.g. -variant=class=mage,personality=aggressive")
	}
	variantCfg, err := applyVariant(cfg, cf.variant)
	if err != nil {
		return err
	}

	opt := diag.BatchOptions{SeedBase: cf.seed, Runs: cf.runs, Threads: cf.threads}
	baseBatch, err := diag.RunBatch(cfg, opt)
	if err != nil {
		return err
	}
	varBatch, err := diag.RunBatch(variantCfg, opt)
	if err != nil {
		return err
	}

	fmt.Printf("=== Compare (%d runs each, seeds %d..%d) ===\n\n", cf.runs, cf.seed, cf.seed+int64(cf.runs)-1)
	fmt.Printf("A: %s\n", cfg.Label())
	fmt.Printf("B: %s\n\n", variantCfg.Label())
	fmt.Printf("  %-18s %10s %10s\n", "", "A", "B")
	fmt.Printf("  %-18s %10d %10d\n", "victory", baseBatch.VictoryCount, varBatch.VictoryCount)
	fmt.Printf("  %-18s %10d %10d\n", "death", baseBatch.DeathCount, varBatch.DeathCount)
	fmt.Printf("  %-18s %10d %10d\n", "max_turns", baseBatch.MaxTurnsCount, varBatch.MaxTurnsCount)
	fmt.Printf("  %-18s %10d %10d\n", "circuit_breaker", baseBatch.CircuitBreakerCount, varBatch.CircuitBreakerCount)
	for _, key := range []string{"progression.final_depth", "combat.damage_taken", "exploration.no_goal_turns"} {
		a, b := baseBatch.Metrics[key], varBatch.Metrics[key]
		fmt.Printf("  %-18s %10.2f %10.2f  (avg %s)\n", shortMetric(key), a.Avg, b.Avg, key)
	}

	fmt.Println("\n--- A ---")
	fmt.Print(diag.FormatBatch(baseBatch))
	fmt.Println("\n--- B ---")
	fmt.Print(diag.FormatBatch(varBatch))

	if cf.out != "" {
		if _, err := diag.SaveBatch(cf.out, "compare-a", invocation, cfg, baseBatch); err != nil {
			return err
		}
		if _, err := diag.SaveBatch(cf.out, "compare-b", invocation, variantCfg, varBatch); err != nil {
			return err
		}
	}
	if cf.db != "" {
		if err := archiveBatch(cf.db, invocation, "compare-a", cfg, cf.seed, baseBatch); err != nil {
			return err
		}
		if err := archiveBatch(cf.db, invocation, "compare-b", variantCfg, cf.seed, varBatch); err != nil {
			return err
		}
	}
	return nil
}

// runBaseline sweeps every class under the reference race and personality.
// The fixed cell set makes successive runs comparable as a regression
// snapshot.
func runBaseline(cf cliFlags, cfg sim.Config, invocation string) error {
	pp := diag.NewProgressPrinter("cells")
	result, err := diag.RunMatrix(diag.MatrixOptions{
		Base:        cfg,
		Axes:        diag.Axes{Classes: sim.ClassIDs()},
		RunsPerCell: cf.runs,
		SeedBase:    cf.seed,
		Threads:     cf.threads,
		OnCellDone: func(cell *diag.MatrixCell, done, total int) {
			pp.Clear()
			fmt.Println(diag.FormatCellDone(cell, done, total))
			pp.Update(done, total)
		},
	})
	if err != nil {
		return err
	}
	fmt.Print(diag.FormatMatrix(result))
	if cf.out != "" {
		sub, err := diag.SaveMatrix(cf.out, invocation, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", sub)
	}
	if cf.db != "" {
		for _, cell := range result.Cells {
			if err := archiveBatch(cf.db, invocation, "baseline", cell.Config, cf.seed, cell.Batch); err != nil {
				return err
			}
		}
	}
	return nil
}

func runMatrixMode(cf cliFlags, cfg sim.Config, invocation string) error {
	axes := diag.Axes{
		Classes:           splitList(cf.classes),
		Races:             splitList(cf.races),
		Personalities:     splitList(cf.personalities),
		UpgradeTiers:      splitList(cf.upgradeTiers),
		CapabilityTiers:   splitList(cf.capTiers),
		PairedProgression: cf.paired,
	}
	pp := diag.NewProgressPrinter("cells")
	result, err := diag.RunMatrix(diag.MatrixOptions{
		Base:        cfg,
		Axes:        axes,
		RunsPerCell: cf.runs,
		SeedBase:    cf.seed,
		Threads:     cf.threads,
		OnCellDone: func(cell *diag.MatrixCell, done, total int) {
			pp.Clear()
			fmt.Println(diag.FormatCellDone(cell, done, total))
			pp.Update(done, total)
		},
	})
	if err != nil {
		return err
	}
	fmt.Print(diag.FormatMatrix(result))
	if cf.out != "" {
		sub, err := diag.SaveMatrix(cf.out, invocation, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", sub)
	}
	if cf.db != "" {
		for _, cell := range result.Cells {
			if err := archiveBatch(cf.db, invocation, "matrix", cell.Config, cf.seed, cell.Batch); err != nil {
				return err
			}
		}
	}
	return nil
}

// runSensitivity sweeps one balance override across values, one batch per
// value, all on the same seed range.
func runSensitivity(cf cliFlags, cfg sim.Config) error {
	if cf.sweep == "" {
		return fmt.Errorf("sensitivity mode needs -sweep, e.g. -sweep=monster_hp_pct=80,100,120")
	}
	key, rest, ok := strings.Cut(cf.sweep, "=")
	if !ok {
		return fmt.Errorf("malformed -sweep %q, want key=v1,v2,v3", cf.sweep)
	}
	key = strings.TrimSpace(key)
	var values []float64
	for _, s := range strings.Split(rest, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("sweep value %q: %w", s, err)
		}
		values = append(values, v)
	}
	if len(values) < 2 {
		return fmt.Errorf("sweep needs at least two values, got %d", len(values))
	}

	fmt.Printf("=== Sensitivity: %s over %v (%d runs each) ===\n\n", key, values, cf.runs)
	fmt.Printf("  %10s %8s %8s %8s %8s %10s %8s\n",
		key, "victory", "death", "maxturn", "breaker", "avg depth", "errors")
	for _, v := range values {
		swept := cfg
		swept.Overrides = map[string]float64{key: v}
		for k, base := range cfg.Overrides {
			if k != key {
				swept.Overrides[k] = base
			}
		}
		if err := swept.Validate(); err != nil {
			return err
		}
		batch, err := diag.RunBatch(swept, diag.BatchOptions{
			SeedBase: cf.seed,
			Runs:     cf.runs,
			Threads:  cf.threads,
		})
		if err != nil {
			return err
		}
		errRuns := 0
		for _, r := range batch.Runs {
			if r.HasError {
				errRuns++
			}
		}
		depth := batch.Metrics["progression.final_depth"]
		fmt.Printf("  %10.0f %8d %8d %8d %8d %10.2f %8d\n",
			v, batch.VictoryCount, batch.DeathCount, batch.MaxTurnsCount,
			batch.CircuitBreakerCount, depth.Avg, errRuns)
	}
	return nil
}

// runList prints the archive's batch headers, newest first.
func runList(cf cliFlags) error {
	if cf.db == "" {
		return fmt.Errorf("list mode needs -db")
	}
	st, err := store.Open(cf.db)
	if err != nil {
		return err
	}
	defer st.Close()
	infos, err := st.ListBatches(cf.limit)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no archived batches")
		return nil
	}
	fmt.Printf("  %6s  %-20s %-12s %-40s %6s %8s\n", "id", "created", "mode", "label", "runs", "seed")
	for _, bi := range infos {
		fmt.Printf("  %6d  %-20s %-12s %-40s %6d %8d\n",
			bi.ID, bi.CreatedAt, bi.Mode, bi.Label, bi.TotalRuns, bi.SeedBase)
	}
	return nil
}

// runShow re-renders one archived batch report by id.
func runShow(cf cliFlags) error {
	if cf.db == "" || cf.id == 0 {
		return fmt.Errorf("show mode needs -db and -id (see -mode=list)")
	}
	st, err := store.Open(cf.db)
	if err != nil {
		return err
	}
	defer st.Close()
	b, err := st.LoadBatch(cf.id)
	if err != nil {
		return err
	}
	fmt.Print(diag.FormatBatch(b))
	return nil
}

func archiveBatch(dbPath, invocation, mode string, cfg sim.Config, seedBase int64, b *diag.BatchResult) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := st.SaveBatch(invocation, mode, cfg, seedBase, b)
	if err != nil {
		return err
	}
	logger.Info("archived batch", "db", dbPath, "id", id, "mode", mode)
	return nil
}

// applyVariant overlays "key=value" pairs on a config. Identity keys
// (class, race, personality, upgrades, caps, booster) swap the matching
// field; any known balance override key lands in Overrides.
func applyVariant(cfg sim.Config, pairs string) (sim.Config, error) {
	out := cfg
	if len(cfg.Overrides) > 0 {
		out.Overrides = make(map[string]float64, len(cfg.Overrides))
		for k, v := range cfg.Overrides {
			out.Overrides[k] = v
		}
	}
	for _, part := range strings.Split(pairs, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return sim.Config{}, fmt.Errorf("malformed variant entry %q, want key=value", part)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch k {
		case "class":
			out.ClassID = v
		case "race":
			out.RaceID = v
		case "personality":
			out.Personality = v
		case "upgrades":
			out.UpgradePreset = v
		case "caps":
			out.CapabilityPreset = v
		case "booster":
			out.BoosterPreset = v
		default:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return sim.Config{}, fmt.Errorf("variant entry %q: unknown key or bad value", part)
			}
			if out.Overrides == nil {
				out.Overrides = map[string]float64{}
			}
			out.Overrides[k] = f
		}
	}
	return out, out.Validate()
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func shortMetric(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}

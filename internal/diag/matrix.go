package diag

import (
	"fmt"
	"strings"

	"github.com/delvelab/delveprobe/internal/sim"
)

// Axes describes the parameter sweep of a matrix run. Empty axes inherit
// the base configuration's value. With PairedProgression the upgrade and
// capability lists are zipped index-by-index instead of crossed.
type Axes struct {
	Classes           []string
	Races             []string
	Personalities     []string
	UpgradeTiers      []string
	CapabilityTiers   []string
	PairedProgression bool
}

// MatrixOptions controls how the sweep is executed.
type MatrixOptions struct {
	Base        sim.Config
	Axes        Axes
	RunsPerCell int
	SeedBase    int64
	Threads     int

	// OnCellDone fires exactly once per cell, in completion order.
	OnCellDone func(cell *MatrixCell, done, total int)
}

// MatrixCell is one fully-resolved configuration plus its reduced batch.
type MatrixCell struct {
	Label  string
	Config sim.Config
	Batch  *BatchResult
}

// MatrixResult holds every cell of a sweep in definition order.
type MatrixResult struct {
	Cells       []*MatrixCell
	RunsPerCell int
	TotalRuns   int
}

func orBase(axis []string, base string) []string {
	if len(axis) == 0 {
		return []string{base}
	}
	return axis
}

// expandCells resolves the axes against the base configuration into the
// concrete list of cell configs, in definition order.
func expandCells(base sim.Config, ax Axes) ([]sim.Config, error) {
	classes := orBase(ax.Classes, base.ClassID)
	races := orBase(ax.Races, base.RaceID)
	personalities := orBase(ax.Personalities, base.Personality)
	upgrades := orBase(ax.UpgradeTiers, base.UpgradePreset)
	caps := orBase(ax.CapabilityTiers, base.CapabilityPreset)

	type pair struct{ upgrade, capability string }
	var pairs []pair
	if ax.PairedProgression {
		if len(ax.UpgradeTiers) != len(ax.CapabilityTiers) {
			return nil, fmt.Errorf("paired progression needs equal upgrade and capability lists, got %d and %d",
				len(ax.UpgradeTiers), len(ax.CapabilityTiers))
		}
		for i := range upgrades {
			pairs = append(pairs, pair{upgrades[i], caps[i]})
		}
	} else {
		for _, u := range upgrades {
			for _, c := range caps {
				pairs = append(pairs, pair{u, c})
			}
		}
	}

	var cells []sim.Config
	for _, class := range classes {
		for _, race := range races {
			for _, pers := range personalities {
				for _, pc := range pairs {
					cfg := base
					cfg.ClassID = class
					cfg.RaceID = race
					cfg.Personality = pers
					cfg.UpgradePreset = pc.upgrade
					cfg.CapabilityPreset = pc.capability
					// A swept preset axis replaces any explicit values the
					// base carried; untouched axes keep them.
					if len(ax.UpgradeTiers) > 0 {
						cfg.UpgradeLevels = nil
					}
					if len(ax.CapabilityTiers) > 0 {
						cfg.Capabilities = nil
					}
					if err := cfg.Validate(); err != nil {
						return nil, fmt.Errorf("matrix cell: %w", err)
					}
					cells = append(cells, cfg.ResolvePresets())
				}
			}
		}
	}
	return cells, nil
}

// cellLabel names a cell by the axes that actually vary. A single-valued
// axis adds nothing a reader does not already know from the base config.
func cellLabel(cfg sim.Config, ax Axes) string {
	var parts []string
	if len(ax.Classes) > 1 {
		parts = append(parts, cfg.ClassID)
	}
	if len(ax.Races) > 1 {
		parts = append(parts, cfg.RaceID)
	}
	if len(ax.Personalities) > 1 {
		parts = append(parts, cfg.Personality)
	}
	if ax.PairedProgression {
		if len(ax.UpgradeTiers) > 1 {
			parts = append(parts, cfg.UpgradePreset+"+"+cfg.CapabilityPreset)
		}
	} else {
		if len(ax.UpgradeTiers) > 1 {
			parts = append(parts, "up:"+cfg.UpgradePreset)
		}
		if len(ax.CapabilityTiers) > 1 {
			parts = append(parts, "cap:"+cfg.CapabilityPreset)
		}
	}
	if len(parts) == 0 {
		return cfg.Label()
	}
	return strings.Join(parts, "/")
}

// RunMatrix sweeps the axes, flattening every cell's runs into a single
// submission wave so the pool stays saturated across cell boundaries.
// All cells share the seed range, so each seed's dungeon is identical in
// every cell and differences are attributable to the configuration.
func RunMatrix(opt MatrixOptions) (*MatrixResult, error) {
	if opt.RunsPerCell <= 0 {
		return nil, fmt.Errorf("matrix needs at least one run per cell, got %d", opt.RunsPerCell)
	}
	configs, err := expandCells(opt.Base, opt.Axes)
	if err != nil {
		return nil, err
	}

	total := len(configs) * opt.RunsPerCell
	pool := GetOrCreatePool(opt.Threads)
	out := make(chan Outcome, total)
	for ci, cfg := range configs {
		for r := 0; r < opt.RunsPerCell; r++ {
			pool.SubmitTo(WorkItem{Seed: opt.SeedBase + int64(r), Config: cfg}, ci, out)
		}
	}

	cells := reduceCells(out, configs, opt.Axes, opt.RunsPerCell, opt.OnCellDone)
	return &MatrixResult{Cells: cells, RunsPerCell: opt.RunsPerCell, TotalRuns: total}, nil
}

// reduceCells folds outcomes into per-cell batches, closing each cell the
// moment every one of its items has been delivered. A rejected item is fatal
// for that item only: it becomes a failure entry in its cell's batch and
// never strands the remaining cells.
func reduceCells(out <-chan Outcome, configs []sim.Config, ax Axes, runsPerCell int,
	onCellDone func(cell *MatrixCell, done, total int)) []*MatrixCell {

	perCell := make([][]*DiagnoseResult, len(configs))
	perFail := make([][]RunFailure, len(configs))
	cells := make([]*MatrixCell, len(configs))
	cellsDone := 0
	total := len(configs) * runsPerCell
	for i := 0; i < total; i++ {
		oc := <-out
		if oc.Err != nil {
			perFail[oc.Tag] = append(perFail[oc.Tag], RunFailure{Seed: oc.Item.Seed, Error: oc.Err.Error()})
		} else {
			perCell[oc.Tag] = append(perCell[oc.Tag], oc.Result)
		}
		if len(perCell[oc.Tag])+len(perFail[oc.Tag]) < runsPerCell {
			continue
		}
		batch := Aggregate(perCell[oc.Tag])
		attachFailures(batch, perFail[oc.Tag])
		cell := &MatrixCell{
			Label:  cellLabel(configs[oc.Tag], ax),
			Config: configs[oc.Tag],
			Batch:  batch,
		}
		cells[oc.Tag] = cell
		cellsDone++
		if onCellDone != nil {
			onCellDone(cell, cellsDone, len(configs))
		}
	}
	return cells
}

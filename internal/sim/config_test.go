package sim

import (
	"os"
	"path/filepath"
	"testing"
)

// A preset file overlays the built-in pack: named entries replace, unnamed
// built-ins survive.
func TestLoadPresetPackMergesOverBuiltins(t *testing.T) {
	defer func() { presets = defaultPresets() }()

	path := filepath.Join(t.TempDir(), "presets.yaml")
	data := []byte(`
upgrades:
  tier1:
    vitality: 9
  custom:
    power: 2
capabilities:
  timid-scout:
    auto_explore: true
    avoid_danger: true
boosters:
  rich:
    gold_start: 500
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}
	if err := LoadPresetPack(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := presets.Upgrades["tier1"].Vitality; got != 9 {
		t.Fatalf("tier1 vitality = %d, want the file's 9", got)
	}
	if got := presets.Upgrades["tier2"].Power; got != 2 {
		t.Fatalf("built-in tier2 lost in merge: power = %d", got)
	}
	if _, ok := presets.Upgrades["custom"]; !ok {
		t.Fatal("new preset from file missing")
	}
	caps, ok := presets.Capabilities["timid-scout"]
	if !ok || !caps.AutoExplore || !caps.AvoidDanger || caps.OpenDoors {
		t.Fatalf("timid-scout = %+v, want auto_explore+avoid_danger only", caps)
	}
	if got := presets.Boosters["rich"].GoldStart; got != 500 {
		t.Fatalf("rich gold_start = %d, want 500", got)
	}

	cfg := Config{
		RaceID: "human", ClassID: "warrior", Personality: "cautious",
		MaxTurns: 100, CircuitBreakerTurns: 50,
		CapabilityPreset: "timid-scout",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config with merged preset rejected: %v", err)
	}
}

// A resolved config must keep working even if the preset tables change
// after resolution; work items carry their own values.
func TestResolvePresetsDetachesFromPack(t *testing.T) {
	defer func() { presets = defaultPresets() }()

	cfg := Config{
		RaceID: "human", ClassID: "warrior", Personality: "cautious",
		MaxTurns: 100, CircuitBreakerTurns: 50,
		UpgradePreset: "tier1", CapabilityPreset: "basic", BoosterPreset: "scout",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	resolved := cfg.ResolvePresets()
	if resolved.UpgradeLevels == nil || resolved.Capabilities == nil || resolved.Booster == nil {
		t.Fatalf("resolution left preset references: %+v", resolved)
	}

	// Empty every table; the resolved config must not notice.
	presets = &PresetPack{
		Upgrades:     map[string]Upgrades{},
		Capabilities: map[string]Capabilities{},
		Boosters:     map[string]Booster{},
	}

	if got := resolved.resolvedUpgrades(); got != (Upgrades{Vitality: 1, Power: 1}) {
		t.Fatalf("resolved upgrades = %+v, want tier1 values", got)
	}
	caps := resolved.resolvedCapabilities()
	if !caps.AutoExplore || !caps.FightBack || caps.OpenDoors {
		t.Fatalf("resolved capabilities = %+v, want basic values", caps)
	}
	if got := resolved.resolvedBooster(); got.FOVBonus != 2 {
		t.Fatalf("resolved booster = %+v, want scout values", got)
	}

	// The unresolved original still reads the live tables.
	if got := cfg.resolvedUpgrades(); got != (Upgrades{}) {
		t.Fatalf("unresolved config bypassed the pack: %+v", got)
	}
}

func TestLoadPresetPackMissingFile(t *testing.T) {
	if err := LoadPresetPack(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing preset file accepted")
	}
}

func TestLoadPresetPackMalformedYAML(t *testing.T) {
	defer func() { presets = defaultPresets() }()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("upgrades: [not, a, map]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadPresetPack(path); err == nil {
		t.Fatal("malformed preset file accepted")
	}
	if _, ok := presets.Upgrades["tier2"]; !ok {
		t.Fatal("failed load clobbered the built-in pack")
	}
}

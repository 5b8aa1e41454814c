package sim

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one diagnostic run. It is immutable once a run starts;
// the kernel copies everything it needs at construction time.
type Config struct {
	RaceID      string
	ClassID     string
	Personality string

	MaxTurns            int
	CircuitBreakerTurns int

	// UpgradePreset names a tier from the preset pack; UpgradeLevels, when
	// non-nil, overrides the preset with explicit levels.
	UpgradePreset string
	UpgradeLevels map[string]int

	CapabilityPreset string
	Capabilities     *Capabilities

	// BoosterPreset names a run-start bonus; Booster, when non-nil,
	// overrides the preset with explicit values.
	BoosterPreset string
	Booster       *Booster

	// Overrides is a flat map of named balance overrides, mostly percentage
	// scalers (100 = unchanged). See applyOverrides for the known keys.
	Overrides map[string]float64
}

// Capabilities gates what the agent is allowed to attempt.
type Capabilities struct {
	AutoExplore bool `yaml:"auto_explore"`
	OpenDoors   bool `yaml:"open_doors"`
	AvoidDanger bool `yaml:"avoid_danger"`
	UseStairs   bool `yaml:"use_stairs"`
	FightBack   bool `yaml:"fight_back"`
}

// Upgrades are the resolved permanent bonus levels.
type Upgrades struct {
	Vitality int `yaml:"vitality"`
	Power    int `yaml:"power"`
	Armor    int `yaml:"armor"`
}

// Booster is a resolved run-start bonus.
type Booster struct {
	FOVBonus  int `yaml:"fov_bonus"`
	GoldStart int `yaml:"gold_start"`
	HPBonus   int `yaml:"hp_bonus"`
}

type raceDef struct {
	HPBonus     int
	DamageBonus int
	ArmorBonus  int
}

type classDef struct {
	BaseHP     int
	BaseDamage int
	BaseArmor  int
}

var races = map[string]raceDef{
	"human": {HPBonus: 0, DamageBonus: 0, ArmorBonus: 0},
	"elf":   {HPBonus: -2, DamageBonus: 2, ArmorBonus: 0},
	"dwarf": {HPBonus: 4, DamageBonus: 0, ArmorBonus: 1},
	"orc":   {HPBonus: 2, DamageBonus: 1, ArmorBonus: -1},
}

var classes = map[string]classDef{
	"warrior": {BaseHP: 24, BaseDamage: 5, BaseArmor: 2},
	"ranger":  {BaseHP: 18, BaseDamage: 4, BaseArmor: 1},
	"mage":    {BaseHP: 14, BaseDamage: 6, BaseArmor: 0},
	"rogue":   {BaseHP: 16, BaseDamage: 4, BaseArmor: 1},
}

var personalities = map[string]bool{
	"cautious":   true,
	"aggressive": true,
	"greedy":     true,
	"timid":      true,
}

// PresetPack is the full set of named presets. The built-in pack can be
// replaced or extended from a yaml file.
type PresetPack struct {
	Upgrades     map[string]Upgrades     `yaml:"upgrades"`
	Capabilities map[string]Capabilities `yaml:"capabilities"`
	Boosters     map[string]Booster      `yaml:"boosters"`
}

func defaultPresets() *PresetPack {
	return &PresetPack{
		Upgrades: map[string]Upgrades{
			"none":  {},
			"tier1": {Vitality: 1, Power: 1, Armor: 0},
			"tier2": {Vitality: 2, Power: 2, Armor: 1},
			"tier3": {Vitality: 4, Power: 3, Armor: 2},
		},
		Capabilities: map[string]Capabilities{
			// inert disables everything; used to exercise the circuit breaker.
			"inert":    {},
			"basic":    {AutoExplore: true, FightBack: true},
			"standard": {AutoExplore: true, OpenDoors: true, UseStairs: true, FightBack: true},
			"full":     {AutoExplore: true, OpenDoors: true, AvoidDanger: true, UseStairs: true, FightBack: true},
		},
		Boosters: map[string]Booster{
			"none":   {},
			"scout":  {FOVBonus: 2},
			"slayer": {HPBonus: 4},
			"rich":   {GoldStart: 50},
		},
	}
}

var presets = defaultPresets()

// UpgradeTierNames returns the built-in upgrade tiers in ascending order.
func UpgradeTierNames() []string { return []string{"none", "tier1", "tier2", "tier3"} }

// CapabilityTierNames returns the built-in capability tiers in ascending order.
func CapabilityTierNames() []string { return []string{"inert", "basic", "standard", "full"} }

// LoadPresetPack merges a yaml preset file over the built-in pack. Entries
// in the file replace same-named built-ins; unnamed built-ins survive.
func LoadPresetPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read preset pack: %w", err)
	}
	var pack PresetPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("parse preset pack %s: %w", path, err)
	}
	merged := defaultPresets()
	for name, u := range pack.Upgrades {
		merged.Upgrades[name] = u
	}
	for name, c := range pack.Capabilities {
		merged.Capabilities[name] = c
	}
	for name, b := range pack.Boosters {
		merged.Boosters[name] = b
	}
	presets = merged
	return nil
}

// RaceIDs returns the known race ids, sorted.
func RaceIDs() []string { return sortedKeys(races) }

// ClassIDs returns the known class ids, sorted.
func ClassIDs() []string { return sortedKeys(classes) }

// PersonalityIDs returns the known personality tags, sorted.
func PersonalityIDs() []string { return sortedKeys(personalities) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks every id against the known tables. Configuration errors
// are fatal and raised before any world is constructed.
func (c Config) Validate() error {
	if _, ok := races[c.RaceID]; !ok {
		return fmt.Errorf("unknown race id %q (known: %s)", c.RaceID, strings.Join(RaceIDs(), ", "))
	}
	if _, ok := classes[c.ClassID]; !ok {
		return fmt.Errorf("unknown class id %q (known: %s)", c.ClassID, strings.Join(ClassIDs(), ", "))
	}
	if !personalities[c.Personality] {
		return fmt.Errorf("unknown personality %q (known: %s)", c.Personality, strings.Join(PersonalityIDs(), ", "))
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.CircuitBreakerTurns <= 0 {
		return fmt.Errorf("circuit breaker turns must be positive, got %d", c.CircuitBreakerTurns)
	}
	if c.UpgradeLevels == nil && c.UpgradePreset != "" {
		if _, ok := presets.Upgrades[c.UpgradePreset]; !ok {
			return fmt.Errorf("unknown upgrade preset %q", c.UpgradePreset)
		}
	}
	for key := range c.UpgradeLevels {
		switch key {
		case "vitality", "power", "armor":
		default:
			return fmt.Errorf("unknown upgrade level key %q", key)
		}
	}
	if c.Capabilities == nil && c.CapabilityPreset != "" {
		if _, ok := presets.Capabilities[c.CapabilityPreset]; !ok {
			return fmt.Errorf("unknown capability preset %q", c.CapabilityPreset)
		}
	}
	if c.BoosterPreset != "" {
		if _, ok := presets.Boosters[c.BoosterPreset]; !ok {
			return fmt.Errorf("unknown booster preset %q", c.BoosterPreset)
		}
	}
	for key := range c.Overrides {
		if !knownOverride(key) {
			return fmt.Errorf("unknown balance override %q", key)
		}
	}
	return nil
}

func knownOverride(key string) bool {
	switch key {
	case "monster_hp_pct", "monster_damage_pct", "player_damage_pct",
		"monster_density_pct", "gold_pct", "start_depth":
		return true
	}
	return false
}

// resolvedUpgrades returns the effective upgrade levels for the config.
func (c Config) resolvedUpgrades() Upgrades {
	if c.UpgradeLevels != nil {
		return Upgrades{
			Vitality: c.UpgradeLevels["vitality"],
			Power:    c.UpgradeLevels["power"],
			Armor:    c.UpgradeLevels["armor"],
		}
	}
	if c.UpgradePreset == "" {
		return presets.Upgrades["none"]
	}
	return presets.Upgrades[c.UpgradePreset]
}

// resolvedCapabilities returns the effective capability flags.
func (c Config) resolvedCapabilities() Capabilities {
	if c.Capabilities != nil {
		return *c.Capabilities
	}
	if c.CapabilityPreset == "" {
		return presets.Capabilities["standard"]
	}
	return presets.Capabilities[c.CapabilityPreset]
}

func (c Config) resolvedBooster() Booster {
	if c.Booster != nil {
		return *c.Booster
	}
	if c.BoosterPreset == "" {
		return Booster{}
	}
	return presets.Boosters[c.BoosterPreset]
}

// ResolvePresets materializes the named presets into explicit values so the
// config carries everything a run needs without reading the process-wide
// preset tables again. Call after Validate; the preset names stay set for
// labelling.
func (c Config) ResolvePresets() Config {
	u := c.resolvedUpgrades()
	c.UpgradeLevels = map[string]int{
		"vitality": u.Vitality,
		"power":    u.Power,
		"armor":    u.Armor,
	}
	caps := c.resolvedCapabilities()
	c.Capabilities = &caps
	boost := c.resolvedBooster()
	c.Booster = &boost
	return c
}

func (c Config) override(key string, def float64) float64 {
	if v, ok := c.Overrides[key]; ok {
		return v
	}
	return def
}

// ParseOverrides parses a CLI override string of the form
// "monster_hp_pct=120,gold_pct=80" into an override map.
func ParseOverrides(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed override %q, want name=value", part)
		}
		key := strings.TrimSpace(kv[0])
		if !knownOverride(key) {
			return nil, fmt.Errorf("unknown balance override %q", key)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", part, err)
		}
		out[key] = v
	}
	return out, nil
}

// Label returns a compact human-readable tag for the config.
func (c Config) Label() string {
	parts := []string{c.RaceID, c.ClassID, c.Personality}
	if c.UpgradePreset != "" {
		parts = append(parts, "up:"+c.UpgradePreset)
	}
	if c.CapabilityPreset != "" {
		parts = append(parts, "cap:"+c.CapabilityPreset)
	}
	return strings.Join(parts, "/")
}

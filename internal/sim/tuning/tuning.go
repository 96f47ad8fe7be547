package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	MaxTagsPerTick     int `yaml:"max_tags_per_tick" json:"max_tags_per_tick"`

	Rewards Rewards `yaml:"rewards" json:"rewards"`

	// A single sector neutralisation of at least this many zones unlocks
	// the NEUTRALISER achievement.
	NeutraliserAchievementZones int `yaml:"neutraliser_achievement_zones" json:"neutraliser_achievement_zones"`
}

type Rewards struct {
	CoinsPerZoneNeutralised int64 `yaml:"coins_per_zone_neutralised" json:"coins_per_zone_neutralised"`
	CoinsPerNeutralCap      int64 `yaml:"coins_per_neutral_cap" json:"coins_per_neutral_cap"`
	CoinsPerEnemyCap        int64 `yaml:"coins_per_enemy_cap" json:"coins_per_enemy_cap"`
	// Assist share in thousandths of the capture's coins (500 = 0.5).
	AssistFactorPermille int64 `yaml:"assist_factor_permille" json:"assist_factor_permille"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		MaxTagsPerTick:     256,
		Rewards: Rewards{
			CoinsPerZoneNeutralised: 100,
			CoinsPerNeutralCap:      100,
			CoinsPerEnemyCap:        150,
			AssistFactorPermille:    500,
		},
		NeutraliserAchievementZones: 3,
	}
}

// Load reads a tuning file on top of Defaults, so a partial file is fine.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz))
	}
	if t.SnapshotEveryTicks < 0 {
		errs = append(errs, fmt.Errorf("snapshot_every_ticks must be >= 0, got %d", t.SnapshotEveryTicks))
	}
	if t.MaxTagsPerTick <= 0 {
		errs = append(errs, fmt.Errorf("max_tags_per_tick must be > 0, got %d", t.MaxTagsPerTick))
	}
	if err := t.Rewards.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate rejects negative rewards; the allocator's rounding is only defined
// for non-negative values.
func (r Rewards) Validate() error {
	var errs []error
	check := func(name string, v int64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, v))
		}
	}
	check("coins_per_zone_neutralised", r.CoinsPerZoneNeutralised)
	check("coins_per_neutral_cap", r.CoinsPerNeutralCap)
	check("coins_per_enemy_cap", r.CoinsPerEnemyCap)
	check("assist_factor_permille", r.AssistFactorPermille)
	return errors.Join(errs...)
}

// Digest identifies a tuning by content so clients can tell whether two
// matches score the same way.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

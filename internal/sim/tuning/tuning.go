package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Excavation  Excavation  `yaml:"excavation"`
	Amendments  Amendments  `yaml:"amendments"`
	Leaderboard Leaderboard `yaml:"leaderboard"`
}

type Excavation struct {
	BaseFindPermille          int            `yaml:"base_find_permille"`
	DifficultyPenaltyPermille int            `yaml:"difficulty_penalty_permille"`
	BaseXP                    int            `yaml:"base_xp"`
	BaseSpark                 int            `yaml:"base_spark"`
	RarityMultipliers         map[string]int `yaml:"rarity_multipliers"`
}

type Amendments struct {
	// VoteWindowTicks closes open amendments as rejected once elapsed; 0 disables expiry.
	VoteWindowTicks  uint64   `yaml:"vote_window_ticks"`
	ForbiddenPhrases []string `yaml:"forbidden_phrases"`
	// MinElectorate is the smallest electorate an amendment can be proposed with.
	MinElectorate    int      `yaml:"min_electorate"`
}

type Leaderboard struct {
	IndexEveryTicks int `yaml:"index_every_ticks"`
	IndexLimit      int `yaml:"index_limit"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		SnapshotEveryTicks: 3000,
		Excavation: Excavation{
			BaseFindPermille:          800,
			DifficultyPenaltyPermille: 60,
			BaseXP:                    10,
			BaseSpark:                 5,
			RarityMultipliers: map[string]int{
				"common":    1,
				"uncommon":  2,
				"rare":      3,
				"epic":      4,
				"legendary": 5,
			},
		},
		Amendments: Amendments{
			VoteWindowTicks: 36000,
			MinElectorate:   3,
			ForbiddenPhrases: []string{
				"remove player rights",
				"revoke player rights",
				"closed source",
				"retroactively punish",
				"humans only",
			},
		},
		Leaderboard: Leaderboard{
			IndexEveryTicks: 100,
			IndexLimit:      50,
		},
	}
}

// Load reads a tuning file over Defaults, so omitted keys keep their default values.
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
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	ex := t.Excavation
	if ex.BaseFindPermille < 0 || ex.BaseFindPermille > 1000 {
		return fmt.Errorf("excavation.base_find_permille out of range")
	}
	if ex.DifficultyPenaltyPermille < 0 {
		return fmt.Errorf("excavation.difficulty_penalty_permille must be >= 0")
	}
	if ex.BaseXP < 10 {
		return fmt.Errorf("excavation.base_xp must be >= 10")
	}
	if ex.BaseSpark < 5 {
		return fmt.Errorf("excavation.base_spark must be >= 5")
	}
	for r, m := range ex.RarityMultipliers {
		if m < 1 {
			return fmt.Errorf("excavation.rarity_multipliers.%s must be >= 1", r)
		}
	}
	if t.Amendments.MinElectorate < 1 {
		return fmt.Errorf("amendments.min_electorate must be >= 1")
	}
	return nil
}

// RarityMultiplier defaults to 1 for rarities missing from the table.
func (e Excavation) RarityMultiplier(rarity string) int {
	if m, ok := e.RarityMultipliers[rarity]; ok && m >= 1 {
		return m
	}
	return 1
}

package excavation

import (
	"archivum.ai/internal/sim/archive/rng"
	"archivum.ai/internal/sim/catalogs"
	"archivum.ai/internal/sim/tuning"
)

// SiteState is the mutable per-site dig counter.
type SiteState struct {
	DigsUsed   int
	Depleted   bool
	DepletedAt uint64
}

type Status struct {
	SiteID        string `json:"site_id"`
	Zone          string `json:"zone"`
	MaxDigs       int    `json:"max_digs"`
	DigsRemaining int    `json:"digs_remaining"`
	Depleted      bool   `json:"depleted"`
	RespawnIn     uint64 `json:"respawn_in"`
}

func elapsedSince(from, now uint64) uint64 {
	if now < from {
		return 0
	}
	return now - from
}

// Revived reports whether a depleted site has served its respawn time by now.
func Revived(def catalogs.SiteDef, st SiteState, now uint64) bool {
	return st.Depleted && elapsedSince(st.DepletedAt, now) >= def.RespawnTime
}

func Remaining(def catalogs.SiteDef, st SiteState, now uint64) int {
	if Revived(def, st, now) {
		return def.MaxDigs
	}
	if st.Depleted {
		return 0
	}
	r := def.MaxDigs - st.DigsUsed
	if r < 0 {
		return 0
	}
	return r
}

func StatusAt(def catalogs.SiteDef, st SiteState, now uint64) Status {
	rem := Remaining(def, st, now)
	out := Status{
		SiteID:        def.ID,
		Zone:          def.Zone,
		MaxDigs:       def.MaxDigs,
		DigsRemaining: rem,
		Depleted:      rem == 0,
	}
	if out.Depleted && st.Depleted {
		el := elapsedSince(st.DepletedAt, now)
		if el < def.RespawnTime {
			out.RespawnIn = def.RespawnTime - el
		}
	}
	return out
}

// Consume uses one dig and returns the digs left. The caller checks
// Remaining > 0 first.
func Consume(def catalogs.SiteDef, st *SiteState, now uint64) int {
	if Revived(def, *st, now) {
		*st = SiteState{}
	}
	st.DigsUsed++
	rem := def.MaxDigs - st.DigsUsed
	if rem <= 0 {
		rem = 0
		st.Depleted = true
		st.DepletedAt = now
	}
	return rem
}

type Draw struct {
	Found   bool
	RelicID string
}

func FindPermille(def catalogs.SiteDef, ex tuning.Excavation) int {
	p := ex.BaseFindPermille - (def.Difficulty-1)*ex.DifficultyPenaltyPermille
	if p < 0 {
		return 0
	}
	if p > 1000 {
		return 1000
	}
	return p
}

// Resolve draws the dig outcome from seed alone: one draw for the find,
// one for the pool index.
func Resolve(def catalogs.SiteDef, seed int64, ex tuning.Excavation) Draw {
	r := rng.New(seed)
	if !r.Permille(FindPermille(def, ex)) || len(def.RelicPool) == 0 {
		return Draw{}
	}
	return Draw{Found: true, RelicID: def.RelicPool[r.Intn(len(def.RelicPool))]}
}

func Rewards(rarity string, ex tuning.Excavation) (xp, spark int) {
	m := ex.RarityMultiplier(rarity)
	return ex.BaseXP * m, ex.BaseSpark * m
}

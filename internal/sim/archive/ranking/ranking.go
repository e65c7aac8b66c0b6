package ranking

import (
	"sort"

	"archivum.ai/internal/sim/archive/ledger"
	"archivum.ai/internal/sim/catalogs"
)

const (
	PointsPerRelic      = 20
	PointsPerExcavation = 5
	PointsPerProposal   = 10
)

func Score(p *ledger.PlayerArchive) int {
	if p == nil {
		return 0
	}
	score := ledger.AddSat(p.RelicCount()*PointsPerRelic, p.CompletedExcavations*PointsPerExcavation)
	score = ledger.AddSat(score, p.TotalContributions())
	return ledger.AddSat(score, len(p.ProposedAmendments)*PointsPerProposal)
}

type Rank struct {
	Score    int                `json:"score"`
	Rank     catalogs.RankTier  `json:"rank"`
	NextRank *catalogs.RankTier `json:"next_rank,omitempty"`
	Progress int                `json:"progress"`
}

// TierFor returns the index of the highest tier whose min score is reached.
func TierFor(tiers []catalogs.RankTier, score int) int {
	idx := 0
	for i, t := range tiers {
		if t.MinScore <= score {
			idx = i
		}
	}
	return idx
}

func RankFor(tiers []catalogs.RankTier, score int) Rank {
	out := Rank{Score: score}
	if len(tiers) == 0 {
		return out
	}
	i := TierFor(tiers, score)
	out.Rank = tiers[i]
	if i+1 >= len(tiers) {
		out.Progress = 100
		return out
	}
	next := tiers[i+1]
	out.NextRank = &next
	span := next.MinScore - tiers[i].MinScore
	if span > 0 {
		out.Progress = clampPercent((score - tiers[i].MinScore) * 100 / span)
	}
	return out
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type Entry struct {
	PlayerID    string `json:"player_id"`
	Rank        string `json:"rank"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	RelicsFound int    `json:"relics_found"`
}

// Leaderboard sorts by score, then relics found, then player id. A
// non-positive limit yields an empty board.
func Leaderboard(l *ledger.Ledger, tiers []catalogs.RankTier, limit int) []Entry {
	if limit <= 0 || l == nil || l.Len() == 0 {
		return []Entry{}
	}
	entries := make([]Entry, 0, l.Len())
	for _, id := range l.PlayerIDs() {
		p := l.Get(id)
		score := Score(p)
		e := Entry{PlayerID: id, Score: score, RelicsFound: p.RelicCount()}
		if len(tiers) > 0 {
			t := tiers[TierFor(tiers, score)]
			e.Rank = t.ID
			e.Title = t.Title
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].RelicsFound != entries[j].RelicsFound {
			return entries[i].RelicsFound > entries[j].RelicsFound
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

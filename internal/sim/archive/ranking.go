package archive

import "archivum.ai/internal/sim/archive/ranking"

func (s *State) GetArchivistRank(playerID string) ranking.Rank {
	return ranking.RankFor(s.cats.Ranks.Tiers, ranking.Score(s.ledger.Get(playerID)))
}

func (s *State) GetArchivalLeaderboard(limit int) []ranking.Entry {
	return ranking.Leaderboard(s.ledger, s.cats.Ranks.Tiers, limit)
}

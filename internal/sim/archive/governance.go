package archive

import (
	"strings"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/amendments"
)

func (s *State) ProposeAmendment(playerID, loreID, newText, reason string, currentTick uint64) ProposeResult {
	s.Observe(currentTick)
	if strings.TrimSpace(playerID) == "" {
		return ProposeResult{Code: protocol.ErrBadRequest, Reason: "missing player_id"}
	}
	if ok, code, msg := amendments.ValidateProposeInput(loreID, newText, reason, s.tune.Amendments.ForbiddenPhrases); !ok {
		return ProposeResult{Code: code, Reason: msg}
	}
	a := s.board.Propose(playerID, loreID, newText, reason, currentTick)
	s.ledger.RecordProposal(playerID, a.ID)
	a.Electorate = s.electorate()
	return ProposeResult{OK: true, Amendment: a}
}

func (s *State) VoteOnAmendment(voterID, amendmentID string, voteYes bool, totalVoters int) VoteResult {
	a := s.board.Get(amendmentID)
	if a == nil {
		return VoteResult{Code: protocol.ErrNotFound, Reason: "unknown amendment: " + amendmentID}
	}
	approved, ok, code, msg := amendments.Vote(a, voterID, voteYes, totalVoters, s.now)
	res := VoteResult{CurrentVotes: VoteCounts{Yes: a.Yes, No: a.No}}
	if !ok {
		res.Code, res.Reason = code, msg
		return res
	}
	res.OK = true
	res.Approved = approved
	return res
}

// Electorate is the voter count votes on the amendment are counted against.
// Unknown amendments get the current electorate so the vote itself reports
// E_NOT_FOUND.
func (s *State) Electorate(amendmentID string) int {
	if a := s.board.Get(amendmentID); a != nil && a.Electorate > 0 {
		return a.Electorate
	}
	return s.electorate()
}

// electorate counts players with an archive, floored at the configured minimum.
func (s *State) electorate() int {
	n := s.ledger.Len()
	if n < s.tune.Amendments.MinElectorate {
		n = s.tune.Amendments.MinElectorate
	}
	if n < 1 {
		n = 1
	}
	return n
}

// GetAmendments lists amendments by id; an empty status returns all.
func (s *State) GetAmendments(status amendments.Status) []*amendments.Amendment {
	return s.board.List(status)
}

// ExpireAmendments rejects open amendments older than the vote window.
func (s *State) ExpireAmendments(currentTick uint64) []*amendments.Amendment {
	s.Observe(currentTick)
	return s.board.ExpireVoting(currentTick, s.tune.Amendments.VoteWindowTicks)
}

package amendments

import (
	"fmt"
	"sort"
	"strings"

	"archivum.ai/internal/protocol"
)

// RequiredApproval is the yes share of the electorate that approves an amendment.
const RequiredApproval = 0.66

type Status string

const (
	StatusVoting   Status = "voting"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusVoting:
		return StatusVoting, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

type Amendment struct {
	ID         string          `json:"id"`
	LoreID     string          `json:"lore_id"`
	ProposerID string          `json:"proposer_id"`
	NewText    string          `json:"new_text"`
	Reason     string          `json:"reason"`
	Yes        int             `json:"yes"`
	No         int             `json:"no"`
	Ballots    map[string]bool `json:"ballots"`
	Status     Status          `json:"status"`
	CreatedAt  uint64          `json:"created_at"`
	ResolvedAt uint64          `json:"resolved_at,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	// Electorate is the voter count the approval threshold is measured
	// against, fixed when the amendment is proposed.
	Electorate int             `json:"electorate"`
}

func (a *Amendment) HasVoted(voterID string) bool {
	_, ok := a.Ballots[voterID]
	return ok
}

// Voters returns voter ids in sorted order.
func (a *Amendment) Voters() []string {
	ids := make([]string, 0, len(a.Ballots))
	for id := range a.Ballots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func ValidateProposeInput(loreID, newText, reason string, forbidden []string) (ok bool, code string, msg string) {
	if strings.TrimSpace(loreID) == "" || strings.TrimSpace(newText) == "" || strings.TrimSpace(reason) == "" {
		return false, protocol.ErrBadRequest, "missing lore_id/new_text/reason"
	}
	if phrase, hit := ForbiddenPhrase(newText+" "+reason, forbidden); hit {
		return false, protocol.ErrBadRequest, fmt.Sprintf("amendment text contains forbidden phrase %q", phrase)
	}
	return true, "", ""
}

// ForbiddenPhrase does a case-insensitive substring scan.
func ForbiddenPhrase(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

type Board struct {
	byID map[string]*Amendment
	next uint64
}

func NewBoard() *Board {
	return &Board{byID: map[string]*Amendment{}}
}

func (b *Board) Get(id string) *Amendment { return b.byID[id] }

func (b *Board) NextSeq() uint64 { return b.next }

// Restore installs snapshot state; next never moves backwards.
func (b *Board) Restore(list []*Amendment, next uint64) {
	for _, a := range list {
		if a.Ballots == nil {
			a.Ballots = map[string]bool{}
		}
		b.byID[a.ID] = a
	}
	if next > b.next {
		b.next = next
	}
}

func (b *Board) Propose(proposerID, loreID, newText, reason string, now uint64) *Amendment {
	b.next++
	a := &Amendment{
		ID:         fmt.Sprintf("AM%06d", b.next),
		LoreID:     strings.TrimSpace(loreID),
		ProposerID: proposerID,
		NewText:    newText,
		Reason:     reason,
		Ballots:    map[string]bool{},
		Status:     StatusVoting,
		CreatedAt:  now,
	}
	b.byID[a.ID] = a
	return a
}

// List returns amendments ordered by id; an empty status matches all.
func (b *Board) List(status Status) []*Amendment {
	ids := make([]string, 0, len(b.byID))
	for id := range b.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Amendment, 0, len(ids))
	for _, id := range ids {
		a := b.byID[id]
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out
}

func Approved(yes, totalVoters int) bool {
	if totalVoters <= 0 {
		return false
	}
	return float64(yes)/float64(totalVoters) >= RequiredApproval
}

// Vote records one ballot and resolves the amendment when the approval
// share is reached or every voter has voted. approved is nil while pending.
func Vote(a *Amendment, voterID string, voteYes bool, totalVoters int, now uint64) (approved *bool, ok bool, code string, msg string) {
	if strings.TrimSpace(voterID) == "" {
		return nil, false, protocol.ErrBadRequest, "missing voter_id"
	}
	if totalVoters <= 0 {
		return nil, false, protocol.ErrBadRequest, "total_voters must be > 0"
	}
	if a.Status != StatusVoting {
		return nil, false, protocol.ErrConflict, "amendment already resolved"
	}
	if a.HasVoted(voterID) {
		return nil, false, protocol.ErrPrecondition, "Already voted"
	}
	a.Ballots[voterID] = voteYes
	if voteYes {
		a.Yes++
	} else {
		a.No++
	}

	switch {
	case Approved(a.Yes, totalVoters):
		resolve(a, StatusApproved, now, "approval threshold reached")
		v := true
		return &v, true, "", ""
	case a.Yes+a.No >= totalVoters:
		resolve(a, StatusRejected, now, "all voters voted without approval")
		v := false
		return &v, true, "", ""
	default:
		return nil, true, "", ""
	}
}

func resolve(a *Amendment, st Status, now uint64, why string) {
	a.Status = st
	a.ResolvedAt = now
	a.Resolution = why
}

// ExpireVoting rejects open amendments whose vote window has elapsed and
// returns them in id order. A zero window disables expiry.
func (b *Board) ExpireVoting(now uint64, window uint64) []*Amendment {
	if window == 0 {
		return nil
	}
	var out []*Amendment
	for _, a := range b.List(StatusVoting) {
		if now < a.CreatedAt || now-a.CreatedAt < window {
			continue
		}
		resolve(a, StatusRejected, now, "vote window expired")
		out = append(out, a)
	}
	return out
}

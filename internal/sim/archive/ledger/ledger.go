package ledger

import (
	"math"
	"sort"
)

// AddSat adds two non-negative counters, stopping at math.MaxInt instead
// of wrapping.
func AddSat(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// PlayerArchive is one player's archival record. Entries only grow.
type PlayerArchive struct {
	PlayerID              string
	Relics                map[string]struct{}
	CompletedExcavations  int
	ResearchContributions map[string]int
	ProposedAmendments    []string
}

func (p *PlayerArchive) Owns(relicID string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Relics[relicID]
	return ok
}

func (p *PlayerArchive) RelicCount() int {
	if p == nil {
		return 0
	}
	return len(p.Relics)
}

func (p *PlayerArchive) RelicIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Relics))
	for id := range p.Relics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *PlayerArchive) TotalContributions() int {
	if p == nil {
		return 0
	}
	sum := 0
	for _, v := range p.ResearchContributions {
		sum = AddSat(sum, v)
	}
	return sum
}

type Ledger struct {
	players map[string]*PlayerArchive
}

func New() *Ledger {
	return &Ledger{players: map[string]*PlayerArchive{}}
}

// Get never creates an entry.
func (l *Ledger) Get(playerID string) *PlayerArchive {
	if l == nil {
		return nil
	}
	return l.players[playerID]
}

// Ensure returns the player's archive, creating it on first interaction.
func (l *Ledger) Ensure(playerID string) *PlayerArchive {
	if p := l.players[playerID]; p != nil {
		return p
	}
	p := &PlayerArchive{
		PlayerID:              playerID,
		Relics:                map[string]struct{}{},
		ResearchContributions: map[string]int{},
	}
	l.players[playerID] = p
	return p
}

// AddRelic reports whether the relic was newly added.
func (l *Ledger) AddRelic(playerID, relicID string) bool {
	p := l.Ensure(playerID)
	if _, ok := p.Relics[relicID]; ok {
		return false
	}
	p.Relics[relicID] = struct{}{}
	return true
}

func (l *Ledger) RecordExcavation(playerID string) {
	l.Ensure(playerID).CompletedExcavations++
}

// AddContribution ignores non-positive amounts so totals never shrink.
func (l *Ledger) AddContribution(playerID, projectID string, amount int) {
	if amount <= 0 {
		return
	}
	p := l.Ensure(playerID)
	p.ResearchContributions[projectID] = AddSat(p.ResearchContributions[projectID], amount)
}

func (l *Ledger) RecordProposal(playerID, amendmentID string) {
	p := l.Ensure(playerID)
	p.ProposedAmendments = append(p.ProposedAmendments, amendmentID)
}

func (l *Ledger) PlayerIDs() []string {
	ids := make([]string, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Ledger) Len() int { return len(l.players) }

// Put installs a restored archive, replacing any existing entry.
func (l *Ledger) Put(p *PlayerArchive) {
	if p == nil || p.PlayerID == "" {
		return
	}
	if p.Relics == nil {
		p.Relics = map[string]struct{}{}
	}
	if p.ResearchContributions == nil {
		p.ResearchContributions = map[string]int{}
	}
	l.players[p.PlayerID] = p
}

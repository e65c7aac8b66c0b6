package archive

import (
	"fmt"
	"strings"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/research"
	"archivum.ai/internal/sim/catalogs"
)

// StartResearchProject opens a run of the project for the guild. Whether a
// completed project may be run again is the template's repeatable flag.
func (s *State) StartResearchProject(guildID, projectID string, currentTick uint64) StartResult {
	s.Observe(currentTick)
	if strings.TrimSpace(guildID) == "" {
		return StartResult{Code: protocol.ErrBadRequest, Reason: "missing guild_id"}
	}
	def, ok := s.cats.Project(projectID)
	if !ok {
		return StartResult{Code: protocol.ErrNotFound, Reason: "unknown project: " + projectID}
	}
	inst, ok, code, msg := s.research.Start(def, guildID, currentTick)
	if !ok {
		return StartResult{Code: code, Reason: msg}
	}
	p := research.ProgressOf(def, inst)
	return StartResult{OK: true, Project: &p}
}

// resolve finds the instance an operation targets. An empty guild id means
// the single active instance of the project across all guilds.
func (s *State) resolve(projectID, guildID string) (catalogs.ProjectDef, *research.Instance, string, string) {
	def, ok := s.cats.Project(projectID)
	if !ok {
		return def, nil, protocol.ErrNotFound, "unknown project: " + projectID
	}
	if guildID == "" {
		inst, ok, code, msg := s.research.ResolveActive(projectID)
		if !ok {
			return def, nil, code, msg
		}
		return def, inst, "", ""
	}
	inst := s.research.Get(research.Key{ProjectID: projectID, GuildID: guildID})
	if inst == nil {
		return def, nil, protocol.ErrNotFound, "no research for project in guild"
	}
	return def, inst, "", ""
}

// ContributeToResearch adds to the one active run of the project. When
// several guilds run it at once the call fails with E_CONFLICT and the
// caller must use ContributeToGuildResearch.
func (s *State) ContributeToResearch(playerID, projectID string, amount int, relicID string) ContributeResult {
	return s.ContributeToGuildResearch(playerID, "", projectID, amount, relicID)
}

func (s *State) ContributeToGuildResearch(playerID, guildID, projectID string, amount int, relicID string) ContributeResult {
	if strings.TrimSpace(playerID) == "" {
		return ContributeResult{Code: protocol.ErrBadRequest, Reason: "missing player_id"}
	}
	if amount < 0 || (amount == 0 && relicID == "") {
		return ContributeResult{Code: protocol.ErrBadRequest, Reason: "amount must be > 0"}
	}
	if amount > research.MaxContribution {
		return ContributeResult{Code: protocol.ErrBadRequest, Reason: fmt.Sprintf("amount must be <= %d", research.MaxContribution)}
	}
	if relicID != "" {
		if _, ok := s.cats.Relic(relicID); !ok {
			return ContributeResult{Code: protocol.ErrNotFound, Reason: "unknown relic: " + relicID}
		}
		if !s.ledger.Get(playerID).Owns(relicID) {
			return ContributeResult{Code: protocol.ErrPrecondition, Reason: "relic not in player archive"}
		}
	}
	def, inst, code, msg := s.resolve(projectID, guildID)
	if inst == nil {
		return ContributeResult{Code: code, Reason: msg}
	}
	if inst.Status != research.StatusActive {
		return ContributeResult{Code: protocol.ErrPrecondition, Reason: "research already completed"}
	}
	prog, done := research.Contribute(def, inst, playerID, amount, relicID)
	s.ledger.AddContribution(playerID, projectID, amount)
	return ContributeResult{OK: true, GuildID: inst.Key.GuildID, PhaseProgress: prog, PhaseComplete: done}
}

func (s *State) AdvanceResearchPhase(projectID string) AdvanceResult {
	return s.AdvanceGuildResearchPhase("", projectID)
}

func (s *State) AdvanceGuildResearchPhase(guildID, projectID string) AdvanceResult {
	def, inst, code, msg := s.resolve(projectID, guildID)
	if inst == nil {
		return AdvanceResult{Code: code, Reason: msg}
	}
	phase, ok, code, msg := research.Advance(def, inst)
	if !ok {
		return AdvanceResult{Code: code, Reason: msg, NewPhase: phase}
	}
	return AdvanceResult{OK: true, NewPhase: phase}
}

// CompleteResearch closes the run and returns the template's reward for the
// caller to apply.
func (s *State) CompleteResearch(projectID string) CompleteResult {
	return s.CompleteGuildResearch("", projectID)
}

func (s *State) CompleteGuildResearch(guildID, projectID string) CompleteResult {
	def, inst, code, msg := s.resolve(projectID, guildID)
	if inst == nil {
		return CompleteResult{Code: code, Reason: msg}
	}
	lore, ok, code, msg := research.Complete(def, inst, s.now)
	if !ok {
		return CompleteResult{Code: code, Reason: msg}
	}
	return CompleteResult{OK: true, Reward: def.Reward, LoreCreated: lore}
}

// GetResearchProgress returns nil when the project was never started or is
// active in more than one guild.
func (s *State) GetResearchProgress(projectID string) *research.Progress {
	def, ok := s.cats.Project(projectID)
	if !ok {
		return nil
	}
	inst := s.research.Lookup(projectID)
	if inst == nil {
		return nil
	}
	p := research.ProgressOf(def, inst)
	return &p
}

func (s *State) GetGuildResearchProgress(guildID, projectID string) *research.Progress {
	def, ok := s.cats.Project(projectID)
	if !ok {
		return nil
	}
	inst := s.research.Get(research.Key{ProjectID: projectID, GuildID: guildID})
	if inst == nil {
		return nil
	}
	p := research.ProgressOf(def, inst)
	return &p
}

func (s *State) GetActiveResearch(guildID string) []research.Progress {
	active := s.research.Active(guildID)
	out := make([]research.Progress, 0, len(active))
	for _, inst := range active {
		def, ok := s.cats.Project(inst.Key.ProjectID)
		if !ok {
			continue
		}
		out = append(out, research.ProgressOf(def, inst))
	}
	return out
}

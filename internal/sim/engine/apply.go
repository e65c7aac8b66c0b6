package engine

import (
	"fmt"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/rng"
	"archivum.ai/internal/sim/catalogs"
)

// DigSeed derives the seed for the i-th action of a tick.
func DigSeed(base int64, tick uint64, index int) int64 {
	return rng.Derive(base, tick, uint64(index))
}

func (e *Engine) apply(act protocol.ActMsg, nowTick uint64) protocol.ResultMsg {
	player := act.PlayerID
	fail := func(code, msg string) protocol.ResultMsg {
		return protocol.NewResult(nowTick, act, false, code, msg, nil)
	}
	if act.ProtocolVersion != "" && act.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoBadRequest, "unsupported protocol_version")
	}

	switch act.Op {
	case protocol.OpExcavate:
		res := e.state.Excavate(player, act.SiteID, act.Seed, nowTick)
		if res.OK {
			detail := "no find"
			if res.Relic != nil {
				detail = res.Relic.ID
			}
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.SiteID, Detail: detail})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpDiscoverRelic:
		// Excavation relics only come out of EXCAVATE rolls.
		if def, ok := e.state.Catalogs().Relic(act.RelicID); ok && def.DiscoveryMethod == catalogs.MethodExcavation {
			return fail(protocol.ErrPrecondition, "relic is only found by excavation")
		}
		res := e.state.DiscoverRelic(player, act.RelicID)
		if res.OK && !res.AlreadyOwned {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.RelicID})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpStartResearch:
		res := e.state.StartResearchProject(act.GuildID, act.ProjectID, nowTick)
		if res.OK {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.ProjectID, Detail: "guild=" + act.GuildID})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpContributeResearch:
		res := e.state.ContributeToGuildResearch(player, act.GuildID, act.ProjectID, act.Amount, act.RelicID)
		if res.OK {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.ProjectID,
				Detail: fmt.Sprintf("guild=%s amount=%d relic=%s", res.GuildID, act.Amount, act.RelicID)})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpAdvanceResearch:
		res := e.state.AdvanceGuildResearchPhase(act.GuildID, act.ProjectID)
		if res.OK {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.ProjectID, Detail: fmt.Sprintf("phase=%d", res.NewPhase)})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpCompleteResearch:
		res := e.state.CompleteGuildResearch(act.GuildID, act.ProjectID)
		if res.OK {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.ProjectID, Detail: res.LoreCreated})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpProposeAmendment:
		res := e.state.ProposeAmendment(player, act.LoreID, act.NewText, act.Reason, nowTick)
		if res.OK {
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: res.Amendment.ID, Detail: act.LoreID})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	case protocol.OpVoteAmendment:
		res := e.state.VoteOnAmendment(player, act.AmendmentID, act.VoteYes, act.TotalVoters)
		if res.OK {
			detail := "pending"
			if res.Approved != nil {
				detail = "approved"
				if !*res.Approved {
					detail = "rejected"
				}
			}
			e.audit(AuditEntry{Tick: nowTick, Actor: player, Action: act.Op, Target: act.AmendmentID, Detail: detail})
		}
		return protocol.NewResult(nowTick, act, res.OK, res.Code, res.Reason, res)

	default:
		if protocol.IsQuery(act.Op) {
			return e.answer(QueryRequest{PlayerID: player, Act: act})
		}
		return fail(protocol.ErrProtoBadRequest, "unknown op: "+act.Op)
	}
}

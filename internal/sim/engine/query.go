package engine

import (
	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/amendments"
)

// answer serves read-only ops. Queries may name another player; they
// default to the caller.
func (e *Engine) answer(q QueryRequest) protocol.ResultMsg {
	act := q.Act
	tick := e.tick.Load()
	player := act.PlayerID
	if player == "" {
		player = q.PlayerID
	}
	ok := func(data any) protocol.ResultMsg {
		return protocol.NewResult(tick, act, true, "", "", data)
	}
	notFound := func(msg string) protocol.ResultMsg {
		return protocol.NewResult(tick, act, false, protocol.ErrNotFound, msg, nil)
	}

	switch act.Op {
	case protocol.OpSiteStatus:
		st := e.state.GetSiteStatus(act.SiteID, tick)
		if st == nil {
			return notFound("unknown site: " + act.SiteID)
		}
		return ok(st)
	case protocol.OpPlayerRelics:
		return ok(e.state.GetPlayerRelics(player))
	case protocol.OpRelicCollection:
		return ok(e.state.GetRelicCollection(player))
	case protocol.OpResearchProgress:
		if act.GuildID != "" {
			if p := e.state.GetGuildResearchProgress(act.GuildID, act.ProjectID); p != nil {
				return ok(p)
			}
			return notFound("no research for project in guild")
		}
		if p := e.state.GetResearchProgress(act.ProjectID); p != nil {
			return ok(p)
		}
		return notFound("no research for project")
	case protocol.OpActiveResearch:
		return ok(e.state.GetActiveResearch(act.GuildID))
	case protocol.OpAmendments:
		var status amendments.Status
		if act.Status != "" {
			st, valid := amendments.ParseStatus(act.Status)
			if !valid {
				return protocol.NewResult(tick, act, false, protocol.ErrBadRequest, "unknown status: "+act.Status, nil)
			}
			status = st
		}
		return ok(e.state.GetAmendments(status))
	case protocol.OpArchivistRank:
		return ok(e.state.GetArchivistRank(player))
	case protocol.OpLeaderboard:
		return ok(e.state.GetArchivalLeaderboard(act.Limit))
	default:
		return protocol.NewResult(tick, act, false, protocol.ErrProtoBadRequest, "not a query: "+act.Op, nil)
	}
}

package research

import (
	"math"
	"sort"

	"archivum.ai/internal/protocol"
	"archivum.ai/internal/sim/archive/ledger"
	"archivum.ai/internal/sim/catalogs"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Key identifies one guild's run of one project.
type Key struct {
	ProjectID string
	GuildID   string
}

type PhaseState struct {
	Current           int
	Complete          bool
	RelicsContributed map[string]bool
}

type Instance struct {
	Key          Key
	Status       Status
	CurrentPhase int
	Phases       []PhaseState
	StartedAt    uint64
	CompletedAt  uint64
	Contributors map[string]int
}

func newInstance(def catalogs.ProjectDef, guildID string, now uint64) *Instance {
	phases := make([]PhaseState, len(def.Phases))
	for i := range phases {
		phases[i].RelicsContributed = map[string]bool{}
	}
	return &Instance{
		Key:          Key{ProjectID: def.ID, GuildID: guildID},
		Status:       StatusActive,
		Phases:       phases,
		StartedAt:    now,
		Contributors: map[string]int{},
	}
}

// Coordinator owns every research instance. Completed instances stay
// addressable; a repeatable project restarted by the same guild moves the
// previous run into History.
type Coordinator struct {
	instances map[Key]*Instance
	History   []*Instance
}

func NewCoordinator() *Coordinator {
	return &Coordinator{instances: map[Key]*Instance{}}
}

func (c *Coordinator) Get(k Key) *Instance {
	return c.instances[k]
}

// Put installs a restored instance.
func (c *Coordinator) Put(inst *Instance) {
	if inst == nil {
		return
	}
	c.instances[inst.Key] = inst
}

// Keys returns every instance key sorted by project then guild.
func (c *Coordinator) Keys() []Key {
	keys := make([]Key, 0, len(c.instances))
	for k := range c.instances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		return keys[i].GuildID < keys[j].GuildID
	})
	return keys
}

func (c *Coordinator) Start(def catalogs.ProjectDef, guildID string, now uint64) (inst *Instance, ok bool, code string, msg string) {
	k := Key{ProjectID: def.ID, GuildID: guildID}
	if prev := c.instances[k]; prev != nil {
		if prev.Status == StatusActive {
			return nil, false, protocol.ErrPrecondition, "guild already has this project active"
		}
		if !def.Repeatable {
			return nil, false, protocol.ErrPrecondition, "guild already completed this project"
		}
		c.History = append(c.History, prev)
	}
	inst = newInstance(def, guildID, now)
	c.instances[k] = inst
	return inst, true, "", ""
}

// Active returns the guild's active instances ordered by project id.
func (c *Coordinator) Active(guildID string) []*Instance {
	var out []*Instance
	for _, k := range c.Keys() {
		inst := c.instances[k]
		if k.GuildID == guildID && inst.Status == StatusActive {
			out = append(out, inst)
		}
	}
	return out
}

// ResolveActive finds the single active instance of a project across all
// guilds. More than one active guild is a conflict: the caller must name
// the guild.
func (c *Coordinator) ResolveActive(projectID string) (inst *Instance, ok bool, code string, msg string) {
	var active []*Instance
	var completed bool
	for _, k := range c.Keys() {
		if k.ProjectID != projectID {
			continue
		}
		cur := c.instances[k]
		if cur.Status == StatusActive {
			active = append(active, cur)
		} else {
			completed = true
		}
	}
	switch {
	case len(active) == 1:
		return active[0], true, "", ""
	case len(active) > 1:
		return nil, false, protocol.ErrConflict, "project active in several guilds; guild id required"
	case completed:
		return nil, false, protocol.ErrPrecondition, "research already completed"
	default:
		return nil, false, protocol.ErrNotFound, "no active research for project"
	}
}

// Lookup is the read-side resolution: the single active instance if there
// is one, otherwise the most recently started run of the project. It
// returns nil when nothing was started or several guilds are active.
func (c *Coordinator) Lookup(projectID string) *Instance {
	var active, latest *Instance
	n := 0
	for _, k := range c.Keys() {
		if k.ProjectID != projectID {
			continue
		}
		cur := c.instances[k]
		if cur.Status == StatusActive {
			active = cur
			n++
		}
		if latest == nil || cur.StartedAt > latest.StartedAt {
			latest = cur
		}
	}
	if n > 1 {
		return nil
	}
	if active != nil {
		return active
	}
	return latest
}

func phaseComplete(ph catalogs.PhaseDef, st PhaseState) bool {
	if st.Current < ph.ContributionGoal {
		return false
	}
	for _, rid := range ph.RelicsRequired {
		if !st.RelicsContributed[rid] {
			return false
		}
	}
	return true
}

func requires(ph catalogs.PhaseDef, relicID string) bool {
	for _, rid := range ph.RelicsRequired {
		if rid == relicID {
			return true
		}
	}
	return false
}

type PhaseProgress struct {
	Current int `json:"current"`
	Target  int `json:"target"`
	Percent int `json:"percent"`
}

func progressOf(ph catalogs.PhaseDef, st PhaseState) PhaseProgress {
	pct := 100
	if ph.ContributionGoal > 0 && st.Current < ph.ContributionGoal {
		pct = st.Current * 100 / ph.ContributionGoal
	}
	return PhaseProgress{Current: st.Current, Target: ph.ContributionGoal, Percent: pct}
}

// MaxContribution bounds a single contribution amount.
const MaxContribution = math.MaxInt32

// Contribute adds to the current phase. The caller validates amount and
// relic id; relics not required by the current phase are ignored.
func Contribute(def catalogs.ProjectDef, inst *Instance, playerID string, amount int, relicID string) (PhaseProgress, bool) {
	ph := def.Phases[inst.CurrentPhase]
	st := &inst.Phases[inst.CurrentPhase]
	if amount > 0 {
		st.Current = ledger.AddSat(st.Current, amount)
		inst.Contributors[playerID] = ledger.AddSat(inst.Contributors[playerID], amount)
	}
	if relicID != "" && requires(ph, relicID) {
		st.RelicsContributed[relicID] = true
	}
	st.Complete = phaseComplete(ph, *st)
	return progressOf(ph, *st), st.Complete
}

func Advance(def catalogs.ProjectDef, inst *Instance) (newPhase int, ok bool, code string, msg string) {
	if inst.Status != StatusActive {
		return inst.CurrentPhase, false, protocol.ErrPrecondition, "research already completed"
	}
	if !inst.Phases[inst.CurrentPhase].Complete {
		return inst.CurrentPhase, false, protocol.ErrPrecondition, "current phase incomplete"
	}
	if inst.CurrentPhase >= len(def.Phases)-1 {
		return inst.CurrentPhase, false, protocol.ErrPrecondition, "final phase complete; complete the research instead"
	}
	inst.CurrentPhase++
	inst.Phases[inst.CurrentPhase] = PhaseState{RelicsContributed: map[string]bool{}}
	return inst.CurrentPhase, true, "", ""
}

// LoreID names the lore entry a completed project creates.
func LoreID(projectID string) string {
	return projectID + "_full_legacy"
}

func Complete(def catalogs.ProjectDef, inst *Instance, now uint64) (loreID string, ok bool, code string, msg string) {
	if inst.Status == StatusCompleted {
		return "", false, protocol.ErrPrecondition, "research already completed"
	}
	for i := range def.Phases {
		if !inst.Phases[i].Complete {
			return "", false, protocol.ErrPrecondition, "not every phase is complete"
		}
	}
	inst.Status = StatusCompleted
	inst.CompletedAt = now
	return LoreID(def.ID), true, "", ""
}

type Progress struct {
	ProjectID    string          `json:"project_id"`
	GuildID      string          `json:"guild_id"`
	Status       Status          `json:"status"`
	CurrentPhase int             `json:"current_phase"`
	Phases       []PhaseProgress `json:"phases"`
	Contributors map[string]int  `json:"contributors"`
}

func ProgressOf(def catalogs.ProjectDef, inst *Instance) Progress {
	out := Progress{
		ProjectID:    inst.Key.ProjectID,
		GuildID:      inst.Key.GuildID,
		Status:       inst.Status,
		CurrentPhase: inst.CurrentPhase,
		Phases:       make([]PhaseProgress, len(def.Phases)),
		Contributors: make(map[string]int, len(inst.Contributors)),
	}
	for i, ph := range def.Phases {
		out.Phases[i] = progressOf(ph, inst.Phases[i])
	}
	for id, v := range inst.Contributors {
		out.Contributors[id] = v
	}
	return out
}

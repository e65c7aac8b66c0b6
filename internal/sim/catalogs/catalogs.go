package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Rarities in ascending order.
var Rarities = []string{"common", "uncommon", "rare", "epic", "legendary"}

var Zones = []string{"nexus", "gardens", "athenaeum", "studio", "wilds", "agora", "commons", "arena"}

var DiscoveryMethods = []string{MethodExcavation, "exploration", "quest", "trade", "raid"}

const MethodExcavation = "excavation"

type Catalogs struct {
	Relics   RelicCatalog
	Sites    SiteCatalog
	Projects ProjectCatalog
	Ranks    RankCatalog
}

type RelicCatalog struct {
	IDs    []string
	ByID   map[string]RelicDef
	Digest string
}

type RelicDef struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Rarity          string   `json:"rarity"`
	Zone            string   `json:"zone"`
	DiscoveryMethod string   `json:"discovery_method"`
	LoreChain       []string `json:"lore_chain"`
	XPReward        int      `json:"xp_reward"`
	SparkReward     int      `json:"spark_reward"`
}

type SiteCatalog struct {
	IDs    []string
	ByID   map[string]SiteDef
	Digest string
}

type SiteDef struct {
	ID           string   `json:"id"`
	Zone         string   `json:"zone"`
	Difficulty   int      `json:"difficulty"`
	RelicPool    []string `json:"relic_pool"`
	DigTime      int      `json:"dig_time,omitempty"`
	MaxDigs      int      `json:"max_digs"`
	RespawnTime  uint64   `json:"respawn_time"`
	RequiredTool string   `json:"required_tool,omitempty"`
}

type ProjectCatalog struct {
	IDs    []string
	ByID   map[string]ProjectDef
	Digest string
}

type ProjectDef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Phases      []PhaseDef `json:"phases"`
	Reward      Reward     `json:"reward"`
	Duration    uint64     `json:"duration,omitempty"`

	// Repeatable projects may be started again by a guild after completion.
	Repeatable bool `json:"repeatable,omitempty"`
}

type PhaseDef struct {
	Name             string   `json:"name"`
	ContributionGoal int      `json:"contribution_goal"`
	RelicsRequired   []string `json:"relics_required,omitempty"`
}

type Reward struct {
	Spark int `json:"spark"`
	XP    int `json:"xp"`
}

type RankCatalog struct {
	Tiers  []RankTier
	Digest string
}

type RankTier struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	MinScore int    `json:"min_score"`
}

// Raw holds the undecoded catalog documents.
type Raw struct {
	Relics   []byte
	Sites    []byte
	Projects []byte
	Ranks    []byte
}

func Load(configDir string) (*Catalogs, error) {
	var raw Raw
	files := []struct {
		name string
		dst  *[]byte
	}{
		{"relics.json", &raw.Relics},
		{"sites.json", &raw.Sites},
		{"research_projects.json", &raw.Projects},
		{"archivist_ranks.json", &raw.Ranks},
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(configDir, f.name))
		if err != nil {
			return nil, err
		}
		*f.dst = b
	}
	return Parse(raw)
}

// Parse validates and indexes the catalog documents. Cross references
// (site pools and phase requirements) must name known relics.
func Parse(raw Raw) (*Catalogs, error) {
	var c Catalogs
	if err := loadRelics(raw.Relics, &c.Relics); err != nil {
		return nil, err
	}
	if err := loadSites(raw.Sites, c.Relics, &c.Sites); err != nil {
		return nil, err
	}
	if err := loadProjects(raw.Projects, c.Relics, &c.Projects); err != nil {
		return nil, err
	}
	if err := loadRanks(raw.Ranks, &c.Ranks); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) Relic(id string) (RelicDef, bool) {
	if c == nil {
		return RelicDef{}, false
	}
	d, ok := c.Relics.ByID[id]
	return d, ok
}

func (c *Catalogs) Site(id string) (SiteDef, bool) {
	if c == nil {
		return SiteDef{}, false
	}
	d, ok := c.Sites.ByID[id]
	return d, ok
}

func (c *Catalogs) Project(id string) (ProjectDef, bool) {
	if c == nil {
		return ProjectDef{}, false
	}
	d, ok := c.Projects.ByID[id]
	return d, ok
}

func RarityIndex(r string) int {
	for i, v := range Rarities {
		if v == r {
			return i
		}
	}
	return -1
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validateSchema(name string, raw []byte) error {
	b, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return err
	}
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s, err := comp.Compile(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

func loadRelics(raw []byte, out *RelicCatalog) error {
	if err := validateSchema("relics.schema.json", raw); err != nil {
		return fmt.Errorf("relics.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []RelicDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("relics.json: %w", err)
	}
	out.ByID = make(map[string]RelicDef, len(defs))
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("relics.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	out.IDs = sortedKeys(out.ByID)
	return nil
}

func loadSites(raw []byte, relics RelicCatalog, out *SiteCatalog) error {
	if err := validateSchema("sites.schema.json", raw); err != nil {
		return fmt.Errorf("sites.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []SiteDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("sites.json: %w", err)
	}
	out.ByID = make(map[string]SiteDef, len(defs))
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("sites.json: duplicate id %q", d.ID)
		}
		seen := map[string]bool{}
		for _, rid := range d.RelicPool {
			if _, ok := relics.ByID[rid]; !ok {
				return fmt.Errorf("sites.json: %s: unknown relic %q in pool", d.ID, rid)
			}
			if seen[rid] {
				return fmt.Errorf("sites.json: %s: duplicate relic %q in pool", d.ID, rid)
			}
			seen[rid] = true
		}
		out.ByID[d.ID] = d
	}
	out.IDs = sortedKeys(out.ByID)
	return nil
}

func loadProjects(raw []byte, relics RelicCatalog, out *ProjectCatalog) error {
	if err := validateSchema("research_projects.schema.json", raw); err != nil {
		return fmt.Errorf("research_projects.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []ProjectDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("research_projects.json: %w", err)
	}
	out.ByID = make(map[string]ProjectDef, len(defs))
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("research_projects.json: duplicate id %q", d.ID)
		}
		for i, ph := range d.Phases {
			for _, rid := range ph.RelicsRequired {
				if _, ok := relics.ByID[rid]; !ok {
					return fmt.Errorf("research_projects.json: %s phase %d: unknown relic %q", d.ID, i, rid)
				}
			}
		}
		out.ByID[d.ID] = d
	}
	out.IDs = sortedKeys(out.ByID)
	return nil
}

func loadRanks(raw []byte, out *RankCatalog) error {
	if err := validateSchema("archivist_ranks.schema.json", raw); err != nil {
		return fmt.Errorf("archivist_ranks.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var tiers []RankTier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return fmt.Errorf("archivist_ranks.json: %w", err)
	}
	if tiers[0].MinScore != 0 {
		return fmt.Errorf("archivist_ranks.json: first tier must start at 0")
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinScore <= tiers[i-1].MinScore {
			return fmt.Errorf("archivist_ranks.json: min_score must increase (%s)", tiers[i].ID)
		}
	}
	out.Tiers = tiers
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

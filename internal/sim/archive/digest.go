package archive

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"archivum.ai/internal/sim/archive/research"
)

type hashWriter interface {
	Write([]byte) (int, error)
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeInt(h hashWriter, tmp *[8]byte, v int) { writeU64(h, tmp, uint64(int64(v))) }

// writeStr is length-prefixed so adjacent fields cannot alias.
func writeStr(h hashWriter, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func sortedIntKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Digest hashes every piece of mutable state in a fixed order. Equal states
// built from the same catalogs produce equal digests.
func (s *State) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, s.now)

	for _, id := range s.ledger.PlayerIDs() {
		p := s.ledger.Get(id)
		writeStr(h, &tmp, id)
		relics := p.RelicIDs()
		writeInt(h, &tmp, len(relics))
		for _, r := range relics {
			writeStr(h, &tmp, r)
		}
		writeInt(h, &tmp, p.CompletedExcavations)
		for _, k := range sortedIntKeys(p.ResearchContributions) {
			writeStr(h, &tmp, k)
			writeInt(h, &tmp, p.ResearchContributions[k])
		}
		writeInt(h, &tmp, len(p.ProposedAmendments))
		for _, a := range p.ProposedAmendments {
			writeStr(h, &tmp, a)
		}
	}

	siteIDs := make([]string, 0, len(s.sites))
	for id := range s.sites {
		siteIDs = append(siteIDs, id)
	}
	sort.Strings(siteIDs)
	for _, id := range siteIDs {
		st := s.sites[id]
		writeStr(h, &tmp, id)
		writeInt(h, &tmp, st.DigsUsed)
		h.Write([]byte{boolByte(st.Depleted)})
		writeU64(h, &tmp, st.DepletedAt)
	}

	for _, k := range s.research.Keys() {
		writeInstance(h, &tmp, s.research.Get(k))
	}
	writeInt(h, &tmp, len(s.research.History))
	for _, inst := range s.research.History {
		writeInstance(h, &tmp, inst)
	}

	writeU64(h, &tmp, s.board.NextSeq())
	for _, a := range s.board.List("") {
		writeStr(h, &tmp, a.ID)
		writeStr(h, &tmp, a.LoreID)
		writeStr(h, &tmp, a.ProposerID)
		writeStr(h, &tmp, a.NewText)
		writeStr(h, &tmp, a.Reason)
		writeInt(h, &tmp, a.Yes)
		writeInt(h, &tmp, a.No)
		for _, v := range a.Voters() {
			writeStr(h, &tmp, v)
			h.Write([]byte{boolByte(a.Ballots[v])})
		}
		writeStr(h, &tmp, string(a.Status))
		writeU64(h, &tmp, a.CreatedAt)
		writeU64(h, &tmp, a.ResolvedAt)
		writeStr(h, &tmp, a.Resolution)
		writeInt(h, &tmp, a.Electorate)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeInstance(h hashWriter, tmp *[8]byte, inst *research.Instance) {
	writeStr(h, tmp, inst.Key.ProjectID)
	writeStr(h, tmp, inst.Key.GuildID)
	writeStr(h, tmp, string(inst.Status))
	writeInt(h, tmp, inst.CurrentPhase)
	writeU64(h, tmp, inst.StartedAt)
	writeU64(h, tmp, inst.CompletedAt)
	for _, ph := range inst.Phases {
		writeInt(h, tmp, ph.Current)
		h.Write([]byte{boolByte(ph.Complete)})
		relics := make([]string, 0, len(ph.RelicsContributed))
		for r, ok := range ph.RelicsContributed {
			if ok {
				relics = append(relics, r)
			}
		}
		sort.Strings(relics)
		writeInt(h, tmp, len(relics))
		for _, r := range relics {
			writeStr(h, tmp, r)
		}
	}
	for _, id := range sortedIntKeys(inst.Contributors) {
		writeStr(h, tmp, id)
		writeInt(h, tmp, inst.Contributors[id])
	}
}

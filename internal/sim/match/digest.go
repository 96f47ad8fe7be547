package match

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"zonewars.gg/internal/sim/zone"
)

// stateDigest hashes everything that replay must reproduce. Iteration is in
// ascending id order throughout.
func (m *Match) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, nowTick)
	writeU64(h, &tmp, m.graph.Commits())

	n := m.graph.NumZones()
	writeU64(h, &tmp, uint64(n))
	for i := 0; i < n; i++ {
		id := zone.ZoneID(i)
		writeU64(h, &tmp, uint64(int64(m.graph.CommittedOwner(id).Wire())))
		writeBool(h, m.graph.IsDark(id))
		occ := m.graph.Occupants(id)
		writeU64(h, &tmp, uint64(len(occ)))
		for _, o := range occ {
			writeU64(h, &tmp, uint64(o.Player))
			writeU64(h, &tmp, uint64(o.Team))
			writeBool(h, o.Dead)
		}
	}

	v := m.scores.view()
	writeU64(h, &tmp, uint64(len(v.Players)))
	for _, p := range v.Players {
		writeU64(h, &tmp, uint64(p.Player))
		writeU64(h, &tmp, uint64(p.Coins))
	}
	writeU64(h, &tmp, uint64(len(v.Teams)))
	for _, t := range v.Teams {
		writeU64(h, &tmp, uint64(t.Team))
		writeU64(h, &tmp, math.Float64bits(t.Points))
	}
	writeU64(h, &tmp, uint64(len(v.Achievements)))
	for _, a := range v.Achievements {
		writeU64(h, &tmp, uint64(a.Player))
		h.Write([]byte(a.Achievement))
		writeU64(h, &tmp, a.Tick)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeBool(h hash.Hash, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

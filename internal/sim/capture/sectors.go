package capture

import (
	"sort"

	"zonewars.gg/internal/sim/zone"
)

// OwnerFunc reports a zone's owner in the view being analysed.
type OwnerFunc func(id zone.ZoneID) zone.Owner

// Sector is a maximal set of same-team zones connected through same-team
// adjacency. Zones are ascending.
type Sector struct {
	Team  zone.TeamID   `json:"team"`
	Zones []zone.ZoneID `json:"zones"`
}

func (s Sector) Size() int { return len(s.Zones) }

// Sectors is the output of a flood fill. Sectors are numbered in discovery
// order, which is the order of their lowest zone id.
type Sectors struct {
	all      []Sector
	sectorOf []int32
	teams    []zone.TeamID
	byTeam   map[zone.TeamID][]int
}

// ConnectedSectors flood-fills every owned zone of the topology. Seeds are
// taken in ascending zone id and neighbours are expanded in adjacency order,
// so the result is reproducible.
func ConnectedSectors(top Topology, owner OwnerFunc) *Sectors {
	n := top.NumZones()
	s := &Sectors{
		sectorOf: make([]int32, n),
		byTeam:   map[zone.TeamID][]int{},
	}
	for i := range s.sectorOf {
		s.sectorOf[i] = -1
	}

	var queue []zone.ZoneID
	sizes := []int{}
	for seed := 0; seed < n; seed++ {
		id := zone.ZoneID(seed)
		if s.sectorOf[id] >= 0 {
			continue
		}
		team, owned := owner(id).Team()
		if !owned {
			continue
		}
		idx := int32(len(s.all))
		s.all = append(s.all, Sector{Team: team})
		if _, ok := s.byTeam[team]; !ok {
			s.teams = append(s.teams, team)
		}
		s.byTeam[team] = append(s.byTeam[team], int(idx))

		size := 0
		s.sectorOf[id] = idx
		queue = append(queue[:0], id)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for _, nb := range top.AdjacentZones(cur) {
				if s.sectorOf[nb] >= 0 || !owner(nb).IsTeam(team) {
					continue
				}
				s.sectorOf[nb] = idx
				queue = append(queue, nb)
			}
		}
		sizes = append(sizes, size)
	}

	for i := range s.all {
		s.all[i].Zones = make([]zone.ZoneID, 0, sizes[i])
	}
	for i, idx := range s.sectorOf {
		if idx >= 0 {
			s.all[idx].Zones = append(s.all[idx].Zones, zone.ZoneID(i))
		}
	}
	sort.Slice(s.teams, func(i, j int) bool { return s.teams[i] < s.teams[j] })
	return s
}

// Teams returns every team owning at least one zone, ascending.
func (s *Sectors) Teams() []zone.TeamID { return s.teams }

// ByTeam returns the team's sectors in discovery order.
func (s *Sectors) ByTeam(t zone.TeamID) []Sector {
	idxs := s.byTeam[t]
	out := make([]Sector, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.all[i])
	}
	return out
}

// SectorOf returns the discovery index of the sector containing id.
func (s *Sectors) SectorOf(id zone.ZoneID) (int, bool) {
	if id < 0 || int(id) >= len(s.sectorOf) || s.sectorOf[id] < 0 {
		return 0, false
	}
	return int(s.sectorOf[id]), true
}

// Goodness ranks a team's sectors when only one can be kept. Fields are
// compared in declaration order; larger is better.
type Goodness struct {
	Zones  int `json:"zones"`
	Living int `json:"living"`
	Dark   int `json:"dark"`
	Dead   int `json:"dead"`
}

// Better reports whether g ranks strictly above o.
func (g Goodness) Better(o Goodness) bool {
	if g.Zones != o.Zones {
		return g.Zones > o.Zones
	}
	if g.Living != o.Living {
		return g.Living > o.Living
	}
	if g.Dark != o.Dark {
		return g.Dark > o.Dark
	}
	return g.Dead > o.Dead
}

// Measure computes the sector's goodness against the graph's occupants and
// dark flags. Only players of the sector's team count.
func Measure(g Graph, s Sector) Goodness {
	out := Goodness{Zones: len(s.Zones)}
	for _, id := range s.Zones {
		if g.IsDark(id) {
			out.Dark++
		}
		for _, o := range g.Occupants(id) {
			if o.Team != s.Team {
				continue
			}
			if o.Dead {
				out.Dead++
			} else {
				out.Living++
			}
		}
	}
	return out
}

// Keeper returns the index of the sector to keep: the best by goodness, with
// ties going to the earliest sector.
func Keeper(g Graph, sectors []Sector) int {
	best := 0
	var bestScore Goodness
	for i, s := range sectors {
		score := Measure(g, s)
		if i == 0 || score.Better(bestScore) {
			best, bestScore = i, score
		}
	}
	return best
}

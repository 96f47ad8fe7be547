// Package zone holds the long-lived zone graph: an arena of zones addressed by
// dense id, with adjacency stored as sorted index lists.
package zone

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownZone   = errors.New("unknown zone")
	ErrUnknownPlayer = errors.New("unknown player")
)

// Occupant is a player physically located in a zone.
type Occupant struct {
	Player PlayerID `json:"player"`
	Team   TeamID   `json:"team"`
	Dead   bool     `json:"dead,omitempty"`
}

type Zone struct {
	ID        ZoneID
	Name      string
	Owner     Owner
	Dark      bool
	Adjacent  []ZoneID
	Occupants []Occupant
}

// OwnerChange is one entry of a committed resolution.
type OwnerChange struct {
	Zone  ZoneID `json:"zone"`
	Owner Owner  `json:"owner"`
}

type placement struct {
	team TeamID
	zone ZoneID
	dead bool
}

// Graph is not safe for concurrent use; the match loop owns it.
type Graph struct {
	zones   []Zone
	roster  map[PlayerID]placement
	commits uint64
}

// New builds a graph from zone definitions. Ids must be dense (0..n-1, any
// order). Adjacency is made symmetric, deduplicated and sorted.
func New(defs []Zone) (*Graph, error) {
	n := len(defs)
	zones := make([]Zone, n)
	seen := make([]bool, n)
	for _, d := range defs {
		if d.ID < 0 || int(d.ID) >= n {
			return nil, fmt.Errorf("zone id %d out of range [0,%d)", d.ID, n)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate zone id %d", d.ID)
		}
		seen[d.ID] = true
		zones[d.ID] = Zone{ID: d.ID, Name: d.Name, Owner: d.Owner, Dark: d.Dark}
	}

	adj := make([]map[ZoneID]struct{}, n)
	for i := range adj {
		adj[i] = map[ZoneID]struct{}{}
	}
	for _, d := range defs {
		for _, b := range d.Adjacent {
			if b < 0 || int(b) >= n {
				return nil, fmt.Errorf("zone %d: adjacent zone %d out of range", d.ID, b)
			}
			if b == d.ID {
				continue
			}
			adj[d.ID][b] = struct{}{}
			adj[b][d.ID] = struct{}{}
		}
	}
	for i := range zones {
		ids := make([]ZoneID, 0, len(adj[i]))
		for b := range adj[i] {
			ids = append(ids, b)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		zones[i].Adjacent = ids
	}

	g := &Graph{zones: zones, roster: map[PlayerID]placement{}}
	for _, d := range defs {
		for _, o := range d.Occupants {
			if err := g.PlacePlayer(o.Player, o.Team, d.ID, o.Dead); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (g *Graph) NumZones() int { return len(g.zones) }

func (g *Graph) valid(id ZoneID) bool { return id >= 0 && int(id) < len(g.zones) }

// Zone returns a copy of the zone's state.
func (g *Graph) Zone(id ZoneID) (Zone, bool) {
	if !g.valid(id) {
		return Zone{}, false
	}
	z := g.zones[id]
	z.Adjacent = append([]ZoneID(nil), z.Adjacent...)
	z.Occupants = append([]Occupant(nil), z.Occupants...)
	return z, true
}

func (g *Graph) CommittedOwner(id ZoneID) Owner {
	if !g.valid(id) {
		return Neutral()
	}
	return g.zones[id].Owner
}

// AdjacentZones returns the sorted neighbour list. Callers must not modify it.
func (g *Graph) AdjacentZones(id ZoneID) []ZoneID {
	if !g.valid(id) {
		return nil
	}
	return g.zones[id].Adjacent
}

func (g *Graph) IsDark(id ZoneID) bool {
	if !g.valid(id) {
		return false
	}
	return g.zones[id].Dark
}

// Occupants returns the zone's players sorted by id. Callers must not modify it.
func (g *Graph) Occupants(id ZoneID) []Occupant {
	if !g.valid(id) {
		return nil
	}
	return g.zones[id].Occupants
}

func (g *Graph) PlayerTeam(p PlayerID) (TeamID, bool) {
	pl, ok := g.roster[p]
	return pl.team, ok
}

func (g *Graph) SetDark(id ZoneID, dark bool) error {
	if !g.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	g.zones[id].Dark = dark
	return nil
}

// PlacePlayer moves (or adds) a player to a zone, updating team and alive state.
func (g *Graph) PlacePlayer(p PlayerID, team TeamID, id ZoneID, dead bool) error {
	if !g.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	if prev, ok := g.roster[p]; ok {
		g.removeOccupant(prev.zone, p)
	}
	g.roster[p] = placement{team: team, zone: id, dead: dead}

	occ := g.zones[id].Occupants
	i := sort.Search(len(occ), func(i int) bool { return occ[i].Player >= p })
	occ = append(occ, Occupant{})
	copy(occ[i+1:], occ[i:])
	occ[i] = Occupant{Player: p, Team: team, Dead: dead}
	g.zones[id].Occupants = occ
	return nil
}

func (g *Graph) RemovePlayer(p PlayerID) error {
	prev, ok := g.roster[p]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, p)
	}
	g.removeOccupant(prev.zone, p)
	delete(g.roster, p)
	return nil
}

func (g *Graph) removeOccupant(id ZoneID, p PlayerID) {
	occ := g.zones[id].Occupants
	for i := range occ {
		if occ[i].Player == p {
			g.zones[id].Occupants = append(occ[:i], occ[i+1:]...)
			return
		}
	}
}

// Players returns every rostered player in ascending id order.
func (g *Graph) Players() []PlayerID {
	out := make([]PlayerID, 0, len(g.roster))
	for p := range g.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Commit applies final owners from a resolution pass. The whole batch is
// validated before anything is written.
func (g *Graph) Commit(changes []OwnerChange) error {
	for _, c := range changes {
		if !g.valid(c.Zone) {
			return fmt.Errorf("commit: %w: %d", ErrUnknownZone, c.Zone)
		}
	}
	for _, c := range changes {
		g.zones[c.Zone].Owner = c.Owner
	}
	g.commits++
	return nil
}

// Commits counts applied resolution passes.
func (g *Graph) Commits() uint64 { return g.commits }

// Zones returns a deep copy of every zone, ascending id.
func (g *Graph) Zones() []Zone {
	out := make([]Zone, 0, len(g.zones))
	for i := range g.zones {
		z, _ := g.Zone(ZoneID(i))
		out = append(out, z)
	}
	return out
}

// OwnedBy returns the zones committed to team t, ascending id.
func (g *Graph) OwnedBy(t TeamID) []ZoneID {
	var out []ZoneID
	for i := range g.zones {
		if g.zones[i].Owner.IsTeam(t) {
			out = append(out, ZoneID(i))
		}
	}
	return out
}

// RestoreCommits sets the commit counter when resuming from a snapshot.
func (g *Graph) RestoreCommits(n uint64) { g.commits = n }

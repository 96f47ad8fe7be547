package main

import (
	"math/rand"
	"sort"

	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/zone"
)

// planner tracks zone ownership from TICK_EVENTS and picks the next zone to
// take: any zone the team does not own that borders its territory.
type planner struct {
	team   zone.TeamID
	owners map[zone.ZoneID]zone.Owner
	adj    map[zone.ZoneID][]zone.ZoneID
	ids    []zone.ZoneID
}

func newPlanner(l zone.Layout, team zone.TeamID) *planner {
	p := &planner{
		team:   team,
		owners: map[zone.ZoneID]zone.Owner{},
		adj:    map[zone.ZoneID][]zone.ZoneID{},
	}
	for _, lz := range l.Zones {
		id := zone.ZoneID(lz.ID)
		p.ids = append(p.ids, id)
		if lz.Owner != nil {
			p.owners[id] = zone.TeamOwner(zone.TeamID(*lz.Owner))
		} else {
			p.owners[id] = zone.Neutral()
		}
		for _, a := range lz.Adjacent {
			b := zone.ZoneID(a)
			p.adj[id] = append(p.adj[id], b)
			p.adj[b] = append(p.adj[b], id)
		}
	}
	sort.Slice(p.ids, func(i, j int) bool { return p.ids[i] < p.ids[j] })
	return p
}

func (p *planner) apply(events []protocol.Event) {
	for _, ev := range events {
		if ev["type"] != protocol.EventZoneOwnerChanged {
			continue
		}
		z, ok := ev["zone"].(float64)
		if !ok {
			continue
		}
		owner := zone.Neutral()
		if t, ok := ev["owner"].(float64); ok {
			owner = zone.TeamOwner(zone.TeamID(t))
		}
		p.owners[zone.ZoneID(z)] = owner
	}
}

// frontier lists unowned-by-team zones adjacent to the team's zones,
// ascending. With no territory left every other zone is a candidate.
func (p *planner) frontier() []zone.ZoneID {
	var owned, out []zone.ZoneID
	for _, id := range p.ids {
		if p.owners[id].IsTeam(p.team) {
			owned = append(owned, id)
		}
	}
	if len(owned) == 0 {
		return append(out, p.ids...)
	}
	seen := map[zone.ZoneID]bool{}
	for _, id := range owned {
		for _, nb := range p.adj[id] {
			if seen[nb] || p.owners[nb].IsTeam(p.team) {
				continue
			}
			seen[nb] = true
			out = append(out, nb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *planner) next(r *rand.Rand) (zone.ZoneID, bool) {
	f := p.frontier()
	if len(f) == 0 {
		return 0, false
	}
	return f[r.Intn(len(f))], true
}

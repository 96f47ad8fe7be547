package capture

import "zonewars.gg/internal/sim/zone"

// Topology is the part of the zone graph the sector analyzer needs.
type Topology interface {
	NumZones() int
	AdjacentZones(id zone.ZoneID) []zone.ZoneID
}

// Graph is the read-only view of the zone graph used during a pass.
// *zone.Graph satisfies it.
type Graph interface {
	Topology
	CommittedOwner(id zone.ZoneID) zone.Owner
	IsDark(id zone.ZoneID) bool
	Occupants(id zone.ZoneID) []zone.Occupant
	PlayerTeam(p zone.PlayerID) (zone.TeamID, bool)
}

// Committer receives the final owners of a pass.
type Committer interface {
	Commit(changes []zone.OwnerChange) error
}

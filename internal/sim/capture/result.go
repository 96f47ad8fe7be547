package capture

import (
	"encoding/json"
	"slices"

	"zonewars.gg/internal/sim/zone"
)

// ZoneOutcome is the final state of one zone touched by a pass.
type ZoneOutcome struct {
	Zone        zone.ZoneID `json:"zone"`
	Previous    zone.Owner  `json:"previous"`
	Owner       zone.Owner  `json:"owner"`
	Captured    bool        `json:"captured,omitempty"`
	Neutralised bool        `json:"neutralised,omitempty"`
	Coins       int64       `json:"coins,omitempty"`
	Points      float64     `json:"points,omitempty"`
}

// NeutralisedSector records a sector a team lost to fragmentation.
type NeutralisedSector struct {
	Team   zone.TeamID   `json:"team"`
	Zones  []zone.ZoneID `json:"zones"`
	Capped []zone.ZoneID `json:"capped,omitempty"`
}

// Result is the frozen outcome of one resolution pass. Accessors return
// copies; the result itself never changes after Finalize.
type Result struct {
	zones       []ZoneOutcome
	coins       []CoinAward
	points      []PointAward
	hooks       []NeutralisedHook
	neutralised []NeutralisedSector
}

func (r *Result) Empty() bool { return len(r.zones) == 0 }

// Zones returns every affected zone, ascending id.
func (r *Result) Zones() []ZoneOutcome { return slices.Clone(r.zones) }

func (r *Result) Coins() []CoinAward { return slices.Clone(r.coins) }

func (r *Result) Points() []PointAward { return slices.Clone(r.points) }

// Hooks returns sector-neutralised notifications, neutralised-sector order
// (team ascending, then discovery).
func (r *Result) Hooks() []NeutralisedHook { return slices.Clone(r.hooks) }

func (r *Result) Neutralised() []NeutralisedSector {
	out := make([]NeutralisedSector, len(r.neutralised))
	for i, s := range r.neutralised {
		out[i] = NeutralisedSector{Team: s.Team, Zones: slices.Clone(s.Zones), Capped: slices.Clone(s.Capped)}
	}
	return out
}

// OwnerChanges lists the final owner of every affected zone, ascending id.
func (r *Result) OwnerChanges() []zone.OwnerChange {
	out := make([]zone.OwnerChange, len(r.zones))
	for i, z := range r.zones {
		out[i] = zone.OwnerChange{Zone: z.Zone, Owner: z.Owner}
	}
	return out
}

// Record is the plain-data form of a Result, used for logs and replay.
type Record struct {
	Zones       []ZoneOutcome       `json:"zones,omitempty"`
	Coins       []CoinAward         `json:"coins,omitempty"`
	Points      []PointAward        `json:"points,omitempty"`
	Hooks       []NeutralisedHook   `json:"hooks,omitempty"`
	Neutralised []NeutralisedSector `json:"neutralised,omitempty"`
}

func (r *Result) Record() Record {
	return Record{
		Zones:       r.Zones(),
		Coins:       r.Coins(),
		Points:      r.Points(),
		Hooks:       r.Hooks(),
		Neutralised: r.Neutralised(),
	}
}

func (r *Result) MarshalJSON() ([]byte, error) { return json.Marshal(r.Record()) }

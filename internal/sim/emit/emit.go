// Package emit turns a finalized capture result into plain-data events for
// gameplay hooks and the wire.
package emit

import (
	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/zone"
)

type ZoneOwnerChanged struct {
	Zone     zone.ZoneID `json:"zone"`
	NewOwner zone.Owner  `json:"new_owner"`
}

type PlayerCoinsAwarded struct {
	Player zone.PlayerID `json:"player"`
	Amount int64         `json:"amount"`
}

type TeamPointsAwarded struct {
	Team   zone.TeamID `json:"team"`
	Amount float64     `json:"amount"`
}

type SectorNeutralisedHook struct {
	Player           zone.PlayerID `json:"player"`
	ZonesNeutralised int           `json:"zones_neutralised"`
}

type AchievementUnlocked struct {
	Player      zone.PlayerID `json:"player"`
	Achievement string        `json:"achievement"`
}

// Events is everything one pass produced, in emission order per kind.
type Events struct {
	OwnerChanges []ZoneOwnerChanged      `json:"owner_changes,omitempty"`
	Coins        []PlayerCoinsAwarded    `json:"coins,omitempty"`
	Points       []TeamPointsAwarded     `json:"points,omitempty"`
	Hooks        []SectorNeutralisedHook `json:"hooks,omitempty"`
	Achievements []AchievementUnlocked   `json:"achievements,omitempty"`
}

// FromResult converts a finalized result. A nil result yields no events.
func FromResult(res *capture.Result) Events {
	var ev Events
	if res == nil {
		return ev
	}
	for _, c := range res.OwnerChanges() {
		ev.OwnerChanges = append(ev.OwnerChanges, ZoneOwnerChanged{Zone: c.Zone, NewOwner: c.Owner})
	}
	for _, c := range res.Coins() {
		ev.Coins = append(ev.Coins, PlayerCoinsAwarded{Player: c.Player, Amount: c.Amount})
	}
	for _, p := range res.Points() {
		ev.Points = append(ev.Points, TeamPointsAwarded{Team: p.Team, Amount: p.Amount})
	}
	for _, h := range res.Hooks() {
		ev.Hooks = append(ev.Hooks, SectorNeutralisedHook{Player: h.Player, ZonesNeutralised: h.Zones})
	}
	return ev
}

func (e Events) Empty() bool {
	return len(e.OwnerChanges) == 0 && len(e.Coins) == 0 && len(e.Points) == 0 &&
		len(e.Hooks) == 0 && len(e.Achievements) == 0
}

// Protocol flattens the events into TICK_EVENTS entries: owner changes,
// coins, points, hooks, then achievements.
func (e Events) Protocol() []protocol.Event {
	out := make([]protocol.Event, 0, len(e.OwnerChanges)+len(e.Coins)+len(e.Points)+len(e.Hooks)+len(e.Achievements))
	for _, c := range e.OwnerChanges {
		var owner interface{}
		if t, ok := c.NewOwner.Team(); ok {
			owner = t
		}
		out = append(out, protocol.Event{"type": protocol.EventZoneOwnerChanged, "zone": c.Zone, "owner": owner})
	}
	for _, c := range e.Coins {
		out = append(out, protocol.Event{"type": protocol.EventPlayerCoinsAwarded, "player": c.Player, "amount": c.Amount})
	}
	for _, p := range e.Points {
		out = append(out, protocol.Event{"type": protocol.EventTeamPointsAwarded, "team": p.Team, "amount": p.Amount})
	}
	for _, h := range e.Hooks {
		out = append(out, protocol.Event{"type": protocol.EventSectorNeutralised, "player": h.Player, "zones_neutralised": h.ZonesNeutralised})
	}
	for _, a := range e.Achievements {
		out = append(out, protocol.Event{"type": protocol.EventAchievementUnlocked, "player": a.Player, "achievement": a.Achievement})
	}
	return out
}

package match

import (
	"sort"

	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/emit"
	"zonewars.gg/internal/sim/zone"
)

const AchievementNeutraliser = "NEUTRALISER"

// Scoreboard accumulates awards across ticks. Owned by the loop goroutine.
type Scoreboard struct {
	coins        map[zone.PlayerID]int64
	points       map[zone.TeamID]float64
	achievements map[achievementKey]uint64 // -> unlock tick
}

type achievementKey struct {
	player zone.PlayerID
	name   string
}

func newScoreboard() *Scoreboard {
	return &Scoreboard{
		coins:        map[zone.PlayerID]int64{},
		points:       map[zone.TeamID]float64{},
		achievements: map[achievementKey]uint64{},
	}
}

// apply adds a pass's awards in ascending id order.
func (s *Scoreboard) apply(res *capture.Result) {
	for _, c := range res.Coins() {
		s.coins[c.Player] += c.Amount
	}
	for _, p := range res.Points() {
		s.points[p.Team] += p.Amount
	}
}

// unlockNeutraliser grants the achievement to every hooked player whose
// single neutralisation reached threshold zones. A player unlocks it once.
func (s *Scoreboard) unlockNeutraliser(tick uint64, hooks []emit.SectorNeutralisedHook, threshold int) []emit.AchievementUnlocked {
	if threshold <= 0 {
		return nil
	}
	var out []emit.AchievementUnlocked
	for _, h := range hooks {
		if h.ZonesNeutralised < threshold {
			continue
		}
		k := achievementKey{player: h.Player, name: AchievementNeutraliser}
		if _, ok := s.achievements[k]; ok {
			continue
		}
		s.achievements[k] = tick
		out = append(out, emit.AchievementUnlocked{Player: h.Player, Achievement: AchievementNeutraliser})
	}
	return out
}

type PlayerScore struct {
	Player zone.PlayerID `json:"player"`
	Coins  int64         `json:"coins"`
}

type TeamScore struct {
	Team   zone.TeamID `json:"team"`
	Points float64     `json:"points"`
}

type Achievement struct {
	Player      zone.PlayerID `json:"player"`
	Achievement string        `json:"achievement"`
	Tick        uint64        `json:"tick"`
}

// ScoreboardView is a sorted copy of the scoreboard.
type ScoreboardView struct {
	Players      []PlayerScore `json:"players"`
	Teams        []TeamScore   `json:"teams"`
	Achievements []Achievement `json:"achievements,omitempty"`
}

func (s *Scoreboard) view() ScoreboardView {
	var v ScoreboardView
	for p, c := range s.coins {
		v.Players = append(v.Players, PlayerScore{Player: p, Coins: c})
	}
	sort.Slice(v.Players, func(i, j int) bool { return v.Players[i].Player < v.Players[j].Player })
	for t, p := range s.points {
		v.Teams = append(v.Teams, TeamScore{Team: t, Points: p})
	}
	sort.Slice(v.Teams, func(i, j int) bool { return v.Teams[i].Team < v.Teams[j].Team })
	for k, tick := range s.achievements {
		v.Achievements = append(v.Achievements, Achievement{Player: k.player, Achievement: k.name, Tick: tick})
	}
	sort.Slice(v.Achievements, func(i, j int) bool {
		a, b := v.Achievements[i], v.Achievements[j]
		if a.Player != b.Player {
			return a.Player < b.Player
		}
		return a.Achievement < b.Achievement
	})
	return v
}

func (s *Scoreboard) load(v ScoreboardView) {
	for _, p := range v.Players {
		s.coins[p.Player] = p.Coins
	}
	for _, t := range v.Teams {
		s.points[t.Team] = t.Points
	}
	for _, a := range v.Achievements {
		s.achievements[achievementKey{player: a.Player, name: a.Achievement}] = a.Tick
	}
}

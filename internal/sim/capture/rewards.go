package capture

import (
	"fmt"
	"sort"

	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

// CoinAward is a player's total coins for one pass.
type CoinAward struct {
	Player zone.PlayerID `json:"player"`
	Amount int64         `json:"amount"`
}

// PointAward is a team's total points for one pass. Points may be fractional.
type PointAward struct {
	Team   zone.TeamID `json:"team"`
	Amount float64     `json:"amount"`
}

// NeutralisedHook is one onNeutralisedSector notification for a tagger.
type NeutralisedHook struct {
	Player zone.PlayerID `json:"player"`
	Zones  int           `json:"zones"`
}

// CaptureReward is the allocator's view of one captured zone.
type CaptureReward struct {
	Zone      zone.ZoneID
	Previous  zone.Owner
	NewOwner  zone.Owner
	Tagger    *zone.PlayerID
	Assisters []zone.PlayerID

	// Team credited with the capture's points, when known.
	CreditTeam    zone.TeamID
	HasCreditTeam bool
}

// SectorLoss is a neutralised sector and the captures adjacent to it that
// caused the split. Capped zones are ascending.
type SectorLoss struct {
	Team   zone.TeamID
	Size   int
	Capped []zone.ZoneID
}

// ZoneReward is the total reward attached to one captured zone, base plus
// any fragmentation bonus.
type ZoneReward struct {
	Zone   zone.ZoneID
	Coins  int64
	Points float64
}

type Allocation struct {
	Zones  []ZoneReward
	Coins  []CoinAward
	Points []PointAward
	Hooks  []NeutralisedHook
}

// BaseReward is the per-capture reward before any fragmentation adjustment.
func BaseReward(prev, next zone.Owner, r tuning.Rewards) (coins int64, points float64) {
	switch {
	case next.IsNeutral():
		return r.CoinsPerZoneNeutralised, 1
	case prev.IsNeutral():
		return r.CoinsPerNeutralCap, 1
	default:
		return r.CoinsPerEnemyCap, 2
	}
}

// Allocate turns captures and sector losses into per-player coins and per-team
// points. It is a pure function; captures are processed in the order given
// and aggregated awards come out in ascending id order.
func Allocate(captures []CaptureReward, losses []SectorLoss, r tuning.Rewards) Allocation {
	zones := make([]ZoneReward, len(captures))
	byZone := make(map[zone.ZoneID]int, len(captures))
	for i, c := range captures {
		coins, points := BaseReward(c.Previous, c.NewOwner, r)
		zones[i] = ZoneReward{Zone: c.Zone, Coins: coins, Points: points}
		byZone[c.Zone] = i
	}

	var hooks []NeutralisedHook
	for _, loss := range losses {
		k := int64(len(loss.Capped))
		if k == 0 {
			continue
		}
		coinsPerZone := roundHalfUpDiv(int64(loss.Size)*r.CoinsPerZoneNeutralised, k)
		pointsPerZone := float64(loss.Size) / float64(k)
		for _, id := range loss.Capped {
			i, ok := byZone[id]
			if !ok {
				panic(fmt.Sprintf("capture: capped zone %d is not a capture", id))
			}
			zones[i].Coins += coinsPerZone
			zones[i].Points += pointsPerZone
			if t := captures[i].Tagger; t != nil {
				hooks = append(hooks, NeutralisedHook{Player: *t, Zones: loss.Size})
			}
		}
	}

	coins := map[zone.PlayerID]int64{}
	points := map[zone.TeamID]float64{}
	for i, c := range captures {
		amount := zones[i].Coins
		if c.Tagger != nil {
			coins[*c.Tagger] += amount
		}
		helpers := assisters(c.Tagger, c.Assisters)
		if len(helpers) > 0 {
			share := roundHalfUpDiv(amount*r.AssistFactorPermille, 1000*int64(len(helpers)))
			for _, p := range helpers {
				coins[p] += share
			}
		}
		if c.HasCreditTeam {
			points[c.CreditTeam] += zones[i].Points
		}
	}

	return Allocation{
		Zones:  zones,
		Coins:  sortedCoins(coins),
		Points: sortedPoints(points),
		Hooks:  hooks,
	}
}

// assisters drops the tagger and duplicates, keeping first-seen order.
func assisters(tagger *zone.PlayerID, in []zone.PlayerID) []zone.PlayerID {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[zone.PlayerID]struct{}, len(in))
	out := make([]zone.PlayerID, 0, len(in))
	for _, p := range in {
		if tagger != nil && p == *tagger {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortedCoins(m map[zone.PlayerID]int64) []CoinAward {
	out := make([]CoinAward, 0, len(m))
	for p, v := range m {
		if v != 0 {
			out = append(out, CoinAward{Player: p, Amount: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}

func sortedPoints(m map[zone.TeamID]float64) []PointAward {
	out := make([]PointAward, 0, len(m))
	for t, v := range m {
		if v != 0 {
			out = append(out, PointAward{Team: t, Amount: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out
}

// roundHalfUpDiv returns floor(num/den + 0.5) in exact integer arithmetic.
// Rewards are never negative; a negative input is a broken invariant.
func roundHalfUpDiv(num, den int64) int64 {
	if num < 0 || den <= 0 {
		panic(fmt.Sprintf("capture: round half up of %d/%d", num, den))
	}
	return (2*num + den) / (2 * den)
}

package capture

import (
	"testing"

	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

func testRewards() tuning.Rewards {
	return tuning.Rewards{
		CoinsPerZoneNeutralised: 10,
		CoinsPerNeutralCap:      20,
		CoinsPerEnemyCap:        30,
		AssistFactorPermille:    500,
	}
}

func pid(p zone.PlayerID) *zone.PlayerID { return &p }

func TestBaseReward(t *testing.T) {
	r := testRewards()
	cases := []struct {
		prev, next zone.Owner
		coins      int64
		points     float64
	}{
		{zone.TeamOwner(1), zone.Neutral(), 10, 1},
		{zone.Neutral(), zone.TeamOwner(2), 20, 1},
		{zone.TeamOwner(1), zone.TeamOwner(2), 30, 2},
	}
	for _, c := range cases {
		coins, points := BaseReward(c.prev, c.next, r)
		if coins != c.coins || points != c.points {
			t.Fatalf("%v->%v: got %d/%v want %d/%v", c.prev, c.next, coins, points, c.coins, c.points)
		}
	}
}

func TestRoundHalfUpDiv(t *testing.T) {
	cases := []struct{ num, den, want int64 }{
		{0, 3, 0},
		{5, 2, 3},
		{7, 2, 4},
		{10, 3, 3},
		{11, 3, 4},
		{1, 3, 0},
		{3, 2, 2},
	}
	for _, c := range cases {
		if got := roundHalfUpDiv(c.num, c.den); got != c.want {
			t.Fatalf("%d/%d: got %d want %d", c.num, c.den, got, c.want)
		}
	}
}

func TestRoundHalfUpDiv_PanicsOnNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	roundHalfUpDiv(-1, 2)
}

func TestAllocate_NeutralCapNoAssisters(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:          4,
		Previous:      zone.Neutral(),
		NewOwner:      zone.TeamOwner(1),
		Tagger:        pid(7),
		CreditTeam:    1,
		HasCreditTeam: true,
	}}, nil, testRewards())

	if len(a.Coins) != 1 || a.Coins[0] != (CoinAward{Player: 7, Amount: 20}) {
		t.Fatalf("coins: %+v", a.Coins)
	}
	if len(a.Points) != 1 || a.Points[0] != (PointAward{Team: 1, Amount: 1}) {
		t.Fatalf("points: %+v", a.Points)
	}
	if len(a.Hooks) != 0 {
		t.Fatalf("hooks: %+v", a.Hooks)
	}
}

func TestAllocate_AssistSplit(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:          2,
		Previous:      zone.TeamOwner(1),
		NewOwner:      zone.TeamOwner(2),
		Tagger:        pid(1),
		Assisters:     []zone.PlayerID{3, 2, 1, 3},
		CreditTeam:    2,
		HasCreditTeam: true,
	}}, nil, testRewards())

	want := []CoinAward{{Player: 1, Amount: 30}, {Player: 2, Amount: 8}, {Player: 3, Amount: 8}}
	if len(a.Coins) != len(want) {
		t.Fatalf("coins: %+v", a.Coins)
	}
	for i := range want {
		if a.Coins[i] != want[i] {
			t.Fatalf("coins[%d]: got %+v want %+v", i, a.Coins[i], want[i])
		}
	}
}

func TestAllocate_UnknownTaggerStillPaysAssisters(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:      0,
		Previous:  zone.Neutral(),
		NewOwner:  zone.TeamOwner(1),
		Assisters: []zone.PlayerID{5},
	}}, nil, testRewards())
	if len(a.Coins) != 1 || a.Coins[0] != (CoinAward{Player: 5, Amount: 10}) {
		t.Fatalf("coins: %+v", a.Coins)
	}
	if len(a.Points) != 0 {
		t.Fatalf("points credited without a team: %+v", a.Points)
	}
}

func TestAllocate_SectorLossBonusRoundingBound(t *testing.T) {
	for _, perZone := range []int64{1, 3, 7, 10, 13} {
		r := testRewards()
		r.CoinsPerZoneNeutralised = perZone
		for size := 1; size <= 9; size++ {
			for k := 1; k <= 6; k++ {
				caps := make([]CaptureReward, k)
				capped := make([]zone.ZoneID, k)
				for i := range caps {
					caps[i] = CaptureReward{
						Zone:     zone.ZoneID(100 + i),
						Previous: zone.TeamOwner(1),
						NewOwner: zone.TeamOwner(2),
						Tagger:   pid(zone.PlayerID(i + 1)),
					}
					capped[i] = caps[i].Zone
				}
				a := Allocate(caps, []SectorLoss{{Team: 1, Size: size, Capped: capped}}, r)

				var adj int64
				var pts float64
				for _, z := range a.Zones {
					adj += z.Coins - r.CoinsPerEnemyCap
					pts += z.Points - 2
				}
				want := int64(size) * perZone
				diff := adj - want
				if diff < 0 {
					diff = -diff
				}
				if diff > int64(k-1) {
					t.Fatalf("coins=%d size=%d k=%d: adjustments sum %d, want %d±%d", perZone, size, k, adj, want, k-1)
				}
				if d := pts - float64(size); d > 1e-9 || d < -1e-9 {
					t.Fatalf("size=%d k=%d: point adjustments sum %v", size, k, pts)
				}
				if len(a.Hooks) != k {
					t.Fatalf("hooks: got %d want %d", len(a.Hooks), k)
				}
				for _, h := range a.Hooks {
					if h.Zones != size {
						t.Fatalf("hook zones: %+v", h)
					}
				}
			}
		}
	}
}

func TestAllocate_NoCappedZonesNoBonus(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:     1,
		Previous: zone.Neutral(),
		NewOwner: zone.TeamOwner(2),
		Tagger:   pid(1),
	}}, []SectorLoss{{Team: 1, Size: 4}}, testRewards())
	if a.Zones[0].Coins != 20 || len(a.Hooks) != 0 {
		t.Fatalf("unexpected bonus: %+v hooks=%+v", a.Zones, a.Hooks)
	}
}

func TestAllocate_AssistShareIncludesSectorBonus(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:          3,
		Previous:      zone.TeamOwner(1),
		NewOwner:      zone.TeamOwner(2),
		Tagger:        pid(1),
		Assisters:     []zone.PlayerID{2},
		CreditTeam:    2,
		HasCreditTeam: true,
	}}, []SectorLoss{{Team: 1, Size: 1, Capped: []zone.ZoneID{3}}}, testRewards())

	if a.Zones[0].Coins != 40 {
		t.Fatalf("zone coins: got %d want 40", a.Zones[0].Coins)
	}
	want := []CoinAward{{Player: 1, Amount: 40}, {Player: 2, Amount: 20}}
	if len(a.Coins) != len(want) {
		t.Fatalf("coins: %+v", a.Coins)
	}
	for i := range want {
		if a.Coins[i] != want[i] {
			t.Fatalf("coins[%d]: got %+v want %+v", i, a.Coins[i], want[i])
		}
	}
}

func TestAllocate_UntaggedCappedZoneGetsBonusWithoutHook(t *testing.T) {
	a := Allocate([]CaptureReward{{
		Zone:      5,
		Previous:  zone.TeamOwner(1),
		NewOwner:  zone.TeamOwner(2),
		Assisters: []zone.PlayerID{4},
	}}, []SectorLoss{{Team: 1, Size: 2, Capped: []zone.ZoneID{5}}}, testRewards())

	if len(a.Hooks) != 0 {
		t.Fatalf("hooks without a tagger: %+v", a.Hooks)
	}
	if a.Zones[0].Coins != 50 || a.Zones[0].Points != 4 {
		t.Fatalf("zone reward: %+v", a.Zones[0])
	}
	if len(a.Coins) != 1 || a.Coins[0] != (CoinAward{Player: 4, Amount: 25}) {
		t.Fatalf("coins: %+v", a.Coins)
	}
}

package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"zonewars.gg/internal/sim/zone"
)

func TestResolver_LineSplitScenario(t *testing.T) {
	// A(0) - B(1) - C(2) - D(3), all team 1. Team 2 captures B.
	g := lineGraph(t, 4, zone.TeamOwner(1))
	_ = g.PlacePlayer(9, 2, 1, false)

	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(1, zone.TeamOwner(2), pid(9), nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ns := res.Neutralised()
	if len(ns) != 1 || ns[0].Team != 1 || len(ns[0].Zones) != 1 || ns[0].Zones[0] != 0 {
		t.Fatalf("neutralised: %+v", ns)
	}
	if len(ns[0].Capped) != 1 || ns[0].Capped[0] != 1 {
		t.Fatalf("capped: %+v", ns[0].Capped)
	}

	zones := res.Zones()
	if len(zones) != 2 {
		t.Fatalf("zones: %+v", zones)
	}
	if zones[0].Zone != 0 || !zones[0].Owner.IsNeutral() || !zones[0].Neutralised || zones[0].Captured {
		t.Fatalf("zone A: %+v", zones[0])
	}
	if zones[1].Zone != 1 || !zones[1].Owner.IsTeam(2) || !zones[1].Captured {
		t.Fatalf("zone B: %+v", zones[1])
	}

	// Base enemy capture (30) plus 1 * COINS_PER_ZONE_NEUTRALISED (10).
	coins := res.Coins()
	if len(coins) != 1 || coins[0] != (CoinAward{Player: 9, Amount: 40}) {
		t.Fatalf("coins: %+v", coins)
	}
	points := res.Points()
	if len(points) != 1 || points[0] != (PointAward{Team: 2, Amount: 3}) {
		t.Fatalf("points: %+v", points)
	}
	hooks := res.Hooks()
	if len(hooks) != 1 || hooks[0] != (NeutralisedHook{Player: 9, Zones: 1}) {
		t.Fatalf("hooks: %+v", hooks)
	}

	if err := r.Commit(g); err != nil {
		t.Fatalf("commit: %v", err)
	}
	want := []zone.Owner{zone.Neutral(), zone.TeamOwner(2), zone.TeamOwner(1), zone.TeamOwner(1)}
	for i, o := range want {
		if got := g.CommittedOwner(zone.ZoneID(i)); got != o {
			t.Fatalf("zone %d owner: got %v want %v", i, got, o)
		}
	}
}

func TestResolver_NeutralCaptureNoAssisters(t *testing.T) {
	g := lineGraph(t, 2, zone.Neutral())
	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(0, zone.TeamOwner(1), pid(4), nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	coins := res.Coins()
	if len(coins) != 1 || coins[0] != (CoinAward{Player: 4, Amount: 20}) {
		t.Fatalf("coins: %+v", coins)
	}
	points := res.Points()
	if len(points) != 1 || points[0] != (PointAward{Team: 1, Amount: 1}) {
		t.Fatalf("points: %+v", points)
	}
}

func TestResolver_AssistersSplitEnemyCapture(t *testing.T) {
	g := lineGraph(t, 2, zone.TeamOwner(1))
	r := NewResolver(g, testRewards())
	// Capturing the end of the line does not fragment team 1.
	if err := r.MarkZoneCaptured(1, zone.TeamOwner(2), pid(1), []zone.PlayerID{2, 3}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	want := []CoinAward{{Player: 1, Amount: 30}, {Player: 2, Amount: 8}, {Player: 3, Amount: 8}}
	coins := res.Coins()
	if len(coins) != len(want) {
		t.Fatalf("coins: %+v", coins)
	}
	for i := range want {
		if coins[i] != want[i] {
			t.Fatalf("coins[%d]: got %+v want %+v", i, coins[i], want[i])
		}
	}
}

func TestResolver_NeutralisingCaptureCreditsTaggerTeam(t *testing.T) {
	g := lineGraph(t, 2, zone.TeamOwner(1))
	_ = g.PlacePlayer(6, 3, 0, false)
	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(1, zone.Neutral(), pid(6), nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	points := res.Points()
	if len(points) != 1 || points[0] != (PointAward{Team: 3, Amount: 1}) {
		t.Fatalf("points: %+v", points)
	}
	coins := res.Coins()
	if len(coins) != 1 || coins[0].Amount != 10 {
		t.Fatalf("coins: %+v", coins)
	}
}

func TestResolver_FinalizeIdempotent(t *testing.T) {
	g := lineGraph(t, 4, zone.TeamOwner(1))
	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(1, zone.TeamOwner(2), pid(9), []zone.PlayerID{8}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	a, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	b, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize again: %v", err)
	}
	if a != b {
		t.Fatalf("Finalize returned a different result")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatalf("results differ:\n%s\n%s", ja, jb)
	}
	if err := r.Commit(g); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := r.Commit(g); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second commit: %v", err)
	}
	if g.Commits() != 1 {
		t.Fatalf("graph committed %d times", g.Commits())
	}
}

func TestResolver_ContractErrors(t *testing.T) {
	g := lineGraph(t, 3, zone.TeamOwner(1))

	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(0, zone.TeamOwner(2), nil, nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	err := r.MarkZoneCaptured(0, zone.Neutral(), nil, nil)
	if !errors.Is(err, ErrDuplicateCapture) {
		t.Fatalf("expected ErrDuplicateCapture, got %v", err)
	}
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.Zone != 0 {
		t.Fatalf("expected CaptureError for zone 0, got %v", err)
	}
	// The pass is aborted: later marks and Finalize report the same error.
	if err := r.MarkZoneCaptured(2, zone.TeamOwner(2), nil, nil); !errors.Is(err, ErrDuplicateCapture) {
		t.Fatalf("expected sticky error, got %v", err)
	}
	if res, err := r.Finalize(); res != nil || !errors.Is(err, ErrDuplicateCapture) {
		t.Fatalf("finalize after error: %v, %v", res, err)
	}

	r = NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(1, zone.TeamOwner(1), nil, nil); !errors.Is(err, ErrNoOpCapture) {
		t.Fatalf("expected ErrNoOpCapture, got %v", err)
	}

	r = NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(7, zone.TeamOwner(2), nil, nil); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("expected ErrUnknownZone, got %v", err)
	}

	r = NewResolver(g, testRewards())
	if _, err := r.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := r.MarkZoneCaptured(1, zone.TeamOwner(2), nil, nil); !errors.Is(err, ErrUseAfterFinalize) {
		t.Fatalf("expected ErrUseAfterFinalize, got %v", err)
	}
}

func TestResolver_EmptyPass(t *testing.T) {
	g := lineGraph(t, 3, zone.TeamOwner(1))
	r := NewResolver(g, testRewards())
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !res.Empty() || len(res.Coins()) != 0 || len(res.Points()) != 0 {
		t.Fatalf("expected empty result: %+v", res.Record())
	}
	if err := r.Commit(g); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if g.Commits() != 0 {
		t.Fatalf("empty pass touched the graph")
	}
}

func TestResolver_IsolatedCaptureNeutralised(t *testing.T) {
	// Team 2 owns 3-4; it captures 0 which does not touch its territory.
	g, err := zone.New([]zone.Zone{
		{ID: 0, Owner: zone.TeamOwner(1), Adjacent: []zone.ZoneID{1}},
		{ID: 1, Owner: zone.TeamOwner(1), Adjacent: []zone.ZoneID{2}},
		{ID: 2, Adjacent: []zone.ZoneID{3}},
		{ID: 3, Owner: zone.TeamOwner(2), Adjacent: []zone.ZoneID{4}},
		{ID: 4, Owner: zone.TeamOwner(2)},
	})
	if err != nil {
		t.Fatalf("zone.New: %v", err)
	}
	r := NewResolver(g, testRewards())
	if err := r.MarkZoneCaptured(0, zone.TeamOwner(2), pid(1), nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	res, err := r.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	zones := res.Zones()
	if len(zones) != 1 || !zones[0].Captured || !zones[0].Neutralised || !zones[0].Owner.IsNeutral() {
		t.Fatalf("zones: %+v", zones)
	}
}

func TestResolver_MarkOrderDoesNotMatter(t *testing.T) {
	events := []Event{
		{Zone: 1, NewOwner: zone.TeamOwner(2), Tagger: pid(1), Assisters: []zone.PlayerID{2}},
		{Zone: 4, NewOwner: zone.Neutral(), Tagger: pid(3)},
		{Zone: 6, NewOwner: zone.TeamOwner(2), Tagger: pid(2)},
	}
	run := func(order []int) []byte {
		g := lineGraph(t, 8, zone.TeamOwner(1))
		_ = g.PlacePlayer(3, 2, 0, false)
		r := NewResolver(g, testRewards())
		for _, i := range order {
			if err := r.Mark(events[i]); err != nil {
				t.Fatalf("mark: %v", err)
			}
		}
		res, err := r.Finalize()
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	a := run([]int{0, 1, 2})
	b := run([]int{2, 0, 1})
	if !bytes.Equal(a, b) {
		t.Fatalf("mark order changed the result:\n%s\n%s", a, b)
	}
}

// After any committed pass, every team owns at most one connected sector.
func TestResolver_AtMostOneSectorPerTeam(t *testing.T) {
	const w, h = 6, 6
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		defs := make([]zone.Zone, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				id := zone.ZoneID(y*w + x)
				z := zone.Zone{ID: id, Dark: rng.Intn(4) == 0}
				if o := rng.Intn(4); o > 0 {
					z.Owner = zone.TeamOwner(zone.TeamID(o))
				}
				if x+1 < w {
					z.Adjacent = append(z.Adjacent, id+1)
				}
				if y+1 < h {
					z.Adjacent = append(z.Adjacent, id+w)
				}
				defs[id] = z
			}
		}
		g, err := zone.New(defs)
		if err != nil {
			t.Fatalf("zone.New: %v", err)
		}
		for p := 1; p <= 8; p++ {
			_ = g.PlacePlayer(zone.PlayerID(p), zone.TeamID(1+p%3), zone.ZoneID(rng.Intn(w*h)), rng.Intn(3) == 0)
		}

		r := NewResolver(g, testRewards())
		for i := 0; i < 6; i++ {
			id := zone.ZoneID(rng.Intn(w * h))
			next := zone.TeamOwner(zone.TeamID(1 + rng.Intn(3)))
			if rng.Intn(4) == 0 {
				next = zone.Neutral()
			}
			tagger := zone.PlayerID(1 + rng.Intn(8))
			if err := r.MarkZoneCaptured(id, next, &tagger, nil); err != nil {
				// Duplicates and no-ops abort the pass; start over with a fresh one.
				r = NewResolver(g, testRewards())
				continue
			}
		}
		if err := r.Commit(g); err != nil {
			t.Fatalf("round %d: commit: %v", round, err)
		}

		after := ConnectedSectors(g, g.CommittedOwner)
		for _, team := range after.Teams() {
			if n := len(after.ByTeam(team)); n > 1 {
				t.Fatalf("round %d: team %d owns %d sectors", round, team, n)
			}
		}
	}
}

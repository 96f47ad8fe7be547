package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:   Header{Version: Version, MatchID: "m1", Tick: tick},
		MapName:  "line",
		TickRate: 20,
		Rewards:  RewardsV1{CoinsPerZoneNeutralised: 10, CoinsPerNeutralCap: 20, CoinsPerEnemyCap: 30, AssistFactorPermille: 500},
		Zones: []ZoneV1{
			{ID: 0, Owner: -1, Adjacent: []int32{1}},
			{ID: 1, Owner: 2, Dark: true, Adjacent: []int32{0}},
		},
		Players:      []PlayerV1{{ID: 7, Team: 2, Zone: 1, Dead: true}},
		Coins:        []CoinV1{{Player: 7, Amount: 40}},
		Points:       []PointV1{{Team: 2, Amount: 2.5}},
		Achievements: []AchievementV1{{Player: 7, Achievement: "NEUTRALISER", Tick: 3}},
		Commits:      4,
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(100))
	if err := WriteSnapshot(path, sample(100)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.MatchID != "m1" || got.Header.Tick != 100 {
		t.Fatalf("header: %+v", got.Header)
	}
	if len(got.Zones) != 2 || got.Zones[0].Owner != -1 || !got.Zones[1].Dark {
		t.Fatalf("zones: %+v", got.Zones)
	}
	if got.Points[0].Amount != 2.5 || got.Coins[0].Amount != 40 || got.Commits != 4 {
		t.Fatalf("scoreboard: %+v %+v commits=%d", got.Coins, got.Points, got.Commits)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Tick != 100 || h.Version != Version {
		t.Fatalf("header: %+v", h)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	s := sample(1)
	s.Header.Version = 99
	if err := WriteSnapshot(path, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if p, err := Latest(dir); err != nil || p != "" {
		t.Fatalf("empty dir: %q %v", p, err)
	}
	for _, tick := range []uint64{30, 100, 9} {
		if err := WriteSnapshot(filepath.Join(dir, FileName(tick)), sample(tick)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	ticks, err := List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ticks) != 3 || ticks[0] != 9 || ticks[2] != 100 {
		t.Fatalf("ticks: %v", ticks)
	}
	p, err := Latest(dir)
	if err != nil || filepath.Base(p) != "100.snap.zst" {
		t.Fatalf("latest: %q %v", p, err)
	}
	if _, err := Latest(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("missing dir: %v", err)
	}
}

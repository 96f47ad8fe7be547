package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	persistlog "zonewars.gg/internal/persistence/log"
	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; default is a fresh match from -map)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		mapPath    = flag.String("map", "./configs/map.yaml", "map layout for a fresh replay")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning for a fresh replay")
		matchID    = flag.String("match", "match_1", "match id for a fresh replay")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	m, err := openMatch(*snapPath, *mapPath, *tuningPath, *matchID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *eventsDir == "" {
		return
	}

	startTick := m.CurrentTick()
	res, err := persistlog.Replay(m, *eventsDir, persistlog.ReplayOptions{VerifyFrom: *fromTick, ToTick: *toTick})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d, last=%d)\n", res.Checked, startTick, res.LastTick)
}

func openMatch(snapPath, mapPath, tuningPath, matchID string) (*match.Match, error) {
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		fmt.Printf("snapshot v%d match=%s tick=%d map=%s zones=%d players=%d achievements=%d\n",
			snap.Header.Version, snap.Header.MatchID, snap.Header.Tick, snap.MapName,
			len(snap.Zones), len(snap.Players), len(snap.Achievements))
		return match.NewFromSnapshot(match.Config{Logger: zerolog.Nop()}, snap)
	}

	tune, err := tuning.Load(tuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	layout, err := zone.LoadLayout(mapPath)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	g, err := layout.Build()
	if err != nil {
		return nil, err
	}
	return match.New(match.Config{ID: matchID, MapName: layout.Name, Tuning: tune, Logger: zerolog.Nop()}, g)
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	persistlog "zonewars.gg/internal/persistence/log"
	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "matches")
	if *matchID != "" {
		ticks, err := snapshot.List(filepath.Join(base, *matchID, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(1)
		}
		for _, t := range ticks {
			fmt.Println(snapshot.FileName(t))
		}
		return
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin inspect <path.snap.zst>")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type snapshotSummary struct {
	Version      int            `json:"version"`
	MatchID      string         `json:"match_id"`
	Tick         uint64         `json:"tick"`
	MapName      string         `json:"map_name"`
	Zones        int            `json:"zones"`
	ZonesByOwner map[string]int `json:"zones_by_owner"`
	Players      int            `json:"players"`
	Achievements int            `json:"achievements"`
	Commits      uint64         `json:"commits"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Version:      snap.Header.Version,
		MatchID:      snap.Header.MatchID,
		Tick:         snap.Header.Tick,
		MapName:      snap.MapName,
		Zones:        len(snap.Zones),
		ZonesByOwner: map[string]int{},
		Players:      len(snap.Players),
		Achievements: len(snap.Achievements),
		Commits:      snap.Commits,
	}
	for _, z := range snap.Zones {
		key := "neutral"
		if z.Owner >= 0 {
			key = fmt.Sprintf("team_%d", z.Owner)
		}
		s.ZonesByOwner[key]++
	}
	return s
}

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id")
	snapPath := fs.String("snapshot", "", "snapshot to replay from (optional; defaults to the newest at or before -to_tick)")
	mapPath := fs.String("map", "./configs/map.yaml", "map layout when no snapshot precedes -to_tick")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning when no snapshot precedes -to_tick")
	toTick := fs.Uint64("to_tick", 0, "tick to roll back to (inclusive, required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	if *toTick == 0 {
		fmt.Fprintln(os.Stderr, "missing -to_tick")
		os.Exit(2)
	}

	matchDir := filepath.Join(*dataDir, "matches", *matchID)
	rb := rollback{
		MatchDir: matchDir,
		MatchID:  *matchID,
		Snapshot: strings.TrimSpace(*snapPath),
		Map:      *mapPath,
		Tuning:   *tuningPath,
		ToTick:   *toTick,
		Out:      strings.TrimSpace(*outPath),
	}
	out, res, err := rb.run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: match=%s to=%d replayed=%d out=%s\n", *matchID, *toTick, res.Stepped, out)
}

// rollback rebuilds a match's state at ToTick by replaying the tick log on
// top of the closest earlier snapshot, and writes it as a new snapshot.
type rollback struct {
	MatchDir string
	MatchID  string
	Snapshot string
	Map      string
	Tuning   string
	ToTick   uint64
	Out      string
}

func (rb rollback) run() (string, persistlog.ReplayResult, error) {
	var res persistlog.ReplayResult
	m, err := rb.base()
	if err != nil {
		return "", res, err
	}
	if m.CurrentTick() <= rb.ToTick {
		res, err = persistlog.Replay(m, persistlog.EventsDir(rb.MatchDir), persistlog.ReplayOptions{ToTick: rb.ToTick})
		if err != nil {
			return "", res, err
		}
	}
	if m.CurrentTick() != rb.ToTick+1 {
		return "", res, fmt.Errorf("tick log ends before tick %d (next=%d)", rb.ToTick, m.CurrentTick())
	}

	out := rb.Out
	if out == "" {
		out = filepath.Join(rb.MatchDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", rb.ToTick))
	}
	if err := snapshot.WriteSnapshot(out, m.ExportSnapshot(rb.ToTick)); err != nil {
		return "", res, err
	}
	return out, res, nil
}

func (rb rollback) base() (*match.Match, error) {
	path := rb.Snapshot
	if path == "" {
		dir := filepath.Join(rb.MatchDir, "snapshots")
		ticks, err := snapshot.List(dir)
		if err != nil {
			return nil, err
		}
		for _, t := range ticks {
			if t <= rb.ToTick {
				path = filepath.Join(dir, snapshot.FileName(t))
			}
		}
	}
	if path != "" {
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.Tick > rb.ToTick {
			return nil, fmt.Errorf("snapshot tick %d is after -to_tick %d", snap.Header.Tick, rb.ToTick)
		}
		return match.NewFromSnapshot(match.Config{ID: rb.MatchID, Logger: zerolog.Nop()}, snap)
	}

	tune, err := tuning.Load(rb.Tuning)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	layout, err := zone.LoadLayout(rb.Map)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	g, err := layout.Build()
	if err != nil {
		return nil, err
	}
	return match.New(match.Config{ID: rb.MatchID, MapName: layout.Name, Tuning: tune, Logger: zerolog.Nop()}, g)
}

package match

import (
	"context"
	"errors"
	"fmt"

	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

// ExportSnapshot captures the state after nowTick was stepped.
func (m *Match) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	t := m.cfg.Tuning
	snap := snapshot.SnapshotV1{
		Header:                      snapshot.Header{Version: snapshot.Version, MatchID: m.cfg.ID, Tick: nowTick},
		MapName:                     m.cfg.MapName,
		TickRate:                    t.TickRateHz,
		SnapshotEveryTicks:          t.SnapshotEveryTicks,
		MaxTagsPerTick:              t.MaxTagsPerTick,
		NeutraliserAchievementZones: t.NeutraliserAchievementZones,
		Rewards: snapshot.RewardsV1{
			CoinsPerZoneNeutralised: t.Rewards.CoinsPerZoneNeutralised,
			CoinsPerNeutralCap:      t.Rewards.CoinsPerNeutralCap,
			CoinsPerEnemyCap:        t.Rewards.CoinsPerEnemyCap,
			AssistFactorPermille:    t.Rewards.AssistFactorPermille,
		},
		Commits: m.graph.Commits(),
	}
	for _, z := range m.graph.Zones() {
		zv := snapshot.ZoneV1{ID: int32(z.ID), Name: z.Name, Owner: z.Owner.Wire(), Dark: z.Dark}
		for _, a := range z.Adjacent {
			zv.Adjacent = append(zv.Adjacent, int32(a))
		}
		snap.Zones = append(snap.Zones, zv)
		for _, o := range z.Occupants {
			snap.Players = append(snap.Players, snapshot.PlayerV1{ID: uint32(o.Player), Team: uint16(o.Team), Zone: int32(z.ID), Dead: o.Dead})
		}
	}
	v := m.scores.view()
	for _, p := range v.Players {
		snap.Coins = append(snap.Coins, snapshot.CoinV1{Player: uint32(p.Player), Amount: p.Coins})
	}
	for _, t := range v.Teams {
		snap.Points = append(snap.Points, snapshot.PointV1{Team: uint16(t.Team), Amount: t.Points})
	}
	for _, a := range v.Achievements {
		snap.Achievements = append(snap.Achievements, snapshot.AchievementV1{Player: uint32(a.Player), Achievement: a.Achievement, Tick: a.Tick})
	}
	return snap
}

// TuningFromSnapshot returns the effective tuning a snapshot was taken with.
func TuningFromSnapshot(snap snapshot.SnapshotV1) tuning.Tuning {
	return tuning.Tuning{
		TickRateHz:                  snap.TickRate,
		SnapshotEveryTicks:          snap.SnapshotEveryTicks,
		MaxTagsPerTick:              snap.MaxTagsPerTick,
		NeutraliserAchievementZones: snap.NeutraliserAchievementZones,
		Rewards: tuning.Rewards{
			CoinsPerZoneNeutralised: snap.Rewards.CoinsPerZoneNeutralised,
			CoinsPerNeutralCap:      snap.Rewards.CoinsPerNeutralCap,
			CoinsPerEnemyCap:        snap.Rewards.CoinsPerEnemyCap,
			AssistFactorPermille:    snap.Rewards.AssistFactorPermille,
		},
	}
}

// NewFromSnapshot rebuilds a match. The snapshot's tuning wins over
// cfg.Tuning so a resumed match scores exactly as before. The next stepped
// tick is snap.Header.Tick+1.
func NewFromSnapshot(cfg Config, snap snapshot.SnapshotV1) (*Match, error) {
	if snap.Header.MatchID != "" && cfg.ID != "" && snap.Header.MatchID != cfg.ID {
		return nil, fmt.Errorf("snapshot match id mismatch: cfg=%s snap=%s", cfg.ID, snap.Header.MatchID)
	}
	if cfg.ID == "" {
		cfg.ID = snap.Header.MatchID
	}
	if cfg.MapName == "" {
		cfg.MapName = snap.MapName
	}
	cfg.Tuning = TuningFromSnapshot(snap)

	defs := make([]zone.Zone, len(snap.Zones))
	for i, zv := range snap.Zones {
		owner, err := zone.OwnerFromWire(zv.Owner)
		if err != nil {
			return nil, fmt.Errorf("zone %d: %w", zv.ID, err)
		}
		d := zone.Zone{ID: zone.ZoneID(zv.ID), Name: zv.Name, Owner: owner, Dark: zv.Dark}
		for _, a := range zv.Adjacent {
			d.Adjacent = append(d.Adjacent, zone.ZoneID(a))
		}
		defs[i] = d
	}
	g, err := zone.New(defs)
	if err != nil {
		return nil, err
	}
	for _, p := range snap.Players {
		if err := g.PlacePlayer(zone.PlayerID(p.ID), zone.TeamID(p.Team), zone.ZoneID(p.Zone), p.Dead); err != nil {
			return nil, fmt.Errorf("player %d: %w", p.ID, err)
		}
	}
	g.RestoreCommits(snap.Commits)

	m, err := New(cfg, g)
	if err != nil {
		return nil, err
	}
	var v ScoreboardView
	for _, c := range snap.Coins {
		v.Players = append(v.Players, PlayerScore{Player: zone.PlayerID(c.Player), Coins: c.Amount})
	}
	for _, p := range snap.Points {
		v.Teams = append(v.Teams, TeamScore{Team: zone.TeamID(p.Team), Points: p.Amount})
	}
	for _, a := range snap.Achievements {
		v.Achievements = append(v.Achievements, Achievement{Player: zone.PlayerID(a.Player), Achievement: a.Achievement, Tick: a.Tick})
	}
	m.scores.load(v)
	m.tick.Store(snap.Header.Tick + 1)
	return m, nil
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the loop goroutine to enqueue a snapshot of the last
// stepped tick. Safe to call from other goroutines.
func (m *Match) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan adminSnapshotResp, 1)
	select {
	case m.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (m *Match) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := m.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}
	errStr := ""
	if m.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case m.snapshotSink <- m.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink busy"
		}
	}
	for _, r := range reqs {
		r.Resp <- adminSnapshotResp{Tick: snapTick, Err: errStr}
	}
}

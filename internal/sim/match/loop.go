package match

import (
	"context"
	"encoding/json"
	"time"

	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/emit"
	"zonewars.gg/internal/telemetry"
)

func (m *Match) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(m.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingPlayers []PlayerUpdate
	var pendingTags []TagReport
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case u := <-m.players:
			pendingPlayers = append(pendingPlayers, u)
		case t := <-m.tags:
			pendingTags = append(pendingTags, t)
		case req := <-m.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			m.step(ctx, pendingPlayers, pendingTags)
			m.handleAdminSnapshotRequests(pendingAdmin)
			pendingPlayers = pendingPlayers[:0]
			pendingTags = pendingTags[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (m *Match) Stop() { m.stopOnce.Do(func() { close(m.stop) }) }

// StepOnce advances the match by a single tick using the same ordering
// semantics as Run. It is intended for deterministic replays and tests.
func (m *Match) StepOnce(players []PlayerUpdate, tags []TagReport) (tick uint64, digest string) {
	return m.step(context.Background(), players, tags)
}

func (m *Match) step(ctx context.Context, players []PlayerUpdate, tags []TagReport) (uint64, string) {
	stepStart := time.Now()
	nowTick := m.tick.Load()

	// Player state lands before any capture so sector goodness sees it.
	recordedPlayers := make([]PlayerUpdate, 0, len(players))
	for _, u := range players {
		if m.applyPlayer(u) {
			recordedPlayers = append(recordedPlayers, u)
		}
	}

	r, accepted, rejected := m.screenTags(tags)
	res, err := r.Finalize()
	if err == nil {
		err = r.Commit(m.graph)
	}
	if err != nil {
		// Screening leaves only tags that mark cleanly, so this is a bug.
		m.log.Error().Err(err).Uint64("tick", nowTick).Msg("resolution failed")
		res = nil
	}

	var ev emit.Events
	var record *capture.Record
	stats := telemetry.TickStats{}
	if res != nil && !res.Empty() {
		m.scores.apply(res)
		ev = emit.FromResult(res)
		ev.Achievements = m.scores.unlockNeutraliser(nowTick, ev.Hooks, m.cfg.Tuning.NeutraliserAchievementZones)
		rec := res.Record()
		record = &rec

		stats.Captures = len(accepted)
		for _, s := range res.Neutralised() {
			stats.Neutralised += len(s.Zones)
		}
		for _, c := range res.Coins() {
			stats.Coins += c.Amount
		}
	}
	if len(rejected) > 0 {
		stats.Rejected = map[string]int{}
		for _, rj := range rejected {
			stats.Rejected[rj.Code]++
		}
	}
	m.ackRejected(nowTick, tags, rejected)
	m.dispatcher.Dispatch(nowTick, ev)

	digest := m.stateDigest(nowTick)
	m.broadcastTick(nowTick, digest, ev)

	if m.tickLogger != nil {
		entry := TickLogEntry{
			Tick:         nowTick,
			Players:      recordedPlayers,
			Tags:         append([]TagReport(nil), tags...),
			Rejected:     rejected,
			Result:       record,
			Achievements: ev.Achievements,
			Digest:       digest,
		}
		if err := m.tickLogger.WriteTick(entry); err != nil {
			m.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write")
		}
	}

	// Snapshot every N ticks, starting after tick 0.
	if m.snapshotSink != nil && nowTick != 0 && m.cfg.Tuning.SnapshotEveryTicks > 0 {
		if nowTick%uint64(m.cfg.Tuning.SnapshotEveryTicks) == 0 {
			select {
			case m.snapshotSink <- m.ExportSnapshot(nowTick):
			default:
				m.log.Warn().Uint64("tick", nowTick).Msg("snapshot sink busy; skipped")
			}
		}
	}

	stats.StepMS = float64(time.Since(stepStart).Microseconds()) / 1000.0
	m.telemetry.RecordTick(ctx, stats)

	next := m.tick.Add(1)
	m.metrics.Store(Metrics{
		Tick:        next,
		Zones:       m.graph.NumZones(),
		Players:     len(m.graph.Players()),
		Subscribers: m.hub.len(),
		Commits:     m.graph.Commits(),
		StepMS:      stats.StepMS,
		Inbox:       len(m.tags) + len(m.players),
	})
	return nowTick, digest
}

func (m *Match) applyPlayer(u PlayerUpdate) bool {
	if u.Left {
		return m.graph.RemovePlayer(u.Player) == nil
	}
	if err := m.graph.PlacePlayer(u.Player, u.Team, u.Zone, u.Dead); err != nil {
		m.log.Debug().Err(err).Uint32("player", uint32(u.Player)).Msg("player update ignored")
		return false
	}
	return true
}

func (m *Match) broadcastTick(tick uint64, digest string, ev emit.Events) {
	if m.hub.len() == 0 {
		return
	}
	msg := protocol.TickEventsMsg{
		Type:            protocol.TypeTickEvents,
		ProtocolVersion: protocol.Version,
		MatchID:         m.cfg.ID,
		Tick:            tick,
		Digest:          digest,
		Events:          ev.Protocol(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		m.log.Error().Err(err).Msg("encode tick events")
		return
	}
	if n := m.hub.broadcast(b); n > 0 {
		m.log.Warn().Int("dropped", n).Uint64("tick", tick).Msg("slow subscribers")
	}
}

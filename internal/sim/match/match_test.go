package match

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/emit"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.TickRateHz = 50
	t.SnapshotEveryTicks = 0
	t.Rewards = tuning.Rewards{
		CoinsPerZoneNeutralised: 10,
		CoinsPerNeutralCap:      20,
		CoinsPerEnemyCap:        30,
		AssistFactorPermille:    500,
	}
	t.NeutraliserAchievementZones = 1
	return t
}

// newLineMatch builds zones 0-1-2-3 owned by team 1 and rosters player 9 on
// team 2 in zone 1.
func newLineMatch(t *testing.T) *Match {
	t.Helper()
	defs := make([]zone.Zone, 4)
	for i := range defs {
		defs[i] = zone.Zone{ID: zone.ZoneID(i), Owner: zone.TeamOwner(1)}
		if i+1 < 4 {
			defs[i].Adjacent = []zone.ZoneID{zone.ZoneID(i + 1)}
		}
	}
	g, err := zone.New(defs)
	if err != nil {
		t.Fatalf("zone.New: %v", err)
	}
	m, err := New(Config{ID: "m1", MapName: "line", Tuning: testTuning(), Logger: zerolog.Nop()}, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.StepOnce([]PlayerUpdate{{Player: 9, Team: 2, Zone: 1}}, nil)
	return m
}

func tag(req string, z zone.ZoneID, owner zone.Owner, tagger zone.PlayerID) TagReport {
	p := tagger
	return TagReport{ReqID: req, Event: capture.Event{Zone: z, NewOwner: owner, Tagger: &p}}
}

type memTickLog struct{ entries []TickLogEntry }

func (l *memTickLog) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func TestStepOnce_SplitLineScoresAndUnlocks(t *testing.T) {
	m := newLineMatch(t)
	var got []emit.Events
	m.OnTick(func(_ uint64, ev emit.Events) { got = append(got, ev) })

	tick, digest := m.StepOnce(nil, []TagReport{tag("R1", 1, zone.TeamOwner(2), 9)})
	if tick != 1 || digest == "" {
		t.Fatalf("tick=%d digest=%q", tick, digest)
	}
	if m.Graph().CommittedOwner(0) != zone.Neutral() || m.Graph().CommittedOwner(1) != zone.TeamOwner(2) {
		t.Fatalf("owners not committed")
	}

	v := m.Scores()
	if len(v.Players) != 1 || v.Players[0] != (PlayerScore{Player: 9, Coins: 40}) {
		t.Fatalf("players: %+v", v.Players)
	}
	if len(v.Teams) != 1 || v.Teams[0] != (TeamScore{Team: 2, Points: 3}) {
		t.Fatalf("teams: %+v", v.Teams)
	}
	if len(v.Achievements) != 1 || v.Achievements[0].Achievement != AchievementNeutraliser || v.Achievements[0].Tick != 1 {
		t.Fatalf("achievements: %+v", v.Achievements)
	}
	if len(got) != 1 || len(got[0].Achievements) != 1 || len(got[0].Hooks) != 1 {
		t.Fatalf("events: %+v", got)
	}

	// Team 1 keeps a single sector {3}: no further neutralisation.
	m.StepOnce(nil, []TagReport{tag("R2", 2, zone.TeamOwner(2), 9)})
	v = m.Scores()
	if v.Players[0].Coins != 70 || v.Teams[0].Points != 5 {
		t.Fatalf("scores did not accumulate: %+v", v)
	}
	if m.Graph().CommittedOwner(3) != zone.TeamOwner(1) {
		t.Fatalf("zone 3 should stay with team 1, got %v", m.Graph().CommittedOwner(3))
	}
}

func TestUnlockNeutraliser_OncePerPlayer(t *testing.T) {
	s := newScoreboard()
	hooks := []emit.SectorNeutralisedHook{
		{Player: 1, ZonesNeutralised: 2},
		{Player: 2, ZonesNeutralised: 3},
		{Player: 2, ZonesNeutralised: 5},
	}
	got := s.unlockNeutraliser(4, hooks, 3)
	if len(got) != 1 || got[0].Player != 2 {
		t.Fatalf("unlocked: %+v", got)
	}
	if again := s.unlockNeutraliser(5, hooks, 3); len(again) != 0 {
		t.Fatalf("unlocked twice: %+v", again)
	}
	if off := newScoreboard().unlockNeutraliser(1, hooks, 0); off != nil {
		t.Fatalf("threshold 0 should disable: %+v", off)
	}
}

func TestStepOnce_RejectsAndAcks(t *testing.T) {
	m := newLineMatch(t)
	log := &memTickLog{}
	m.SetTickLogger(log)

	reply := make(chan protocol.AckMsg, 8)
	tags := []TagReport{
		tag("ok", 1, zone.TeamOwner(2), 9),
		tag("dup", 1, zone.TeamOwner(3), 9),
		tag("noop", 2, zone.TeamOwner(1), 9),
		tag("bad", 42, zone.TeamOwner(2), 9),
	}
	for i := range tags {
		tags[i].Reply = reply
	}
	m.StepOnce(nil, tags)

	want := map[string]string{
		"dup":  protocol.ErrConflict,
		"noop": protocol.ErrBadRequest,
		"bad":  protocol.ErrInvalidTarget,
	}
	for i := 0; i < len(want); i++ {
		select {
		case ack := <-reply:
			if ack.Accepted || want[ack.AckFor] != ack.Code || ack.ServerTick != 1 {
				t.Fatalf("ack: %+v", ack)
			}
			delete(want, ack.AckFor)
		default:
			t.Fatalf("missing acks: %v", want)
		}
	}
	if len(reply) != 0 {
		t.Fatalf("unexpected extra ack")
	}

	if m.Graph().CommittedOwner(1) != zone.TeamOwner(2) {
		t.Fatalf("accepted tag was not resolved")
	}
	if len(log.entries) != 1 {
		t.Fatalf("log entries: %d", len(log.entries))
	}
	e := log.entries[0]
	if len(e.Tags) != 4 || len(e.Rejected) != 3 || e.Result == nil || len(e.Result.Zones) != 2 {
		t.Fatalf("log entry: %+v", e)
	}
}

func TestStepOnce_TagCap(t *testing.T) {
	m := newLineMatch(t)
	m.cfg.Tuning.MaxTagsPerTick = 1
	log := &memTickLog{}
	m.SetTickLogger(log)

	m.StepOnce(nil, []TagReport{
		tag("a", 0, zone.TeamOwner(2), 9),
		tag("b", 3, zone.TeamOwner(2), 9),
	})
	rj := log.entries[0].Rejected
	if len(rj) != 1 || rj[0].ReqID != "b" || rj[0].Code != protocol.ErrRateLimit {
		t.Fatalf("rejected: %+v", rj)
	}
}

func TestStepOnce_RejectLogIsSampled(t *testing.T) {
	g, err := zone.New([]zone.Zone{{ID: 0, Owner: zone.TeamOwner(1)}})
	if err != nil {
		t.Fatalf("zone.New: %v", err)
	}
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	m, err := New(Config{ID: "m1", Tuning: testTuning(), Logger: logger}, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 200
	tags := make([]TagReport, n)
	for i := range tags {
		tags[i] = tag("noop", 0, zone.TeamOwner(1), 9)
	}
	log := &memTickLog{}
	m.SetTickLogger(log)
	m.StepOnce(nil, tags)

	if got := len(log.entries[0].Rejected); got != n {
		t.Fatalf("rejected: got %d want %d", got, n)
	}
	lines := strings.Count(buf.String(), "tag rejected")
	if lines < rejectLogBurst || lines >= n {
		t.Fatalf("logged %d rejects for %d tags", lines, n)
	}
}

func TestStepOnce_PlayerUpdates(t *testing.T) {
	m := newLineMatch(t)
	m.StepOnce([]PlayerUpdate{
		{Player: 4, Team: 1, Zone: 3, Dead: true},
		{Player: 9, Left: true},
		{Player: 5, Team: 1, Zone: 99},
	}, nil)
	g := m.Graph()
	if occ := g.Occupants(3); len(occ) != 1 || occ[0].Player != 4 || !occ[0].Dead {
		t.Fatalf("zone 3 occupants: %+v", occ)
	}
	if _, ok := g.PlayerTeam(9); ok {
		t.Fatalf("player 9 should have left")
	}
	if _, ok := g.PlayerTeam(5); ok {
		t.Fatalf("player placed in unknown zone")
	}
}

func TestStepOnce_DeterministicDigests(t *testing.T) {
	run := func() []string {
		m := newLineMatch(t)
		var out []string
		inputs := [][]TagReport{
			{tag("a", 1, zone.TeamOwner(2), 9)},
			nil,
			{tag("b", 0, zone.TeamOwner(2), 9), tag("c", 3, zone.TeamOwner(2), 9)},
		}
		for _, in := range inputs {
			_, d := m.StepOnce(nil, in)
			out = append(out, d)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tick %d digest differs: %s vs %s", i, a[i], b[i])
		}
	}
	if a[0] == a[1] {
		t.Fatalf("digest should include the tick")
	}
}

func TestSnapshotResume_MatchesDigest(t *testing.T) {
	m := newLineMatch(t)
	m.StepOnce(nil, []TagReport{tag("a", 1, zone.TeamOwner(2), 9)})
	snap := m.ExportSnapshot(m.CurrentTick() - 1)

	path := filepath.Join(t.TempDir(), snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	r, err := NewFromSnapshot(Config{ID: "m1", Logger: zerolog.Nop()}, loaded)
	if err != nil {
		t.Fatalf("NewFromSnapshot: %v", err)
	}
	if r.CurrentTick() != m.CurrentTick() {
		t.Fatalf("tick: resumed=%d original=%d", r.CurrentTick(), m.CurrentTick())
	}

	next := []TagReport{tag("b", 2, zone.TeamOwner(2), 9)}
	_, d1 := m.StepOnce(nil, next)
	_, d2 := r.StepOnce(nil, next)
	if d1 != d2 {
		t.Fatalf("resumed digest differs: %s vs %s", d1, d2)
	}

	if _, err := NewFromSnapshot(Config{ID: "other"}, loaded); err == nil {
		t.Fatalf("expected match id mismatch")
	}
}

func TestSubscribe_ReceivesTickEvents(t *testing.T) {
	m := newLineMatch(t)
	ch, cancel := m.Subscribe(4)
	defer cancel()

	m.StepOnce(nil, []TagReport{tag("a", 1, zone.TeamOwner(2), 9)})
	var b []byte
	select {
	case b = <-ch:
	default:
		t.Fatalf("no tick events")
	}
	if err := protocol.Validate(protocol.TypeTickEvents, b); err != nil {
		t.Fatalf("schema: %v", err)
	}
	var msg protocol.TickEventsMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Tick != 1 || msg.MatchID != "m1" || len(msg.Events) != 6 {
		t.Fatalf("msg: %+v", msg)
	}

	cancel()
	m.StepOnce(nil, nil)
	if len(ch) != 0 {
		t.Fatalf("cancelled subscriber still receives")
	}
}

func TestRun_ResolvesQueuedTags(t *testing.T) {
	m := newLineMatch(t)
	ch, cancel := m.Subscribe(16)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.Tags() <- tag("a", 1, zone.TeamOwner(2), 9)
	for {
		select {
		case b := <-ch:
			var msg protocol.TickEventsMsg
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(msg.Events) == 0 {
				continue
			}
			m.Stop()
			if err := <-done; err != nil {
				t.Fatalf("run: %v", err)
			}
			return
		case <-ctx.Done():
			t.Fatalf("timed out waiting for resolution")
		}
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&capture.CaptureError{Zone: 1, Err: capture.ErrDuplicateCapture}, protocol.ErrConflict},
		{&capture.CaptureError{Zone: 1, Err: capture.ErrNoOpCapture}, protocol.ErrBadRequest},
		{&capture.CaptureError{Zone: 1, Err: capture.ErrUseAfterFinalize}, protocol.ErrStale},
		{&capture.CaptureError{Zone: 1, Err: capture.ErrUnknownZone}, protocol.ErrInvalidTarget},
		{capture.ErrAlreadyCommitted, protocol.ErrInternal},
	}
	for _, c := range cases {
		if got := CodeFor(c.err); got != c.want {
			t.Fatalf("CodeFor(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

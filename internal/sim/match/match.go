// Package match runs a zone-control match: it collects tag reports and player
// updates between ticks, resolves them once per tick and fans out the result.
package match

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"zonewars.gg/internal/logging"
	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/emit"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
	"zonewars.gg/internal/telemetry"
)

type Config struct {
	ID      string
	MapName string
	Tuning  tuning.Tuning
	Logger  zerolog.Logger
}

// TagReport is one capture submitted by the gameplay feed.
type TagReport struct {
	ReqID string        `json:"req_id,omitempty"`
	Event capture.Event `json:"event"`

	// Reply receives an ACK when the tag is rejected. Optional.
	Reply chan<- protocol.AckMsg `json:"-"`
}

// PlayerUpdate moves a player, flips its dead flag, or removes it.
type PlayerUpdate struct {
	Player zone.PlayerID `json:"player"`
	Team   zone.TeamID   `json:"team"`
	Zone   zone.ZoneID   `json:"zone"`
	Dead   bool          `json:"dead,omitempty"`
	Left   bool          `json:"left,omitempty"`
}

type RejectedTag struct {
	ReqID string      `json:"req_id,omitempty"`
	Zone  zone.ZoneID `json:"zone"`
	Code  string      `json:"code"`

	index int
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is enough to replay a tick: player updates and tags in arrival
// order. Result and Rejected are informational.
type TickLogEntry struct {
	Tick         uint64                     `json:"tick"`
	Players      []PlayerUpdate             `json:"players,omitempty"`
	Tags         []TagReport                `json:"tags,omitempty"`
	Rejected     []RejectedTag              `json:"rejected,omitempty"`
	Result       *capture.Record            `json:"result,omitempty"`
	Achievements []emit.AchievementUnlocked `json:"achievements,omitempty"`
	Digest       string                     `json:"digest"`
}

// Metrics is a point-in-time view for status endpoints.
type Metrics struct {
	Tick        uint64  `json:"tick"`
	Zones       int     `json:"zones"`
	Players     int     `json:"players"`
	Subscribers int     `json:"subscribers"`
	Commits     uint64  `json:"commits"`
	StepMS      float64 `json:"step_ms"`
	Inbox       int     `json:"inbox"`
}

const (
	rejectLogBurst = 20
	rejectLogEvery = 50
)

type Match struct {
	cfg       Config
	log       zerolog.Logger
	rejectLog zerolog.Logger // sampled; a hostile feed can earn a reject per tag
	graph     *zone.Graph
	tick      atomic.Uint64
	scores    *Scoreboard

	tags    chan TagReport
	players chan PlayerUpdate
	admin   chan adminSnapshotReq
	stop    chan struct{}

	stopOnce sync.Once

	dispatcher emit.Dispatcher
	hub        hub

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	telemetry    *telemetry.Match

	metrics atomic.Value // Metrics
}

func New(cfg Config, g *zone.Graph) (*Match, error) {
	if g == nil {
		return nil, errors.New("match: nil zone graph")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "match_1"
	}
	log := cfg.Logger.With().Str("component", "match").Str("match", cfg.ID).Logger()
	m := &Match{
		cfg:       cfg,
		log:       log,
		rejectLog: logging.Sampled(log, rejectLogBurst, time.Second, rejectLogEvery),
		graph:     g,
		scores:    newScoreboard(),
		tags:      make(chan TagReport, 1024),
		players:   make(chan PlayerUpdate, 1024),
		admin:     make(chan adminSnapshotReq, 8),
		stop:      make(chan struct{}),
	}
	m.hub.init()
	m.metrics.Store(Metrics{Zones: g.NumZones(), Players: len(g.Players())})
	return m, nil
}

func (m *Match) ID() string            { return m.cfg.ID }
func (m *Match) MapName() string       { return m.cfg.MapName }
func (m *Match) TickRateHz() int       { return m.cfg.Tuning.TickRateHz }
func (m *Match) NumZones() int         { return m.graph.NumZones() }
func (m *Match) CurrentTick() uint64   { return m.tick.Load() }
func (m *Match) Tuning() tuning.Tuning { return m.cfg.Tuning }

func (m *Match) Metrics() Metrics {
	v, _ := m.metrics.Load().(Metrics)
	return v
}

// Tags is the feed inbox for capture reports.
func (m *Match) Tags() chan<- TagReport { return m.tags }

// Players is the feed inbox for player state.
func (m *Match) Players() chan<- PlayerUpdate { return m.players }

func (m *Match) SetTickLogger(l TickLogger) { m.tickLogger = l }

func (m *Match) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { m.snapshotSink = ch }

func (m *Match) SetTelemetry(t *telemetry.Match) { m.telemetry = t }

// OnNeutralisedSector registers a hook listener. Call before Run.
func (m *Match) OnNeutralisedSector(fn emit.HookListener) { m.dispatcher.OnNeutralisedSector(fn) }

// OnTick registers an in-process sink for every tick's events. Call before Run.
func (m *Match) OnTick(fn emit.Sink) { m.dispatcher.Subscribe(fn) }

// Scores returns a copy of the cumulative scoreboard. Only safe from the
// loop goroutine or while the match is not running.
func (m *Match) Scores() ScoreboardView { return m.scores.view() }

// Graph exposes the zone graph for tests and offline tools. Do not mutate it
// while the match is running.
func (m *Match) Graph() *zone.Graph { return m.graph }

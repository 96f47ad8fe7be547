package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     match.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	MatchID string
	Zones   int
	Players int
	Commits uint64
}

// Stats reports writer queue health.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A busy match produces one entry per tick; buffer a few minutes.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			players INTEGER NOT NULL,
			tags INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS owner_changes (
			tick INTEGER NOT NULL,
			zone INTEGER NOT NULL,
			prev_owner INTEGER NOT NULL,
			owner INTEGER NOT NULL,
			captured INTEGER NOT NULL,
			neutralised INTEGER NOT NULL,
			coins INTEGER NOT NULL,
			points REAL NOT NULL,
			PRIMARY KEY (tick, zone)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_owner_changes_zone_tick ON owner_changes(zone, tick);`,
		`CREATE TABLE IF NOT EXISTS coin_awards (
			tick INTEGER NOT NULL,
			player INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			PRIMARY KEY (tick, player)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_coin_awards_player ON coin_awards(player, tick);`,
		`CREATE TABLE IF NOT EXISTS point_awards (
			tick INTEGER NOT NULL,
			team INTEGER NOT NULL,
			amount REAL NOT NULL,
			PRIMARY KEY (tick, team)
		);`,
		`CREATE TABLE IF NOT EXISTS neutralisations (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			team INTEGER NOT NULL,
			zones INTEGER NOT NULL,
			zones_json TEXT NOT NULL,
			capped_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS rejected_tags (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			req_id TEXT NOT NULL,
			zone INTEGER NOT NULL,
			code TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS achievements (
			tick INTEGER NOT NULL,
			player INTEGER NOT NULL,
			achievement TEXT NOT NULL,
			PRIMARY KEY (player, achievement)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			match_id TEXT NOT NULL,
			zones INTEGER NOT NULL,
			players INTEGER NOT NULL,
			commits INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry match.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		MatchID: snap.Header.MatchID,
		Zones:   len(snap.Zones),
		Players: len(snap.Players),
		Commits: snap.Commits,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertConfig stores the tuning and map layout a match runs with. Digests
// are sha256 over the canonical JSON.
func (s *SQLiteIndex) UpsertConfig(matchID string, tune tuning.Tuning, layout any) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	var rows []kv
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", json: b})
	}
	if layout != nil {
		if b, err := json.Marshal(layout); err == nil {
			rows = append(rows, kv{name: "map", json: b})
		}
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('match_id',?)`, matchID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		sum := sha256.Sum256(r.json)
		if _, err := stmt.Exec(r.name, hex.EncodeToString(sum[:]), string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,players,tags,rejected,raw_json) VALUES(?,?,?,?,?,?)`)
	insertOwner, _ := s.db.Prepare(`INSERT OR REPLACE INTO owner_changes(tick,zone,prev_owner,owner,captured,neutralised,coins,points) VALUES(?,?,?,?,?,?,?,?)`)
	insertCoins, _ := s.db.Prepare(`INSERT OR REPLACE INTO coin_awards(tick,player,amount) VALUES(?,?,?)`)
	insertPoints, _ := s.db.Prepare(`INSERT OR REPLACE INTO point_awards(tick,team,amount) VALUES(?,?,?)`)
	insertNeutral, _ := s.db.Prepare(`INSERT OR REPLACE INTO neutralisations(tick,seq,team,zones,zones_json,capped_json) VALUES(?,?,?,?,?,?)`)
	insertReject, _ := s.db.Prepare(`INSERT OR REPLACE INTO rejected_tags(tick,seq,req_id,zone,code) VALUES(?,?,?,?,?)`)
	insertAchievement, _ := s.db.Prepare(`INSERT OR IGNORE INTO achievements(tick,player,achievement) VALUES(?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,match_id,zones,players,commits) VALUES(?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertTick, insertOwner, insertCoins, insertPoints, insertNeutral, insertReject, insertAchievement, insertSnapshot}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			s.writeTick(r.tick, exec, insertTick, insertOwner, insertCoins, insertPoints, insertNeutral, insertReject, insertAchievement)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.MatchID, sn.Zones, sn.Players, int64(sn.Commits))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func (s *SQLiteIndex) writeTick(e match.TickLogEntry, exec func(*sql.Stmt, ...any) bool, insertTick, insertOwner, insertCoins, insertPoints, insertNeutral, insertReject, insertAchievement *sql.Stmt) {
	tick := int64(e.Tick)
	raw, _ := json.Marshal(e)
	if !exec(insertTick, tick, e.Digest, len(e.Players), len(e.Tags), len(e.Rejected), string(raw)) {
		return
	}
	for i, rj := range e.Rejected {
		if !exec(insertReject, tick, i, rj.ReqID, int64(rj.Zone), rj.Code) {
			return
		}
	}
	for _, a := range e.Achievements {
		if !exec(insertAchievement, tick, int64(a.Player), a.Achievement) {
			return
		}
	}
	res := e.Result
	if res == nil {
		return
	}
	for _, z := range res.Zones {
		if !exec(insertOwner, tick, int64(z.Zone), z.Previous.Wire(), z.Owner.Wire(), boolInt(z.Captured), boolInt(z.Neutralised), z.Coins, z.Points) {
			return
		}
	}
	for _, c := range res.Coins {
		if !exec(insertCoins, tick, int64(c.Player), c.Amount) {
			return
		}
	}
	for _, p := range res.Points {
		if !exec(insertPoints, tick, int64(p.Team), p.Amount) {
			return
		}
	}
	for i, n := range res.Neutralised {
		zones, _ := json.Marshal(n.Zones)
		capped, _ := json.Marshal(n.Capped)
		if !exec(insertNeutral, tick, i, int64(n.Team), len(n.Zones), string(zones), string(capped)) {
			return
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

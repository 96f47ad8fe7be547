package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-match MATCH|-db PATH] [-limit N] [-zone Z] [-player P] snapshots|ticks|owners|coins|points|neutralisations|rejected|achievements|config"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	zoneID := fs.Int("zone", -1, "zone filter (owners)")
	player := fs.Int64("player", -1, "player filter (coins, achievements)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*matchID) == "" {
			fmt.Fprintln(os.Stderr, "missing -match or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "matches", *matchID, "index", "match.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	err = runQuery(db, os.Stdout, q, queryOpts{Limit: *limit, Zone: *zoneID, Player: *player})
	if err == errUnknownQuery {
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, dbUsage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type queryOpts struct {
	Limit  int
	Zone   int
	Player int64
}

var errUnknownQuery = fmt.Errorf("unknown query")

// runQuery prints one JSON object per row, newest first.
func runQuery(db *sql.DB, w io.Writer, q string, o queryOpts) error {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	var (
		query string
		args  []any
	)
	switch q {
	case "snapshots":
		query = `SELECT tick,path,match_id,zones,players,commits FROM snapshots ORDER BY tick DESC LIMIT ?`
	case "ticks":
		query = `SELECT tick,digest,players,tags,rejected FROM ticks ORDER BY tick DESC LIMIT ?`
	case "owners":
		if o.Zone >= 0 {
			query = `SELECT tick,zone,prev_owner,owner,captured,neutralised,coins,points FROM owner_changes WHERE zone=? ORDER BY tick DESC LIMIT ?`
			args = append(args, o.Zone)
		} else {
			query = `SELECT tick,zone,prev_owner,owner,captured,neutralised,coins,points FROM owner_changes ORDER BY tick DESC, zone LIMIT ?`
		}
	case "coins":
		if o.Player >= 0 {
			query = `SELECT tick,player,amount FROM coin_awards WHERE player=? ORDER BY tick DESC LIMIT ?`
			args = append(args, o.Player)
		} else {
			query = `SELECT tick,player,amount FROM coin_awards ORDER BY tick DESC, player LIMIT ?`
		}
	case "points":
		query = `SELECT tick,team,amount FROM point_awards ORDER BY tick DESC, team LIMIT ?`
	case "neutralisations":
		query = `SELECT tick,seq,team,zones,zones_json,capped_json FROM neutralisations ORDER BY tick DESC, seq LIMIT ?`
	case "rejected":
		query = `SELECT tick,seq,req_id,zone,code FROM rejected_tags ORDER BY tick DESC, seq LIMIT ?`
	case "achievements":
		if o.Player >= 0 {
			query = `SELECT tick,player,achievement FROM achievements WHERE player=? ORDER BY tick DESC LIMIT ?`
			args = append(args, o.Player)
		} else {
			query = `SELECT tick,player,achievement FROM achievements ORDER BY tick DESC, player LIMIT ?`
		}
	case "config":
		query = `SELECT name,digest,json,updated_at FROM config ORDER BY name LIMIT ?`
	default:
		return errUnknownQuery
	}
	args = append(args, o.Limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return printRows(w, rows)
}

// printRows encodes each row as an object keyed by column name.
func printRows(w io.Writer, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if strings.HasSuffix(c, "_json") {
				if s, ok := v.(string); ok && json.Valid([]byte(s)) {
					v = json.RawMessage(s)
				}
			}
			obj[c] = v
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/transport/ws"
)

func newMux(m *match.Match, wsSrv *ws.Server, idx runtimeIndex, enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(m, wsSrv, idx))

	if enableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				MatchID string               `json:"match_id"`
				Tick    uint64               `json:"tick"`
				Metrics match.Metrics        `json:"metrics"`
				Scores  match.ScoreboardView `json:"scores"`
			}{
				MatchID: m.ID(),
				Tick:    m.CurrentTick(),
				Metrics: m.Metrics(),
				Scores:  m.Scores(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := m.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	}
	if envBool("ZW_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func metricsHandler(m *match.Match, wsSrv *ws.Server, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		id := m.ID()
		mt := m.Metrics()
		tick := m.CurrentTick()
		if mt.Tick != 0 {
			tick = mt.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP zonewars_match_tick Current match tick.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_tick gauge\n")
		fmt.Fprintf(rw, "zonewars_match_tick{match=%q} %d\n", id, tick)

		fmt.Fprintf(rw, "# HELP zonewars_match_zones Zones on the map.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_zones gauge\n")
		fmt.Fprintf(rw, "zonewars_match_zones{match=%q} %d\n", id, mt.Zones)

		fmt.Fprintf(rw, "# HELP zonewars_match_players Players placed on the map.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_players gauge\n")
		fmt.Fprintf(rw, "zonewars_match_players{match=%q} %d\n", id, mt.Players)

		fmt.Fprintf(rw, "# HELP zonewars_match_commits Resolution passes committed to the zone graph.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_commits counter\n")
		fmt.Fprintf(rw, "zonewars_match_commits{match=%q} %d\n", id, mt.Commits)

		fmt.Fprintf(rw, "# HELP zonewars_match_clients Connected websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_clients gauge\n")
		fmt.Fprintf(rw, "zonewars_match_clients{match=%q} %d\n", id, wsSrv.Sessions())

		fmt.Fprintf(rw, "# HELP zonewars_match_queue_depth Inbox backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_queue_depth gauge\n")
		fmt.Fprintf(rw, "zonewars_match_queue_depth{match=%q,queue=%q} %d\n", id, "inbox", mt.Inbox)

		fmt.Fprintf(rw, "# HELP zonewars_match_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE zonewars_match_step_ms gauge\n")
		fmt.Fprintf(rw, "zonewars_match_step_ms{match=%q} %.3f\n", id, mt.StepMS)

		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP zonewars_index_queue_depth Index writer queue depth.\n")
			fmt.Fprintf(rw, "# TYPE zonewars_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "zonewars_index_queue_depth{match=%q} %d\n", id, s.QueueDepth)
			fmt.Fprintf(rw, "# HELP zonewars_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE zonewars_index_dropped_total counter\n")
			fmt.Fprintf(rw, "zonewars_index_dropped_total{match=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
			fmt.Fprintf(rw, "zonewars_index_dropped_total{match=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
		}
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

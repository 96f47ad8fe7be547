package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"zonewars.gg/internal/sim/match"
)

type stateResponse struct {
	MatchID string               `json:"match_id"`
	Tick    uint64               `json:"tick"`
	Metrics match.Metrics        `json:"metrics"`
	Scores  match.ScoreboardView `json:"scores"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the response body as-is")
	_ = fs.Parse(args)

	b, ok := adminRequest(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second)
	if *raw || !ok {
		fmt.Println(string(b))
		if !ok {
			os.Exit(1)
		}
		return
	}
	var st stateResponse
	if err := json.Unmarshal(b, &st); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	printState(os.Stdout, st)
}

func printState(w io.Writer, st stateResponse) {
	fmt.Fprintf(w, "match=%s tick=%d zones=%d players=%d clients=%d commits=%d step_ms=%.3f\n",
		st.MatchID, st.Tick, st.Metrics.Zones, st.Metrics.Players, st.Metrics.Subscribers, st.Metrics.Commits, st.Metrics.StepMS)
	for _, t := range st.Scores.Teams {
		fmt.Fprintf(w, "team %d: %.2f points\n", t.Team, t.Points)
	}
	for _, p := range st.Scores.Players {
		fmt.Fprintf(w, "player %d: %d coins\n", p.Player, p.Coins)
	}
	for _, a := range st.Scores.Achievements {
		fmt.Fprintf(w, "player %d: %s at tick %d\n", a.Player, a.Achievement, a.Tick)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	b, ok := adminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", 10*time.Second)
	fmt.Println(string(b))
	if !ok {
		os.Exit(1)
	}
}

func adminRequest(method, baseURL, path string, timeout time.Duration) ([]byte, bool) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return []byte("request: " + err.Error()), false
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return b, resp.StatusCode/100 == 2
}

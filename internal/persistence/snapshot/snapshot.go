package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	MatchID string `json:"match_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	MapName  string `json:"map_name,omitempty"`
	TickRate int    `json:"tick_rate_hz"`

	// Operational parameters (captured for deterministic replay/resume).
	SnapshotEveryTicks          int       `json:"snapshot_every_ticks,omitempty"`
	MaxTagsPerTick              int       `json:"max_tags_per_tick,omitempty"`
	NeutraliserAchievementZones int       `json:"neutraliser_achievement_zones,omitempty"`
	Rewards                     RewardsV1 `json:"rewards"`

	Zones        []ZoneV1        `json:"zones"`
	Players      []PlayerV1      `json:"players,omitempty"`
	Coins        []CoinV1        `json:"coins,omitempty"`
	Points       []PointV1       `json:"points,omitempty"`
	Achievements []AchievementV1 `json:"achievements,omitempty"`
	Commits      uint64          `json:"commits"`
}

type RewardsV1 struct {
	CoinsPerZoneNeutralised int64 `json:"coins_per_zone_neutralised"`
	CoinsPerNeutralCap      int64 `json:"coins_per_neutral_cap"`
	CoinsPerEnemyCap        int64 `json:"coins_per_enemy_cap"`
	AssistFactorPermille    int64 `json:"assist_factor_permille"`
}

type ZoneV1 struct {
	ID   int32  `json:"id"`
	Name string `json:"name,omitempty"`
	// Owner is the team id, or -1 for neutral.
	Owner    int     `json:"owner"`
	Dark     bool    `json:"dark,omitempty"`
	Adjacent []int32 `json:"adjacent,omitempty"`
}

type PlayerV1 struct {
	ID   uint32 `json:"id"`
	Team uint16 `json:"team"`
	Zone int32  `json:"zone"`
	Dead bool   `json:"dead,omitempty"`
}

type CoinV1 struct {
	Player uint32 `json:"player"`
	Amount int64  `json:"amount"`
}

type PointV1 struct {
	Team   uint16  `json:"team"`
	Amount float64 `json:"amount"`
}

type AchievementV1 struct {
	Player      uint32 `json:"player"`
	Achievement string `json:"achievement"`
	Tick        uint64 `json:"tick"`
}

// FileName is the canonical snapshot name for a tick inside a snapshots dir.
func FileName(tick uint64) string {
	return fmt.Sprintf("%d.snap.zst", tick)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// List returns the ticks of every snapshot in dir, ascending.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}

// Latest returns the path of the newest snapshot in dir, or "" if none.
func Latest(dir string) (string, error) {
	ticks, err := List(dir)
	if err != nil || len(ticks) == 0 {
		return "", err
	}
	return filepath.Join(dir, FileName(ticks[len(ticks)-1])), nil
}

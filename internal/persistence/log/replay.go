package log

import (
	"errors"
	"fmt"
	"path/filepath"

	"zonewars.gg/internal/sim/match"
)

// ReplayOptions bounds a replay. Zero values mean "from the match's current
// tick" and "to the end of the log".
type ReplayOptions struct {
	VerifyFrom uint64
	ToTick     uint64
}

type ReplayResult struct {
	Stepped  uint64
	Checked  uint64
	LastTick uint64
}

var errReplayDone = errors.New("replay done")

// Replay re-steps m through the tick log in dir, comparing each digest with
// the one recorded. Entries before m's current tick are skipped, so m may be
// fresh or restored from a snapshot.
func Replay(m *match.Match, dir string, opts ReplayOptions) (ReplayResult, error) {
	var res ReplayResult
	files, err := ListEventFiles(dir)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no events files found in %s", dir)
	}

	startTick := m.CurrentTick()
	verifyFrom := opts.VerifyFrom
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	for _, path := range files {
		name := filepath.Base(path)
		err := ReadTicks(path, func(entry match.TickLogEntry) (bool, error) {
			if entry.Tick < startTick {
				return true, nil
			}
			if opts.ToTick != 0 && entry.Tick > opts.ToTick {
				return false, errReplayDone
			}
			if entry.Tick != m.CurrentTick() {
				return false, fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", m.CurrentTick(), entry.Tick, name)
			}

			tick, digest := m.StepOnce(entry.Players, entry.Tags)
			if tick != entry.Tick {
				return false, fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, name)
			}
			res.Stepped++
			res.LastTick = tick
			if tick >= verifyFrom {
				res.Checked++
				if digest != entry.Digest {
					return false, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			return true, nil
		})
		if errors.Is(err, errReplayDone) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

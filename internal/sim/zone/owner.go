package zone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ZoneID addresses a zone in the arena. Ids are dense, starting at 0.
type ZoneID int32

type TeamID uint16

type PlayerID uint32

// Owner is either Neutral or a team. The zero value is Neutral.
type Owner struct {
	team  TeamID
	owned bool
}

func Neutral() Owner { return Owner{} }

func TeamOwner(t TeamID) Owner { return Owner{team: t, owned: true} }

func (o Owner) Team() (TeamID, bool) { return o.team, o.owned }

func (o Owner) IsNeutral() bool { return !o.owned }

// IsTeam reports whether o is owned by t.
func (o Owner) IsTeam(t TeamID) bool { return o.owned && o.team == t }

func (o Owner) String() string {
	if !o.owned {
		return "neutral"
	}
	return "team:" + strconv.FormatUint(uint64(o.team), 10)
}

// MarshalJSON encodes Neutral as null and a team as its number.
func (o Owner) MarshalJSON() ([]byte, error) {
	if !o.owned {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(uint64(o.team), 10)), nil
}

func (o *Owner) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = Neutral()
		return nil
	}
	var n uint16
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	*o = TeamOwner(TeamID(n))
	return nil
}

// OwnerFromWire maps the snapshot/log encoding (-1 = neutral) back to an Owner.
func OwnerFromWire(v int) (Owner, error) {
	switch {
	case v == -1:
		return Neutral(), nil
	case v >= 0 && v <= 0xFFFF:
		return TeamOwner(TeamID(v)), nil
	default:
		return Owner{}, fmt.Errorf("owner out of range: %d", v)
	}
}

// Wire is the inverse of OwnerFromWire.
func (o Owner) Wire() int {
	if !o.owned {
		return -1
	}
	return int(o.team)
}

package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Role            string `json:"role"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Role            string      `json:"role"`
	MatchID         string      `json:"match_id"`
	Tick            uint64      `json:"tick"`
	MatchParams     MatchParams `json:"match_params"`
}

type MatchParams struct {
	TickRateHz   int    `json:"tick_rate_hz"`
	MapName      string `json:"map_name,omitempty"`
	Zones        int    `json:"zones"`
	TuningDigest string `json:"tuning_digest,omitempty"`
}

// TAG (feed -> server): one zone capture produced by gameplay.
// A missing new_owner means the zone is neutralised.
type TagMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	Zone            int32    `json:"zone"`
	NewOwner        *uint16  `json:"new_owner,omitempty"`
	Tagger          *uint32  `json:"tagger,omitempty"`
	Assisters       []uint32 `json:"assisters,omitempty"`
}

// PLAYER (feed -> server): where a player is and whether it is alive.
type PlayerMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Player          uint32 `json:"player"`
	Team            uint16 `json:"team"`
	Zone            int32  `json:"zone"`
	Dead            bool   `json:"dead,omitempty"`
	Left            bool   `json:"left,omitempty"`
}

// TICK_EVENTS (server -> client): everything a resolution pass produced.
type TickEventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	MatchID         string  `json:"match_id"`
	Tick            uint64  `json:"tick"`
	Digest          string  `json:"digest"`
	Events          []Event `json:"events"`
}

// Event is one plain-data event. Keys depend on "type".
type Event map[string]interface{}

// Event types carried in TICK_EVENTS.
const (
	EventZoneOwnerChanged    = "ZONE_OWNER_CHANGED"
	EventPlayerCoinsAwarded  = "PLAYER_COINS_AWARDED"
	EventTeamPointsAwarded   = "TEAM_POINTS_AWARDED"
	EventSectorNeutralised   = "SECTOR_NEUTRALISED"
	EventAchievementUnlocked = "ACHIEVEMENT_UNLOCKED"
)

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
	MatchID         string `json:"match_id,omitempty"`
}

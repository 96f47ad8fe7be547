package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/zone"
)

type Server struct {
	match *match.Match
	log   zerolog.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(m *match.Match, logger zerolog.Logger) *Server {
	s := &Server{
		match: m,
		log:   logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

type session struct {
	id   string
	role string
	acks chan protocol.AckMsg
	log  zerolog.Logger
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, maxQ := s.handshake(conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		sess.log.Info().Str("role", sess.role).Msg("session open")

		events, unsubscribe := s.match.Subscribe(maxQ)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					b = ev
				case ack := <-sess.acks:
					var err error
					if b, err = json.Marshal(ack); err != nil {
						continue
					}
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					_ = conn.Close()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleMessage(sess, msg)
		}
		sess.log.Info().Msg("session closed")
	}
}

func (s *Server) handleMessage(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		sess.reject("", protocol.ErrProtoBadRequest, "invalid json", s.match)
		return
	}
	switch base.Type {
	case protocol.TypeTag, protocol.TypePlayer:
	default:
		sess.reject("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type, s.match)
		return
	}
	if sess.role != protocol.RoleFeed {
		sess.reject(reqIDOf(msg), protocol.ErrNoPermission, "observers cannot submit "+base.Type, s.match)
		return
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		sess.reject(reqIDOf(msg), protocol.ErrProtoBadRequest, err.Error(), s.match)
		return
	}
	if base.ProtocolVersion != protocol.Version {
		sess.reject(reqIDOf(msg), protocol.ErrProtoBadRequest, "bad protocol_version", s.match)
		return
	}

	switch base.Type {
	case protocol.TypeTag:
		var t protocol.TagMsg
		if err := json.Unmarshal(msg, &t); err != nil {
			sess.reject("", protocol.ErrProtoBadRequest, err.Error(), s.match)
			return
		}
		rep := TagReportFromMsg(t)
		rep.Reply = sess.acks
		select {
		case s.match.Tags() <- rep:
		default:
			sess.reject(t.ReqID, protocol.ErrMatchBusy, "tag inbox full", s.match)
		}
	case protocol.TypePlayer:
		var p protocol.PlayerMsg
		if err := json.Unmarshal(msg, &p); err != nil {
			sess.reject("", protocol.ErrProtoBadRequest, err.Error(), s.match)
			return
		}
		select {
		case s.match.Players() <- PlayerUpdateFromMsg(p):
		default:
			sess.reject(p.ReqID, protocol.ErrMatchBusy, "player inbox full", s.match)
		}
	}
}

// reject queues an ACK without blocking the reader; a full queue drops it.
func (sess *session) reject(reqID, code, message string, m *match.Match) {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        false,
		Code:            code,
		Message:         message,
		ServerTick:      m.CurrentTick(),
		MatchID:         m.ID(),
	}
	select {
	case sess.acks <- ack:
	default:
		sess.log.Debug().Str("code", code).Msg("ack dropped")
	}
}

func reqIDOf(msg []byte) string {
	var v struct {
		ReqID string `json:"req_id"`
	}
	_ = json.Unmarshal(msg, &v)
	return v.ReqID
}

// TagReportFromMsg converts a wire TAG. An absent new_owner neutralises.
func TagReportFromMsg(t protocol.TagMsg) match.TagReport {
	ev := capture.Event{Zone: zone.ZoneID(t.Zone), NewOwner: zone.Neutral()}
	if t.NewOwner != nil {
		ev.NewOwner = zone.TeamOwner(zone.TeamID(*t.NewOwner))
	}
	if t.Tagger != nil {
		p := zone.PlayerID(*t.Tagger)
		ev.Tagger = &p
	}
	for _, a := range t.Assisters {
		ev.Assisters = append(ev.Assisters, zone.PlayerID(a))
	}
	return match.TagReport{ReqID: t.ReqID, Event: ev}
}

func PlayerUpdateFromMsg(p protocol.PlayerMsg) match.PlayerUpdate {
	return match.PlayerUpdate{
		Player: zone.PlayerID(p.Player),
		Team:   zone.TeamID(p.Team),
		Zone:   zone.ZoneID(p.Zone),
		Dead:   p.Dead,
		Left:   p.Left,
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*session, int) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, 0
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil, 0
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return nil, 0
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, 0
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil, 0
	}
	if hello.ClientName == "" {
		hello.ClientName = hello.Role
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	sess := &session{
		id:   uuid.NewString(),
		role: hello.Role,
		acks: make(chan protocol.AckMsg, maxQ),
	}
	sess.log = s.log.With().Str("session", sess.id).Str("client", hello.ClientName).Logger()

	tune := s.match.Tuning()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Role:            sess.role,
		MatchID:         s.match.ID(),
		Tick:            s.match.CurrentTick(),
		MatchParams: protocol.MatchParams{
			TickRateHz:   tune.TickRateHz,
			MapName:      s.match.MapName(),
			Zones:        s.match.NumZones(),
			TuningDigest: tune.Digest(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, 0
	}
	return sess, maxQ
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"zonewars.gg/internal/logging"
	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/zone"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		mapPath = flag.String("map", "./configs/map.yaml", "map layout the server runs")
		team    = flag.Uint("team", 1, "team the bot plays for")
		players = flag.Uint("players", 3, "squad size")
		base    = flag.Uint("player_base", 100, "first player id of the squad")
		every   = flag.Uint64("every", 20, "ticks between tags")
		seed    = flag.Int64("seed", 1, "rng seed")
	)
	flag.Parse()

	logger := logging.New(os.Stdout, "info", "console", "bot")

	layout, err := zone.LoadLayout(*mapPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load map")
	}
	p := newPlanner(layout, zone.TeamID(*team))
	squad := make([]uint32, *players)
	for i := range squad {
		squad[i] = uint32(*base) + uint32(i)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            protocol.RoleFeed,
		ClientName:      *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, log: logger, plan: p, squad: squad, every: *every, rng: rand.New(rand.NewSource(*seed))}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.handle(msg)
	}
}

type bot struct {
	conn  *websocket.Conn
	log   zerolog.Logger
	plan  *planner
	squad []uint32
	every uint64
	rng   *rand.Rand
	seq   int
}

func (b *bot) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.log.Info().Str("session", w.SessionID).Str("match", w.MatchID).Int("zones", w.MatchParams.Zones).Msg("WELCOME")

	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(msg, &a); err != nil {
			return
		}
		b.log.Warn().Str("req", a.AckFor).Str("code", a.Code).Str("message", a.Message).Msg("tag rejected")

	case protocol.TypeTickEvents:
		var te protocol.TickEventsMsg
		if err := json.Unmarshal(msg, &te); err != nil {
			return
		}
		b.plan.apply(te.Events)
		if te.Tick%b.every == 0 {
			b.attack(te.Tick)
		}
	}
}

// attack moves the squad onto a frontier zone and tags it.
func (b *bot) attack(tick uint64) {
	target, ok := b.plan.next(b.rng)
	if !ok {
		return
	}
	team := uint16(b.plan.team)
	for _, pid := range b.squad {
		_ = b.conn.WriteJSON(protocol.PlayerMsg{
			Type:            protocol.TypePlayer,
			ProtocolVersion: protocol.Version,
			Player:          pid,
			Team:            team,
			Zone:            int32(target),
		})
	}
	b.seq++
	tagger := b.squad[0]
	_ = b.conn.WriteJSON(protocol.TagMsg{
		Type:            protocol.TypeTag,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("T_%d_%d", tick, b.seq),
		Zone:            int32(target),
		NewOwner:        &team,
		Tagger:          &tagger,
		Assisters:       b.squad[1:],
	})
	b.log.Debug().Uint64("tick", tick).Int32("zone", int32(target)).Msg("tag")
}

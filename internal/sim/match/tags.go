package match

import (
	"errors"

	"zonewars.gg/internal/protocol"
	"zonewars.gg/internal/sim/capture"
)

// CodeFor maps a capture error to a protocol error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, capture.ErrDuplicateCapture):
		return protocol.ErrConflict
	case errors.Is(err, capture.ErrNoOpCapture):
		return protocol.ErrBadRequest
	case errors.Is(err, capture.ErrUseAfterFinalize):
		return protocol.ErrStale
	case errors.Is(err, capture.ErrUnknownZone):
		return protocol.ErrInvalidTarget
	default:
		return protocol.ErrInternal
	}
}

// screenTags stages tags in arrival order. A rejected tag would abort the
// whole pass, so it is dropped and the resolver rebuilt from the tags
// accepted so far. Tags past the per-tick cap are rejected unseen.
func (m *Match) screenTags(tags []TagReport) (*capture.Resolver, []TagReport, []RejectedTag) {
	rewards := m.cfg.Tuning.Rewards
	r := capture.NewResolver(m.graph, rewards)

	limit := m.cfg.Tuning.MaxTagsPerTick
	var accepted []TagReport
	var rejected []RejectedTag
	for i, t := range tags {
		if limit > 0 && i >= limit {
			rejected = append(rejected, RejectedTag{ReqID: t.ReqID, Zone: t.Event.Zone, Code: protocol.ErrRateLimit, index: i})
			continue
		}
		err := r.Mark(t.Event)
		if err == nil {
			accepted = append(accepted, t)
			continue
		}
		rejected = append(rejected, RejectedTag{ReqID: t.ReqID, Zone: t.Event.Zone, Code: CodeFor(err), index: i})
		m.rejectLog.Debug().Err(err).Str("req_id", t.ReqID).Int32("zone", int32(t.Event.Zone)).Msg("tag rejected")

		r = capture.NewResolver(m.graph, rewards)
		for _, a := range accepted {
			if err := r.Mark(a.Event); err != nil {
				// Same sequence was accepted a moment ago.
				panic("match: replaying accepted tags failed: " + err.Error())
			}
		}
	}
	return r, accepted, rejected
}

func (m *Match) ackRejected(tick uint64, tags []TagReport, rejected []RejectedTag) {
	for _, rj := range rejected {
		t := tags[rj.index]
		if t.Reply == nil {
			continue
		}
		ack := protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          t.ReqID,
			Accepted:        false,
			Code:            rj.Code,
			ServerTick:      tick,
			MatchID:         m.cfg.ID,
		}
		select {
		case t.Reply <- ack:
		default:
		}
	}
}

// Package capture resolves one tick's zone captures into final ownership,
// sector neutralisation and rewards.
package capture

import (
	"sort"

	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
)

// Event is one zone capture reported by gameplay for the current tick.
type Event struct {
	Zone      zone.ZoneID     `json:"zone"`
	NewOwner  zone.Owner      `json:"new_owner"`
	Tagger    *zone.PlayerID  `json:"tagger,omitempty"`
	Assisters []zone.PlayerID `json:"assisters,omitempty"`
}

type marked struct {
	Event
	previous zone.Owner
}

// Resolver runs a single resolution pass. Lifecycle: open, accepting marks,
// then finalized. A resolver is bound to one graph snapshot and discarded
// after its result is committed. Not safe for concurrent use.
type Resolver struct {
	graph   Graph
	rewards tuning.Rewards

	// Captures staged this pass; consulted before the committed owner.
	stagedOwners map[zone.ZoneID]zone.Owner
	marks        []marked

	finalized bool
	committed bool
	err       error
	result    *Result
}

// NewResolver opens a pass over g. One resolver serves one tick.
func NewResolver(g Graph, r tuning.Rewards) *Resolver {
	return &Resolver{
		graph:        g,
		rewards:      r,
		stagedOwners: map[zone.ZoneID]zone.Owner{},
	}
}

// Mark is MarkZoneCaptured for a prepared Event.
func (r *Resolver) Mark(ev Event) error {
	return r.MarkZoneCaptured(ev.Zone, ev.NewOwner, ev.Tagger, ev.Assisters)
}

// MarkZoneCaptured stages a capture. Any error aborts the pass: the failing
// capture is not staged and Finalize will return the same error.
func (r *Resolver) MarkZoneCaptured(id zone.ZoneID, newOwner zone.Owner, tagger *zone.PlayerID, assisters []zone.PlayerID) error {
	if r.finalized {
		return &CaptureError{Zone: id, Err: ErrUseAfterFinalize}
	}
	if r.err != nil {
		return r.err
	}
	if id < 0 || int(id) >= r.graph.NumZones() {
		return r.fail(id, ErrUnknownZone)
	}
	if _, dup := r.stagedOwners[id]; dup {
		return r.fail(id, ErrDuplicateCapture)
	}
	prev := r.stagedOwner(id)
	if newOwner == prev {
		return r.fail(id, ErrNoOpCapture)
	}

	ev := Event{Zone: id, NewOwner: newOwner, Assisters: append([]zone.PlayerID(nil), assisters...)}
	if tagger != nil {
		t := *tagger
		ev.Tagger = &t
	}
	r.stagedOwners[id] = newOwner
	r.marks = append(r.marks, marked{Event: ev, previous: prev})
	return nil
}

func (r *Resolver) fail(id zone.ZoneID, err error) error {
	r.err = &CaptureError{Zone: id, Err: err}
	return r.err
}

func (r *Resolver) stagedOwner(id zone.ZoneID) zone.Owner {
	if o, ok := r.stagedOwners[id]; ok {
		return o
	}
	return r.graph.CommittedOwner(id)
}

// Finalize resolves the pass on first call and returns the cached outcome on
// every later call.
func (r *Resolver) Finalize() (*Result, error) {
	if r.finalized {
		return r.result, r.err
	}
	r.finalized = true
	if r.err != nil {
		return nil, r.err
	}
	r.result = r.resolve()
	return r.result, nil
}

// Commit writes the finalized owners back to the graph. It finalizes first if
// needed and may succeed only once.
func (r *Resolver) Commit(c Committer) error {
	res, err := r.Finalize()
	if err != nil {
		return err
	}
	if r.committed {
		return ErrAlreadyCommitted
	}
	if res.Empty() {
		r.committed = true
		return nil
	}
	if err := c.Commit(res.OwnerChanges()); err != nil {
		return err
	}
	r.committed = true
	return nil
}

func (r *Resolver) resolve() *Result {
	if len(r.marks) == 0 {
		return &Result{}
	}

	// Process captures in ascending zone order, independent of mark order.
	caps := append([]marked(nil), r.marks...)
	sort.Slice(caps, func(i, j int) bool { return caps[i].Zone < caps[j].Zone })

	sectors := ConnectedSectors(r.graph, r.stagedOwner)

	// Discovery index of a lost sector -> its index in lost.
	lostIn := map[int]int{}
	var lost []NeutralisedSector
	for _, team := range sectors.Teams() {
		list := sectors.ByTeam(team)
		if len(list) < 2 {
			continue
		}
		keep := Keeper(r.graph, list)
		for i, s := range list {
			if i == keep {
				continue
			}
			at, _ := sectors.SectorOf(s.Zones[0])
			lostIn[at] = len(lost)
			lost = append(lost, NeutralisedSector{Team: team, Zones: s.Zones})
		}
	}

	// A capture caused a split if it took a zone from the losing team and
	// borders the lost sector.
	for _, c := range caps {
		prevTeam, owned := c.previous.Team()
		if !owned {
			continue
		}
		for _, nb := range r.graph.AdjacentZones(c.Zone) {
			at, ok := sectors.SectorOf(nb)
			if !ok {
				continue
			}
			idx, ok := lostIn[at]
			if !ok || lost[idx].Team != prevTeam {
				continue
			}
			if k := len(lost[idx].Capped); k > 0 && lost[idx].Capped[k-1] == c.Zone {
				continue
			}
			lost[idx].Capped = append(lost[idx].Capped, c.Zone)
		}
	}

	rewards := make([]CaptureReward, len(caps))
	for i, c := range caps {
		rewards[i] = CaptureReward{
			Zone:      c.Zone,
			Previous:  c.previous,
			NewOwner:  c.NewOwner,
			Tagger:    c.Tagger,
			Assisters: c.Assisters,
		}
		rewards[i].CreditTeam, rewards[i].HasCreditTeam = r.creditTeam(c.Event)
	}
	losses := make([]SectorLoss, len(lost))
	for i, s := range lost {
		losses[i] = SectorLoss{Team: s.Team, Size: len(s.Zones), Capped: s.Capped}
	}
	alloc := Allocate(rewards, losses, r.rewards)

	outcomes := map[zone.ZoneID]*ZoneOutcome{}
	for i, c := range caps {
		outcomes[c.Zone] = &ZoneOutcome{
			Zone:     c.Zone,
			Previous: c.previous,
			Owner:    c.NewOwner,
			Captured: true,
			Coins:    alloc.Zones[i].Coins,
			Points:   alloc.Zones[i].Points,
		}
	}
	for _, s := range lost {
		for _, id := range s.Zones {
			o, ok := outcomes[id]
			if !ok {
				o = &ZoneOutcome{Zone: id, Previous: r.graph.CommittedOwner(id)}
				outcomes[id] = o
			}
			o.Owner = zone.Neutral()
			o.Neutralised = true
		}
	}
	zones := make([]ZoneOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		zones = append(zones, *o)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Zone < zones[j].Zone })

	return &Result{
		zones:       zones,
		coins:       alloc.Coins,
		points:      alloc.Points,
		hooks:       alloc.Hooks,
		neutralised: lost,
	}
}

// creditTeam picks the team whose score a capture counts towards: the new
// owner, or for a neutralising capture the tagger's team.
func (r *Resolver) creditTeam(ev Event) (zone.TeamID, bool) {
	if t, ok := ev.NewOwner.Team(); ok {
		return t, true
	}
	if ev.Tagger == nil {
		return 0, false
	}
	return r.graph.PlayerTeam(*ev.Tagger)
}

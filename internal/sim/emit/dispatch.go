package emit

// HookListener is called once per SectorNeutralisedHook.
type HookListener func(SectorNeutralisedHook)

// Sink receives the events of every finalized pass.
type Sink func(tick uint64, ev Events)

// Dispatcher fans events out to registered listeners in registration order.
// Not safe for concurrent registration; register before the match runs.
type Dispatcher struct {
	hooks []HookListener
	sinks []Sink
}

func (d *Dispatcher) OnNeutralisedSector(fn HookListener) {
	if fn != nil {
		d.hooks = append(d.hooks, fn)
	}
}

func (d *Dispatcher) Subscribe(fn Sink) {
	if fn != nil {
		d.sinks = append(d.sinks, fn)
	}
}

// Dispatch invokes hook listeners for each hook, then every sink once.
func (d *Dispatcher) Dispatch(tick uint64, ev Events) {
	for _, h := range ev.Hooks {
		for _, fn := range d.hooks {
			fn(h)
		}
	}
	for _, fn := range d.sinks {
		fn(tick, ev)
	}
}

package plug

import (
	"fmt"
	"log/slog"
	"reflect"
)

// slotEntry is one installed plugin: its type-erased state, the type tags
// every envelope is validated against, and the update/subscription thunks
// monomorphized against the concrete plugin type at install time.
type slotEntry struct {
	index   int
	name    string
	state   any
	msgType reflect.Type
	outType reflect.Type
	update  func(state, payload any) (any, Cmd[Envelope], *OutputEnvelope)
	subs    func(state any) []Sub[Envelope]
}

// Registry is an ordered collection of installed plugin slots. It
// exclusively owns every plugin's state; handles carry only a slot index
// and a reference to the shared Fanout, so all state mutation flows
// through Update.
//
// Installation is a single-threaded setup-phase operation and Update must
// be called serially by the host's event loop. The registry itself does no
// locking; the Fanout is the only internally-synchronised structure.
type Registry struct {
	slots  []*slotEntry
	fanout *Fanout
	logger *slog.Logger
}

// New creates an empty registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{fanout: newFanout(logger), logger: logger}
}

func newRegistry(logger *slog.Logger, fanout *Fanout) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{fanout: fanout, logger: logger}
}

// Install adds a plugin to the registry, assigning it the next slot index.
// It calls the plugin's Init, stores the erased state and thunks, and
// returns a typed handle bound to the new slot together with the plugin's
// startup effect, already wrapped for routing. Slot indices are assigned
// in installation order and never reused.
func Install[S, M, O any](r *Registry, p Plugin[S, M, O]) (Handle[S, M, O], Cmd[Envelope]) {
	index := len(r.slots)
	msgType := reflect.TypeFor[M]()
	outType := reflect.TypeFor[O]()

	state, startup := p.Init()

	wrap := func(m M) Envelope { return newEnvelope(index, m, msgType) }

	entry := &slotEntry{
		index:   index,
		name:    p.Name(),
		state:   state,
		msgType: msgType,
		outType: outType,
	}

	entry.update = func(state, payload any) (any, Cmd[Envelope], *OutputEnvelope) {
		msg, ok := payload.(M)
		if !ok {
			// Unreachable through the typed API; the tag check in
			// Update already rejected the envelope.
			return state, nil, nil
		}
		s := state.(S)
		cmd, out := p.Update(&s, msg)
		var oe *OutputEnvelope
		if out != nil {
			oe = &OutputEnvelope{slot: index, payload: *out, typ: outType}
		}
		return s, MapCmd(cmd, wrap), oe
	}

	entry.subs = func(state any) []Sub[Envelope] {
		subs := p.Subscriptions(state.(S))
		tagged := make([]Sub[Envelope], 0, len(subs))
		for _, sub := range subs {
			wrapped := MapSub(sub, wrap)
			wrapped.ID = fmt.Sprintf("plug/%d/%s", index, sub.ID)
			tagged = append(tagged, wrapped)
		}
		return tagged
	}

	r.slots = append(r.slots, entry)
	r.logger.Debug("plugin installed", "name", entry.name, "slot", index)

	h := Handle[S, M, O]{slot: index, name: entry.name, msgType: msgType, fanout: r.fanout}
	return h, MapCmd(startup, wrap)
}

// Update routes an inbound envelope to the slot it addresses, applies the
// plugin's update, publishes any output to the slot's listeners, and
// returns the resulting effect. Envelopes addressed out of range or
// carrying a payload of the wrong type are silently dropped: the typed
// Handle API cannot construct either, so both are programmer errors at the
// erased boundary and the policy is a no-op rather than a fault.
//
// Update must be invoked one envelope at a time by the host's event loop;
// a slot's state transitions are strictly sequential.
func (r *Registry) Update(env Envelope) Cmd[Envelope] {
	if env.slot < 0 || env.slot >= len(r.slots) {
		r.logger.Debug("dropping envelope for unknown slot", "slot", env.slot)
		return nil
	}
	entry := r.slots[env.slot]
	if env.typ != entry.msgType {
		r.logger.Debug("dropping envelope with mismatched message type",
			"plugin", entry.name, "slot", env.slot,
			"want", entry.msgType.String(), "got", env.typ.String())
		return nil
	}

	state, cmd, out := entry.update(entry.state, env.payload)
	entry.state = state

	if out != nil {
		r.fanout.publish(*out)
	}
	return cmd
}

// Subscriptions collects every slot's event sources, each wrapped to
// deliver slot-tagged envelopes and identified with a slot-prefixed ID.
// The host passes the result to Runner.Sync after every update; identities
// are stable, so unchanged sources keep running.
func (r *Registry) Subscriptions() []Sub[Envelope] {
	var subs []Sub[Envelope]
	for _, entry := range r.slots {
		subs = append(subs, entry.subs(entry.state)...)
	}
	return subs
}

// Len returns the number of installed plugins.
func (r *Registry) Len() int { return len(r.slots) }

// Names returns the installed plugin names in slot order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.slots))
	for i, entry := range r.slots {
		names[i] = entry.name
	}
	return names
}

// StateOf returns a copy of the state of the first installed plugin whose
// state type is S. It is the read-only escape hatch for rendering current
// plugin state outside the message-passing path.
func StateOf[S any](r *Registry) (S, bool) {
	want := reflect.TypeFor[S]()
	for _, entry := range r.slots {
		if reflect.TypeOf(entry.state) == want {
			return entry.state.(S), true
		}
	}
	var zero S
	return zero, false
}

// NamedStateOf is StateOf restricted to the plugin with the given name.
func NamedStateOf[S any](r *Registry, name string) (S, bool) {
	want := reflect.TypeFor[S]()
	for _, entry := range r.slots {
		if entry.name == name && reflect.TypeOf(entry.state) == want {
			return entry.state.(S), true
		}
	}
	var zero S
	return zero, false
}

// MutateState gives fn exclusive access to the state of the first plugin
// whose state type is S. It is an escape hatch for host glue that needs
// synchronous mutation outside the message-passing path; ordinary
// mutation goes through Update. The host must not call it concurrently
// with Update.
func MutateState[S any](r *Registry, fn func(*S)) bool {
	want := reflect.TypeFor[S]()
	for _, entry := range r.slots {
		if reflect.TypeOf(entry.state) == want {
			s := entry.state.(S)
			fn(&s)
			entry.state = s
			return true
		}
	}
	return false
}

// HandleOf returns a handle bound to the first installed plugin with the
// given state, message, and output types, for hosts that need post-hoc
// access to a plugin installed elsewhere.
func HandleOf[S, M, O any](r *Registry) (Handle[S, M, O], bool) {
	stateType := reflect.TypeFor[S]()
	msgType := reflect.TypeFor[M]()
	outType := reflect.TypeFor[O]()
	for _, entry := range r.slots {
		if entry.msgType == msgType && entry.outType == outType && reflect.TypeOf(entry.state) == stateType {
			return Handle[S, M, O]{slot: entry.index, name: entry.name, msgType: msgType, fanout: r.fanout}, true
		}
	}
	return Handle[S, M, O]{}, false
}

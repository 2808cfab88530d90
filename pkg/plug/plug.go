// Package plug is a type-safe plugin orchestration runtime for Bubble Tea
// applications. Independently-authored plugins, each with a private state,
// message, and output type, are installed into a Registry that routes
// type-erased envelopes back to the owning plugin, fans plugin outputs out
// to listeners, and merges every plugin's event sources into one set the
// host re-synchronises once per update.
//
// The host embeds exactly one Envelope case in its own message handling:
//
//	case plug.Envelope:
//		cmd := m.registry.Update(msg)
//		m.runner.Sync(m.registry.Subscriptions())
//		return m, m.runner.Cmd(plug.HostCmd(cmd))
//
// Typed access goes through a Handle obtained at install time.
package plug

// Plugin is the contract every plugin implements. S is the plugin's private
// state type, M its private message type, and O the output type it exposes
// to listeners. A plugin value itself must be stateless or immutable; all
// mutable state lives in S, owned by the registry slot.
type Plugin[S, M, O any] interface {
	// Name returns a stable, process-unique identifier used for
	// diagnostics and lookup by name.
	Name() string

	// Init produces the plugin's initial state and an optional startup
	// effect. Init must not block; any I/O belongs in the returned Cmd.
	Init() (S, Cmd[M])

	// Update is the plugin's sole mutation point. It must not block;
	// long-running work is described by the returned Cmd and executed by
	// the Runner. A non-nil output is fanned out to this plugin's
	// listeners before Update's effect runs.
	Update(state *S, msg M) (Cmd[M], *O)

	// Subscriptions returns the plugin's live event sources for the
	// current state. It is re-evaluated after every update, so it must be
	// cheap and idempotent: equivalent state must yield subs with equal
	// identities, or the Runner will tear sources down and restart them.
	Subscriptions(state S) []Sub[M]
}

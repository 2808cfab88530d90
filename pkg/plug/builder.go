package plug

import (
	"log/slog"
	"reflect"
)

// Builder accumulates plugins at construction time and defers all registry
// mutation — including every plugin's Init — until Build. Handles returned
// by Add are bound to their final slot index immediately, so they can be
// stored in host structs before Build runs.
type Builder struct {
	logger   *slog.Logger
	fanout   *Fanout
	installs []func(*Registry) Cmd[Envelope]
}

// NewBuilder creates an empty builder. A nil logger falls back to
// slog.Default().
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger, fanout: newFanout(logger)}
}

// Add schedules a plugin for installation and returns its handle. Slot
// indices are assigned deterministically in add order; the plugin's Init
// does not run until Build.
func Add[S, M, O any](b *Builder, p Plugin[S, M, O]) Handle[S, M, O] {
	index := len(b.installs)
	b.installs = append(b.installs, func(r *Registry) Cmd[Envelope] {
		_, startup := Install(r, p)
		return startup
	})
	return Handle[S, M, O]{
		slot:    index,
		name:    p.Name(),
		msgType: reflect.TypeFor[M](),
		fanout:  b.fanout,
	}
}

// Build installs every added plugin in order and returns the finished
// registry together with the batched union of all startup effects. The
// builder must not be reused afterwards.
func (b *Builder) Build() (*Registry, Cmd[Envelope]) {
	r := newRegistry(b.logger, b.fanout)
	startups := make([]Cmd[Envelope], 0, len(b.installs))
	for _, install := range b.installs {
		if c := install(r); c != nil {
			startups = append(startups, c)
		}
	}
	return r, Batch(startups...)
}

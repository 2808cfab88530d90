package kvstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"teaplug/pkg/plug"
)

// Handle is the typed capability hosts hold after registering the store.
type Handle = plug.Handle[State, Msg, Output]

var _ plug.Plugin[State, Msg, Output] = Plugin{}

// State tracks which groups are resident and which requests are parked
// behind an in-flight group load.
type State struct {
	groups  map[string]map[string]json.RawMessage
	pending map[string][]Msg
}

// Loaded reports whether a group is resident in memory.
func (s State) Loaded(group string) bool {
	_, ok := s.groups[group]
	return ok
}

// Plugin is the store itself. It is stateless config; all mutable state
// lives in State and is owned by the registry.
type Plugin struct {
	store  storage
	logger *slog.Logger
}

// New creates a store persisting under the user config directory for
// app. If the config directory cannot be resolved it falls back to the
// working directory.
func New(app string, logger *slog.Logger) Plugin {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return NewWithDir(filepath.Join(dir, app, "store"), logger)
}

// NewWithDir creates a store persisting under an explicit directory.
func NewWithDir(dir string, logger *slog.Logger) Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return Plugin{store: storage{dir: dir}, logger: logger}
}

// Register adds the store to a builder.
func Register(b *plug.Builder, app string, logger *slog.Logger) Handle {
	return plug.Add[State, Msg, Output](b, New(app, logger))
}

func (Plugin) Name() string { return "kvstore" }

func (Plugin) Init() (State, plug.Cmd[Msg]) {
	return State{
		groups:  map[string]map[string]json.RawMessage{},
		pending: map[string][]Msg{},
	}, nil
}

func (p Plugin) Update(s *State, msg Msg) (plug.Cmd[Msg], *Output) {
	switch m := msg.(type) {
	case Set:
		group, ok := s.groups[m.Group]
		if !ok {
			return p.queueBehindLoad(s, m.Group, m), nil
		}
		group[m.Key] = m.Value
		return p.saveCmd(m.Group, group), out(Stored{Group: m.Group, Key: m.Key})

	case Get:
		group, ok := s.groups[m.Group]
		if !ok {
			return p.queueBehindLoad(s, m.Group, m), nil
		}
		if v, ok := group[m.Key]; ok {
			return nil, out(Value{Group: m.Group, Key: m.Key, Data: v})
		}
		return nil, out(NotFound{Group: m.Group, Key: m.Key})

	case Delete:
		group, ok := s.groups[m.Group]
		if !ok {
			return p.queueBehindLoad(s, m.Group, m), nil
		}
		delete(group, m.Key)
		return p.saveCmd(m.Group, group), out(Deleted{Group: m.Group, Key: m.Key})

	case loadDone:
		parked := s.pending[m.group]
		delete(s.pending, m.group)
		if m.err != nil {
			p.logger.Error("group load failed", "group", m.group, "error", m.err)
			return nil, out(LoadFailed{Group: m.group, Err: m.err})
		}
		s.groups[m.group] = m.entries
		// Replay everything that queued up behind the load; each request
		// comes back through Update and answers on its own.
		replays := make([]plug.Cmd[Msg], len(parked))
		for i, op := range parked {
			replays[i] = plug.Emit(op)
		}
		return plug.Batch(replays...), nil

	case saveDone:
		if m.err != nil {
			p.logger.Error("group save failed", "group", m.group, "error", m.err)
			return nil, out(SaveFailed{Group: m.group, Err: m.err})
		}
		return nil, nil
	}
	return nil, nil
}

func (Plugin) Subscriptions(State) []plug.Sub[Msg] { return nil }

// queueBehindLoad parks a request until its group is resident. The first
// request for a group triggers the load; later ones just queue.
func (p Plugin) queueBehindLoad(s *State, group string, op Msg) plug.Cmd[Msg] {
	s.pending[group] = append(s.pending[group], op)
	if len(s.pending[group]) > 1 {
		return nil
	}
	store := p.store
	return plug.Perform(func(context.Context) Msg {
		entries, err := store.load(group)
		return loadDone{group: group, entries: entries, err: err}
	})
}

// saveCmd snapshots a group and writes it back off the update path.
func (p Plugin) saveCmd(group string, entries map[string]json.RawMessage) plug.Cmd[Msg] {
	snapshot := maps.Clone(entries)
	store := p.store
	return plug.Perform(func(context.Context) Msg {
		return saveDone{group: group, err: store.save(group, snapshot)}
	})
}

func out(o Output) *Output { return &o }

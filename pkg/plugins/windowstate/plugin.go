// Package windowstate remembers the host window's size across runs. The
// host forwards resize events; the plugin debounces them and writes the
// latest geometry to a YAML file only once the size has settled.
package windowstate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"teaplug/pkg/plug"
)

// Handle is the typed capability hosts hold after registering the plugin.
type Handle = plug.Handle[State, Msg, Output]

var _ plug.Plugin[State, Msg, Output] = Plugin{}

// WindowState is the persisted geometry.
type WindowState struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Default is the geometry used when nothing has been persisted yet.
func Default() WindowState { return WindowState{Width: 80, Height: 24} }

// Msg is the plugin's inbound message set.
type Msg interface{ isMsg() }

// Resized reports the host window's new size, typically forwarded from a
// tea.WindowSizeMsg.
type Resized struct {
	Width  int
	Height int
}

// ForceSave writes the current geometry immediately, skipping the
// debounce. Hosts send it on shutdown.
type ForceSave struct{}

// Reset discards the persisted geometry and reverts to the default.
type Reset struct{}

type saveTick struct{}

type saveDone struct {
	saved WindowState
	err   error
}

type resetDone struct{ err error }

func (Resized) isMsg()   {}
func (ForceSave) isMsg() {}
func (Reset) isMsg()     {}
func (saveTick) isMsg()  {}
func (saveDone) isMsg()  {}
func (resetDone) isMsg() {}

// Output is what the plugin reports to its listeners.
type Output interface{ isOutput() }

// Saved reports that geometry reached disk.
type Saved struct{ State WindowState }

// SaveFailed reports a failed write. The geometry stays dirty and will
// be retried on the next settle.
type SaveFailed struct{ Err error }

// Cleared reports a completed Reset.
type Cleared struct{}

func (Saved) isOutput()      {}
func (SaveFailed) isOutput() {}
func (Cleared) isOutput()    {}

// State is the plugin's live geometry plus its debounce bookkeeping.
type State struct {
	Current WindowState
	dirty   bool
	saving  bool
}

// Dirty reports whether the current geometry has not reached disk yet.
func (s State) Dirty() bool { return s.dirty }

// Plugin persists window geometry at a fixed path.
type Plugin struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a plugin persisting under the user config directory for
// app, settling writes after two seconds of no resize activity.
func New(app string, logger *slog.Logger) Plugin {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return NewWithPath(filepath.Join(dir, app, "window.yaml"), 2*time.Second, logger)
}

// NewWithPath creates a plugin with an explicit file path and debounce.
func NewWithPath(path string, debounce time.Duration, logger *slog.Logger) Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return Plugin{path: path, debounce: debounce, logger: logger}
}

// Register adds the plugin to a builder.
func Register(b *plug.Builder, app string, logger *slog.Logger) Handle {
	return plug.Add[State, Msg, Output](b, New(app, logger))
}

// Load reads the persisted geometry for app, falling back to the default
// when nothing valid is on disk. Hosts call it before the event loop
// starts to size their first frame.
func Load(app string) WindowState {
	dir, err := os.UserConfigDir()
	if err != nil {
		return Default()
	}
	return loadPath(filepath.Join(dir, app, "window.yaml"))
}

func loadPath(path string) WindowState {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	var ws WindowState
	if err := yaml.Unmarshal(data, &ws); err != nil || ws.Width <= 0 || ws.Height <= 0 {
		return Default()
	}
	return ws
}

func (Plugin) Name() string { return "windowstate" }

func (p Plugin) Init() (State, plug.Cmd[Msg]) {
	return State{Current: loadPath(p.path)}, nil
}

func (p Plugin) Update(s *State, msg Msg) (plug.Cmd[Msg], *Output) {
	switch m := msg.(type) {
	case Resized:
		next := WindowState{Width: m.Width, Height: m.Height}
		if next == s.Current {
			return nil, nil
		}
		s.Current = next
		s.dirty = true
		return nil, nil

	case saveTick:
		if !s.dirty || s.saving {
			return nil, nil
		}
		return p.startSave(s), nil

	case ForceSave:
		if !s.dirty || s.saving {
			return nil, nil
		}
		return p.startSave(s), nil

	case Reset:
		s.Current = Default()
		s.dirty = false
		path := p.path
		return plug.Perform(func(context.Context) Msg {
			err := os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
			return resetDone{err: err}
		}), nil

	case saveDone:
		s.saving = false
		if m.err != nil {
			p.logger.Error("window state save failed", "error", m.err)
			s.dirty = true
			return nil, out(SaveFailed{Err: m.err})
		}
		return nil, out(Saved{State: m.saved})

	case resetDone:
		if m.err != nil {
			return nil, out(SaveFailed{Err: m.err})
		}
		return nil, out(Cleared{})
	}
	return nil, nil
}

// Subscriptions gates the debounce ticker on the dirty flag: the ticker
// only exists while there is something to save, so an idle window costs
// no goroutine.
func (p Plugin) Subscriptions(s State) []plug.Sub[Msg] {
	if !s.dirty && !s.saving {
		return nil
	}
	return []plug.Sub[Msg]{plug.Every(p.debounce, func(time.Time) Msg { return saveTick{} })}
}

func (p Plugin) startSave(s *State) plug.Cmd[Msg] {
	s.saving = true
	s.dirty = false
	snapshot := s.Current
	path := p.path
	return plug.Perform(func(context.Context) Msg {
		return saveDone{saved: snapshot, err: writeState(path, snapshot)}
	})
}

func writeState(path string, ws WindowState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := yaml.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal window state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write window state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write window state: %w", err)
	}
	return nil
}

func out(o Output) *Output { return &o }

package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"teaplug/pkg/plug"
	"teaplug/pkg/plugins/kvstore"
	"teaplug/pkg/plugins/updater"
	"teaplug/pkg/plugins/windowstate"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// milestoneMsg arrives through a filtered listen when the counter
// crosses a multiple of ten.
type milestoneMsg struct{ value int }

type model struct {
	logger *slog.Logger

	reg     *plug.Registry
	runner  *plug.Runner[tea.Msg]
	startup plug.Cmd[plug.Envelope]

	counter counterHandle
	store   kvstore.Handle
	window  windowstate.Handle
	upd     *updater.Handle

	spinner  spinner.Model
	width    int
	height   int
	checking bool

	counterView counterChanged
	milestone   int
	updateLine  string
	storeLine   string
	windowLine  string
	quitting    bool
}

func newModel(
	logger *slog.Logger,
	reg *plug.Registry,
	runner *plug.Runner[tea.Msg],
	startup plug.Cmd[plug.Envelope],
	counter counterHandle,
	store kvstore.Handle,
	window windowstate.Handle,
	upd *updater.Handle,
) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle

	return model{
		logger:     logger,
		reg:        reg,
		runner:     runner,
		startup:    startup,
		counter:    counter,
		store:      store,
		window:     window,
		upd:        upd,
		spinner:    s,
		updateLine: "no check yet",
	}
}

// subscriptions is the full set the runner keeps alive: every installed
// plugin's own sources plus the host's listens on their outputs.
func (m model) subscriptions() []plug.Sub[tea.Msg] {
	subs := plug.HostSubs(m.reg.Subscriptions())
	subs = append(subs,
		plug.MapSub(m.counter.Listen(), toMsg[counterChanged]),
		plug.MapSub(m.store.Listen(), toMsg[kvstore.Output]),
		plug.MapSub(m.window.Listen(), toMsg[windowstate.Output]),
		plug.ListenWith(m.counter, "milestone", func(c counterChanged) (tea.Msg, bool) {
			if c.Value == 0 || c.Value%10 != 0 {
				return nil, false
			}
			return milestoneMsg{value: c.Value}, true
		}),
	)
	if m.upd != nil {
		subs = append(subs, plug.MapSub(m.upd.Listen(), toMsg[updater.Output]))
	}
	return subs
}

func toMsg[T any](v T) tea.Msg { return v }

func (m model) Init() tea.Cmd {
	m.runner.Sync(m.subscriptions())

	restore := func() tea.Msg {
		return m.store.Message(kvstore.Get{Group: "demo", Key: "counter"})
	}
	return tea.Batch(
		m.spinner.Tick,
		m.runner.Cmd(plug.HostCmd(m.startup)),
		restore,
	)
}

// dispatch routes one envelope, spawns whatever effect it produced, and
// resyncs subscriptions since plugin state may have changed what they
// want running.
func (m *model) dispatch(env plug.Envelope) {
	if cmd := m.reg.Update(env); cmd != nil {
		m.runner.Spawn(plug.HostCmd(cmd))
	}
	m.runner.Sync(m.subscriptions())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case plug.Envelope:
		m.dispatch(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dispatch(m.window.Message(windowstate.Resized{Width: msg.Width, Height: msg.Height}))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case counterChanged:
		m.counterView = msg
		return m, nil

	case milestoneMsg:
		m.milestone = msg.value
		return m, nil

	case kvstore.Output:
		m.applyStoreOutput(msg)
		return m, nil

	case windowstate.Output:
		m.applyWindowOutput(msg)
		return m, nil

	case updater.Output:
		m.applyUpdaterOutput(msg)
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "+", "=":
		m.dispatch(m.counter.Message(adjust{delta: 1}))
	case "-":
		m.dispatch(m.counter.Message(adjust{delta: -1}))
	case "s":
		set, err := kvstore.SetJSON("demo", "counter", m.counterView.Value)
		if err != nil {
			m.storeLine = errStyle.Render(err.Error())
			return m, nil
		}
		m.dispatch(m.store.Message(set))
	case "u":
		if m.upd != nil {
			m.checking = true
			m.dispatch(m.upd.Message(updater.CheckRequested{}))
		}
	case "i":
		if m.upd != nil {
			m.dispatch(m.upd.Message(updater.InstallRequested{}))
		}
	case "r":
		m.dispatch(m.window.Message(windowstate.Reset{}))
	case "q", "ctrl+c":
		m.quitting = true
		m.dispatch(m.window.Message(windowstate.ForceSave{}))
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) applyStoreOutput(out kvstore.Output) {
	switch o := out.(type) {
	case kvstore.Value:
		saved, err := kvstore.DecodeValue[int](o)
		if err != nil {
			m.storeLine = errStyle.Render("corrupt saved counter")
			return
		}
		m.storeLine = fmt.Sprintf("restored counter %d", saved)
		if delta := saved - m.counterView.Value; delta != 0 {
			m.dispatch(m.counter.Message(adjust{delta: delta}))
		}
	case kvstore.NotFound:
		m.storeLine = "nothing saved yet"
	case kvstore.Stored:
		m.storeLine = fmt.Sprintf("saved %s/%s", o.Group, o.Key)
	case kvstore.SaveFailed:
		m.storeLine = errStyle.Render("save failed: " + o.Err.Error())
	case kvstore.LoadFailed:
		m.storeLine = errStyle.Render("load failed: " + o.Err.Error())
	}
}

func (m *model) applyWindowOutput(out windowstate.Output) {
	switch o := out.(type) {
	case windowstate.Saved:
		m.windowLine = fmt.Sprintf("geometry saved %dx%d", o.State.Width, o.State.Height)
	case windowstate.Cleared:
		m.windowLine = "geometry reset"
	case windowstate.SaveFailed:
		m.windowLine = errStyle.Render("geometry save failed: " + o.Err.Error())
	}
}

func (m *model) applyUpdaterOutput(out updater.Output) {
	switch o := out.(type) {
	case updater.UpdateAvailable:
		m.checking = false
		m.updateLine = accentStyle.Render("update available: v" + o.Version + "  (press i to install)")
	case updater.UpToDate:
		m.checking = false
		m.updateLine = "up to date (v" + o.Version + ")"
	case updater.CheckFailed:
		m.checking = false
		m.updateLine = errStyle.Render("check failed: " + o.Err.Error())
	case updater.DownloadStarted:
		m.updateLine = "downloading v" + o.Version
	case updater.Progress:
		if o.Total > 0 {
			m.updateLine = fmt.Sprintf("downloading %d%%", o.Received*100/o.Total)
		}
	case updater.Downloaded:
		m.updateLine = "verified " + o.Path
	case updater.DownloadFailed:
		m.updateLine = errStyle.Render("download failed: " + o.Err.Error())
	case updater.Installing:
		m.updateLine = "installing..."
	case updater.Installed:
		m.updateLine = accentStyle.Render("installed v" + o.Version + ", restart to apply")
	case updater.InstallFailed:
		m.updateLine = errStyle.Render("install failed: " + o.Err.Error())
	case updater.Busy:
		m.updateLine = "busy: " + o.Phase.String()
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b []string
	b = append(b, titleStyle.Render("teaplug demo"), "")

	b = append(b, fmt.Sprintf("%s %s  %s %s",
		labelStyle.Render("counter:"), valueStyle.Render(fmt.Sprintf("%d", m.counterView.Value)),
		labelStyle.Render("uptime:"), valueStyle.Render(fmt.Sprintf("%ds", m.counterView.Ticks))))

	if m.milestone != 0 {
		b = append(b, accentStyle.Render(fmt.Sprintf("milestone reached: %d", m.milestone)))
	}

	updateLine := m.updateLine
	if m.checking {
		updateLine = m.spinner.View() + " checking for updates"
	}
	b = append(b, labelStyle.Render("updates: ")+updateLine)

	if m.storeLine != "" {
		b = append(b, labelStyle.Render("store:   ")+m.storeLine)
	}
	if m.windowLine != "" {
		b = append(b, labelStyle.Render("window:  ")+m.windowLine)
	}

	b = append(b, "",
		hintStyle.Render("+/- adjust · s save · u check updates · i install · r reset window · q quit"))

	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, b...))
}

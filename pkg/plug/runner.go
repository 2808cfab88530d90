package plug

import (
	"context"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Runner is the concurrency boundary of the runtime: it executes effects
// and subscriptions on their own goroutines and feeds every message they
// produce into a sink. With M = tea.Msg the sink is normally
// (*tea.Program).Send, so completion envelopes re-enter the host's update
// loop as ordinary messages. Registry.Update itself never blocks; all real
// parallelism lives here.
type Runner[M any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	send   func(M)
	logger *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	subs   map[string]context.CancelFunc
	closed bool
}

// NewRunner creates a runner that delivers produced messages to send. A
// nil logger falls back to slog.Default().
func NewRunner[M any](send func(M), logger *slog.Logger) *Runner[M] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner[M]{
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		logger: logger,
		subs:   make(map[string]context.CancelFunc),
	}
}

// Spawn runs an effect on its own goroutine. Messages are pushed into the
// sink as the effect emits them. A nil effect is a no-op.
func (r *Runner[M]) Spawn(c Cmd[M]) {
	if c == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		c(r.ctx, r.send)
	}()
}

// Cmd adapts an effect for return from a Bubble Tea Update function: the
// returned tea.Cmd spawns the effect and resolves immediately.
func (r *Runner[M]) Cmd(c Cmd[M]) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		r.Spawn(c)
		return nil
	}
}

// Sync reconciles the running subscription set against want: sources whose
// identity is already running are left alone, new identities are started,
// and running identities absent from want are cancelled. Calling Sync
// twice with the same set is a no-op, which is what makes the host's
// recompute-every-tick model cheap.
func (r *Runner[M]) Sync(want []Sub[M]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	wanted := make(map[string]bool, len(want))
	for _, sub := range want {
		if sub.Run == nil {
			continue
		}
		if wanted[sub.ID] {
			r.logger.Warn("duplicate subscription identity", "id", sub.ID)
			continue
		}
		wanted[sub.ID] = true
		if _, running := r.subs[sub.ID]; running {
			continue
		}
		r.start(sub)
	}

	for id, cancel := range r.subs {
		if !wanted[id] {
			cancel()
			delete(r.subs, id)
			r.logger.Debug("subscription cancelled", "id", id)
		}
	}
}

// start launches one subscription. The caller holds r.mu.
func (r *Runner[M]) start(sub Sub[M]) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.subs[sub.ID] = cancel
	r.wg.Add(1)
	r.logger.Debug("subscription started", "id", sub.ID)
	go func() {
		defer r.wg.Done()
		sub.Run(ctx, r.send)
	}()
}

// Close cancels every running effect and subscription and waits for their
// goroutines to exit. The runner cannot be reused afterwards.
func (r *Runner[M]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// HostCmd lifts an envelope effect into the host's tea.Msg namespace, for
// runners driving a Bubble Tea program.
func HostCmd(c Cmd[Envelope]) Cmd[tea.Msg] {
	return MapCmd(c, func(e Envelope) tea.Msg { return e })
}

// HostSubs lifts envelope subscriptions into the host's tea.Msg namespace
// so they can be merged with Listen subscriptions before Runner.Sync.
func HostSubs(subs []Sub[Envelope]) []Sub[tea.Msg] {
	out := make([]Sub[tea.Msg], len(subs))
	for i, s := range subs {
		out[i] = MapSub(s, func(e Envelope) tea.Msg { return e })
	}
	return out
}

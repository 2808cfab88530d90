package plug

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test plugins
// ---------------------------------------------------------------------------

// counterPlugin adds deltas to an integer and reports each new value.
type counterState struct{ Value int }

type counterMsg struct{ Delta int }

type counterOut struct{ Value int }

type counterPlugin struct{ name string }

func (p counterPlugin) Name() string {
	if p.name == "" {
		return "counter"
	}
	return p.name
}

func (counterPlugin) Init() (counterState, Cmd[counterMsg]) {
	return counterState{}, nil
}

func (counterPlugin) Update(s *counterState, m counterMsg) (Cmd[counterMsg], *counterOut) {
	s.Value += m.Delta
	return nil, &counterOut{Value: s.Value}
}

func (counterPlugin) Subscriptions(counterState) []Sub[counterMsg] { return nil }

// timerPlugin counts ticks delivered by its interval subscription.
type timerState struct{ Ticks int }

type timerMsg struct{}

type timerOut struct{}

type timerPlugin struct{ interval time.Duration }

func (timerPlugin) Name() string { return "timer" }

func (timerPlugin) Init() (timerState, Cmd[timerMsg]) {
	return timerState{}, nil
}

func (timerPlugin) Update(s *timerState, _ timerMsg) (Cmd[timerMsg], *timerOut) {
	s.Ticks++
	return nil, nil
}

func (p timerPlugin) Subscriptions(timerState) []Sub[timerMsg] {
	interval := p.interval
	if interval == 0 {
		interval = time.Second
	}
	return []Sub[timerMsg]{Every(interval, func(time.Time) timerMsg { return timerMsg{} })}
}

// greeterPlugin schedules a startup effect that completes with a greeting.
type greeterState struct{ Greeting string }

type greeterMsg struct{ Text string }

type greeterOut struct{}

type greeterPlugin struct {
	initCalls *int
}

func (greeterPlugin) Name() string { return "greeter" }

func (p greeterPlugin) Init() (greeterState, Cmd[greeterMsg]) {
	if p.initCalls != nil {
		*p.initCalls++
	}
	return greeterState{}, Emit(greeterMsg{Text: "hello"})
}

func (greeterPlugin) Update(s *greeterState, m greeterMsg) (Cmd[greeterMsg], *greeterOut) {
	s.Greeting = m.Text
	return nil, nil
}

func (greeterPlugin) Subscriptions(greeterState) []Sub[greeterMsg] { return nil }

// echoPlugin responds to every ping with an effect that completes with a
// pong, exercising effect re-wrapping through the registry.
type echoState struct{ Pings, Pongs int }

type echoMsg struct{ Pong bool }

type echoOut struct{}

type echoPlugin struct{}

func (echoPlugin) Name() string { return "echo" }

func (echoPlugin) Init() (echoState, Cmd[echoMsg]) { return echoState{}, nil }

func (echoPlugin) Update(s *echoState, m echoMsg) (Cmd[echoMsg], *echoOut) {
	if m.Pong {
		s.Pongs++
		return nil, nil
	}
	s.Pings++
	return Emit(echoMsg{Pong: true}), nil
}

func (echoPlugin) Subscriptions(echoState) []Sub[echoMsg] { return nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Install and Add need explicit instantiation: type parameters cannot be
// inferred from a value implementing Plugin. These wrappers keep the test
// bodies readable.

func installCounter(r *Registry, p counterPlugin) (Handle[counterState, counterMsg, counterOut], Cmd[Envelope]) {
	return Install[counterState, counterMsg, counterOut](r, p)
}

func installTimer(r *Registry, p timerPlugin) (Handle[timerState, timerMsg, timerOut], Cmd[Envelope]) {
	return Install[timerState, timerMsg, timerOut](r, p)
}

func installGreeter(r *Registry, p greeterPlugin) (Handle[greeterState, greeterMsg, greeterOut], Cmd[Envelope]) {
	return Install[greeterState, greeterMsg, greeterOut](r, p)
}

func installEcho(r *Registry, p echoPlugin) (Handle[echoState, echoMsg, echoOut], Cmd[Envelope]) {
	return Install[echoState, echoMsg, echoOut](r, p)
}

func addCounter(b *Builder, p counterPlugin) Handle[counterState, counterMsg, counterOut] {
	return Add[counterState, counterMsg, counterOut](b, p)
}

func addTimer(b *Builder, p timerPlugin) Handle[timerState, timerMsg, timerOut] {
	return Add[timerState, timerMsg, timerOut](b, p)
}

func addGreeter(b *Builder, p greeterPlugin) Handle[greeterState, greeterMsg, greeterOut] {
	return Add[greeterState, greeterMsg, greeterOut](b, p)
}

// runCmd executes c to completion and returns everything it emitted.
// Batched effects emit concurrently, hence the lock.
func runCmd[M any](t *testing.T, c Cmd[M]) []M {
	t.Helper()
	if c == nil {
		return nil
	}
	var (
		mu  sync.Mutex
		out []M
	)
	c(context.Background(), func(m M) {
		mu.Lock()
		out = append(out, m)
		mu.Unlock()
	})
	return out
}

// collectFromSub runs sub until n messages have arrived, then cancels it.
func collectFromSub[M any](t *testing.T, sub Sub[M], n int) []M {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan M, n)
	go sub.Run(ctx, func(m M) {
		select {
		case ch <- m:
		default:
		}
	})

	out := make([]M, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case m := <-ch:
			out = append(out, m)
		case <-timeout:
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(out))
		}
	}
	return out
}

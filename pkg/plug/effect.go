package plug

import (
	"context"
	"sync"
	"time"
)

// Cmd describes deferred work that emits zero or more messages of type M.
// A nil Cmd is a no-op. Cmds are never executed inside Init, Update, or
// Subscriptions; the Runner executes them on their own goroutines and
// cancels them through ctx when it shuts down.
type Cmd[M any] func(ctx context.Context, emit func(M))

// Emit returns a Cmd that immediately emits m.
func Emit[M any](m M) Cmd[M] {
	return func(_ context.Context, emit func(M)) { emit(m) }
}

// Perform returns a Cmd that runs f and emits its result. f typically
// performs I/O and returns a completion message carrying the outcome,
// including any error, as ordinary data.
func Perform[M any](f func(ctx context.Context) M) Cmd[M] {
	return func(ctx context.Context, emit func(M)) { emit(f(ctx)) }
}

// Tick returns a Cmd that emits f(now) once, after d has elapsed.
func Tick[M any](d time.Duration, f func(time.Time) M) Cmd[M] {
	return func(ctx context.Context, emit func(M)) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case now := <-t.C:
			emit(f(now))
		}
	}
}

// Batch merges cmds into a single Cmd that runs them concurrently and
// returns once all of them have. Nil entries are skipped; a batch with
// nothing runnable is nil.
func Batch[M any](cmds ...Cmd[M]) Cmd[M] {
	live := make([]Cmd[M], 0, len(cmds))
	for _, c := range cmds {
		if c != nil {
			live = append(live, c)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(ctx context.Context, emit func(M)) {
		var wg sync.WaitGroup
		for _, c := range live {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c(ctx, emit)
			}()
		}
		wg.Wait()
	}
}

// MapCmd transforms every message emitted by c through f.
func MapCmd[A, B any](c Cmd[A], f func(A) B) Cmd[B] {
	if c == nil {
		return nil
	}
	return func(ctx context.Context, emit func(B)) {
		c(ctx, func(a A) { emit(f(a)) })
	}
}

// Sub is a long-lived source of messages with a stable identity. The
// identity is what lets the Runner keep an already-running equivalent
// source alive across re-subscription instead of restarting it every time
// the host recomputes its subscription set.
type Sub[M any] struct {
	// ID must be stable across recomputations for equivalent sources and
	// unique within one plugin's subscription set.
	ID string

	// Run produces messages until ctx is cancelled. It owns whatever OS
	// resources the source needs and must release them before returning.
	Run func(ctx context.Context, emit func(M))
}

// Every returns a Sub that emits f(now) every interval.
func Every[M any](interval time.Duration, f func(time.Time) M) Sub[M] {
	return Sub[M]{
		ID: "every/" + interval.String(),
		Run: func(ctx context.Context, emit func(M)) {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-t.C:
					emit(f(now))
				}
			}
		},
	}
}

// MapSub transforms every message produced by s through f. The identity is
// preserved.
func MapSub[A, B any](s Sub[A], f func(A) B) Sub[B] {
	return Sub[B]{
		ID: s.ID,
		Run: func(ctx context.Context, emit func(B)) {
			if s.Run == nil {
				return
			}
			s.Run(ctx, func(a A) { emit(f(a)) })
		},
	}
}

package plug

import (
	"context"
	"fmt"
	"reflect"
)

// Handle is a cheap, copyable capability bound to one plugin slot. It
// carries the slot index and a reference to the shared Fanout — never a
// reference to plugin state — so every state mutation is forced through
// Registry.Update.
type Handle[S, M, O any] struct {
	slot    int
	name    string
	msgType reflect.Type
	fanout  *Fanout
}

// Slot returns the slot index this handle is bound to.
func (h Handle[S, M, O]) Slot() int { return h.slot }

// Name returns the name of the plugin this handle is bound to.
func (h Handle[S, M, O]) Name() string { return h.name }

// Message wraps msg in an envelope addressed to this handle's slot, for
// hosts that already have a routing path for envelopes.
func (h Handle[S, M, O]) Message(msg M) Envelope {
	return newEnvelope(h.slot, msg, h.msgType)
}

// Dispatch wraps msg as a fire-once effect that yields the routed
// envelope. It is pure and non-blocking and cannot fail.
func (h Handle[S, M, O]) Dispatch(msg M) Cmd[Envelope] {
	return Emit(h.Message(msg))
}

// Listen opens a long-lived subscription to this slot's outputs. The
// fanout registration lives exactly as long as the subscription: when the
// Runner cancels it, the registration is marked dead and the fanout prunes
// it on its next publish.
func (h Handle[S, M, O]) Listen() Sub[O] {
	return Sub[O]{
		ID: fmt.Sprintf("listen/%d", h.slot),
		Run: func(ctx context.Context, emit func(O)) {
			reg := h.fanout.register(h.slot, reflect.TypeFor[O]())
			defer reg.close()
			for {
				select {
				case <-ctx.Done():
					return
				case v := <-reg.ch:
					emit(v.(O))
				}
			}
		},
	}
}

// ListenWith opens a filtered, mapped subscription to the handle's
// outputs: each output is passed through sel, and only results for which
// sel reports true are forwarded. sel must be a pure function of its
// argument. id distinguishes this subscription from other listens on the
// same slot and must be stable across re-subscription for equivalent
// selectors, so the Runner never restarts an unchanged source.
func ListenWith[S, M, O, R any](h Handle[S, M, O], id string, sel func(O) (R, bool)) Sub[R] {
	return Sub[R]{
		ID: fmt.Sprintf("listen/%d/%s", h.slot, id),
		Run: func(ctx context.Context, emit func(R)) {
			reg := h.fanout.register(h.slot, reflect.TypeFor[O]())
			defer reg.close()
			for {
				select {
				case <-ctx.Done():
					return
				case v := <-reg.ch:
					if r, ok := sel(v.(O)); ok {
						emit(r)
					}
				}
			}
		},
	}
}

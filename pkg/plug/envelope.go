package plug

import (
	"fmt"
	"reflect"
)

// Envelope is a type-erased, slot-addressed plugin message. Envelopes are
// constructed by a Handle (or by the registry when wrapping a plugin's
// effects and subscriptions) and consumed exactly once by Registry.Update.
// An Envelope is an ordinary tea.Msg, so it travels through the host's
// event loop like any other message.
type Envelope struct {
	slot    int
	payload any
	typ     reflect.Type
}

func newEnvelope(slot int, payload any, typ reflect.Type) Envelope {
	return Envelope{slot: slot, payload: payload, typ: typ}
}

// Slot returns the index of the plugin slot this envelope is addressed to.
func (e Envelope) Slot() int { return e.slot }

func (e Envelope) String() string {
	return fmt.Sprintf("plug.Envelope{slot: %d, type: %s}", e.slot, e.typ)
}

// OutputEnvelope is the outbound counterpart of Envelope: a type-erased,
// slot-tagged output emitted by a plugin's Update. It is produced inside
// Registry.Update, pushed through the Fanout, and never stored afterwards;
// every listener receives its own copy of the payload.
type OutputEnvelope struct {
	slot    int
	payload any
	typ     reflect.Type
}

// Slot returns the index of the plugin slot that emitted this output.
func (e OutputEnvelope) Slot() int { return e.slot }

func (e OutputEnvelope) String() string {
	return fmt.Sprintf("plug.OutputEnvelope{slot: %d, type: %s}", e.slot, e.typ)
}

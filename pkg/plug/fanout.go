package plug

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/oklog/ulid/v2"
)

// listenerBuffer is the per-listener channel depth. Publishing never
// blocks the update loop; a listener that falls this far behind starts
// losing outputs.
const listenerBuffer = 64

// registration is one live listener of a plugin slot's outputs.
type registration struct {
	id      ulid.ULID
	slot    int
	outType reflect.Type
	ch      chan any
	done    chan struct{}
	once    sync.Once
}

// close marks the registration dead. The fanout prunes it on the next
// publish to its slot; there is no explicit unregister protocol.
func (reg *registration) close() {
	reg.once.Do(func() { close(reg.done) })
}

// Fanout distributes each plugin's outputs to the listeners registered for
// its slot. It is shared between the registry, which publishes from inside
// Update, and every handle, which registers listeners from unrelated call
// sites, so the listener table is mutex-guarded.
type Fanout struct {
	mu        sync.Mutex
	listeners map[int][]*registration
	logger    *slog.Logger
}

func newFanout(logger *slog.Logger) *Fanout {
	return &Fanout{listeners: make(map[int][]*registration), logger: logger}
}

// register opens a new listener channel for a slot. outType is the output
// type the listener expects; published outputs of any other type are not
// delivered to it.
func (f *Fanout) register(slot int, outType reflect.Type) *registration {
	reg := &registration{
		id:      ulid.Make(),
		slot:    slot,
		outType: outType,
		ch:      make(chan any, listenerBuffer),
		done:    make(chan struct{}),
	}
	f.mu.Lock()
	f.listeners[slot] = append(f.listeners[slot], reg)
	f.mu.Unlock()
	f.logger.Debug("listener registered", "slot", slot, "listener", reg.id.String())
	return reg
}

// publish delivers out to every live listener of its slot. Each listener
// receives its own copy of the payload. Registrations whose receiver has
// gone away are pruned here, amortised over publishes.
func (f *Fanout) publish(out OutputEnvelope) {
	f.mu.Lock()
	defer f.mu.Unlock()

	regs := f.listeners[out.slot]
	if len(regs) == 0 {
		return
	}
	live := regs[:0]
	for _, reg := range regs {
		select {
		case <-reg.done:
			f.logger.Debug("listener pruned", "slot", out.slot, "listener", reg.id.String())
			continue
		default:
		}
		if reg.outType != out.typ {
			f.logger.Debug("skipping listener with mismatched output type",
				"slot", out.slot, "listener", reg.id.String(),
				"want", reg.outType.String(), "got", out.typ.String())
			live = append(live, reg)
			continue
		}
		select {
		case reg.ch <- out.payload:
		default:
			f.logger.Warn("listener falling behind, output dropped",
				"slot", out.slot, "listener", reg.id.String())
		}
		live = append(live, reg)
	}
	f.listeners[out.slot] = live
}

// count returns the number of registrations currently held for a slot,
// including ones that are closed but not yet pruned.
func (f *Fanout) count(slot int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[slot])
}

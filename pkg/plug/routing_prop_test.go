package plug

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

// Property: for any interleaving of dispatches across any number of
// installed plugins, each slot's state reflects exactly the messages
// addressed to it, and malformed envelopes change nothing.
func TestRoutingIsolationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "plugins")

		r := New(nil)
		handles := make([]Handle[counterState, counterMsg, counterOut], n)
		for i := 0; i < n; i++ {
			handles[i], _ = installCounter(r, counterPlugin{name: fmt.Sprintf("c%d", i)})
		}

		want := make([]int, n)
		ops := rapid.IntRange(0, 64).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "kind") {
			case 0:
				// Wrong payload type for a valid slot.
				slot := rapid.IntRange(0, n-1).Draw(t, "badSlot")
				r.Update(newEnvelope(slot, "bogus", reflect.TypeOf("")))
			case 1:
				// Out-of-range slot.
				r.Update(newEnvelope(n+rapid.IntRange(0, 5).Draw(t, "offset"), counterMsg{Delta: 1}, reflect.TypeFor[counterMsg]()))
			default:
				slot := rapid.IntRange(0, n-1).Draw(t, "slot")
				delta := rapid.IntRange(-10, 10).Draw(t, "delta")
				r.Update(handles[slot].Message(counterMsg{Delta: delta}))
				want[slot] += delta
			}
		}

		for i := 0; i < n; i++ {
			got, ok := NamedStateOf[counterState](r, fmt.Sprintf("c%d", i))
			if !ok {
				t.Fatalf("state for slot %d not found", i)
			}
			if got.Value != want[i] {
				t.Fatalf("slot %d: got %d, want %d", i, got.Value, want[i])
			}
		}
	})
}

// Property: batched startup effects produce exactly one correctly tagged
// envelope per plugin whose Init schedules work.
func TestStartupFanInProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "plugins")
		withStartup := make([]bool, n)

		b := NewBuilder(nil)
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "greeter") {
				withStartup[i] = true
				addGreeter(b, greeterPlugin{})
			} else {
				addCounter(b, counterPlugin{name: fmt.Sprintf("c%d", i)})
			}
		}

		_, startup := b.Build()

		expected := 0
		for _, g := range withStartup {
			if g {
				expected++
			}
		}
		if expected == 0 {
			if startup != nil {
				t.Fatal("no plugin scheduled work but startup is non-nil")
			}
			return
		}

		ch := make(chan Envelope, expected)
		startup(context.Background(), func(e Envelope) { ch <- e })
		close(ch)

		seen := map[int]int{}
		for e := range ch {
			seen[e.Slot()]++
		}
		for i, g := range withStartup {
			wantCount := 0
			if g {
				wantCount = 1
			}
			if seen[i] != wantCount {
				t.Fatalf("slot %d: %d startup envelopes, want %d", i, seen[i], wantCount)
			}
		}
	})
}

package plug

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingTargetsExactSlot(t *testing.T) {
	r := New(nil)
	counter, _ := installCounter(r, counterPlugin{})
	timer, _ := installTimer(r, timerPlugin{})

	for i := 0; i < 3; i++ {
		r.Update(counter.Message(counterMsg{Delta: 1}))
	}

	cs, ok := StateOf[counterState](r)
	require.True(t, ok)
	assert.Equal(t, 3, cs.Value)

	ts, ok := StateOf[timerState](r)
	require.True(t, ok)
	assert.Equal(t, 0, ts.Ticks, "timer must not observe counter messages")

	// Simulate one tick arriving from the timer's subscription.
	r.Update(timer.Message(timerMsg{}))

	ts, _ = StateOf[timerState](r)
	assert.Equal(t, 1, ts.Ticks)
	cs, _ = StateOf[counterState](r)
	assert.Equal(t, 3, cs.Value, "counter must be untouched by timer messages")
}

func TestTypeTagMismatchIsSilentNoOp(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{})

	// Hand-built envelope with the right slot but the wrong payload type,
	// reachable only through the erased API.
	bogus := newEnvelope(0, "not a counter message", reflect.TypeOf(""))

	assert.NotPanics(t, func() {
		cmd := r.Update(bogus)
		assert.Nil(t, cmd)
	})

	cs, _ := StateOf[counterState](r)
	assert.Equal(t, 0, cs.Value, "state must be unchanged after a mismatched envelope")
}

func TestUnknownSlotIsSilentNoOp(t *testing.T) {
	r := New(nil)
	counter, _ := installCounter(r, counterPlugin{})

	env := counter.Message(counterMsg{Delta: 1})
	env.slot = 41

	assert.Nil(t, r.Update(env))
	env.slot = -1
	assert.Nil(t, r.Update(env))

	cs, _ := StateOf[counterState](r)
	assert.Equal(t, 0, cs.Value)
}

func TestStartupEffectRoutesBack(t *testing.T) {
	r := New(nil)
	_, startup := installGreeter(r, greeterPlugin{})
	require.NotNil(t, startup)

	envs := runCmd(t, startup)
	require.Len(t, envs, 1)

	r.Update(envs[0])

	gs, ok := StateOf[greeterState](r)
	require.True(t, ok)
	assert.Equal(t, "hello", gs.Greeting)
}

func TestUpdateEffectIsRewrappedForSameSlot(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{}) // occupy slot 0
	echo, _ := installEcho(r, echoPlugin{})

	cmd := r.Update(echo.Message(echoMsg{}))
	require.NotNil(t, cmd)

	envs := runCmd(t, cmd)
	require.Len(t, envs, 1)
	assert.Equal(t, echo.Slot(), envs[0].Slot(), "completion envelope must target the emitting slot")

	r.Update(envs[0])

	es, _ := StateOf[echoState](r)
	assert.Equal(t, echoState{Pings: 1, Pongs: 1}, es)
}

func TestSubscriptionsAreTaggedAndStable(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{})
	_, _ = installTimer(r, timerPlugin{})

	first := r.Subscriptions()
	second := r.Subscriptions()

	require.Len(t, first, 1, "only the timer subscribes")
	assert.Equal(t, "plug/1/every/1s", first[0].ID)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "recomputation must yield stable identities")
}

func TestSubscriptionDeliversTaggedEnvelopes(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{})
	timer, _ := installTimer(r, timerPlugin{interval: time.Millisecond})

	subs := r.Subscriptions()
	require.Len(t, subs, 1)

	envs := collectFromSub(t, subs[0], 2)
	for _, env := range envs {
		assert.Equal(t, timer.Slot(), env.Slot())
		r.Update(env)
	}

	ts, _ := StateOf[timerState](r)
	assert.Equal(t, 2, ts.Ticks)
}

func TestNamesAndLen(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{})
	_, _ = installTimer(r, timerPlugin{})

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"counter", "timer"}, r.Names())
}

func TestNamedStateOfDisambiguates(t *testing.T) {
	r := New(nil)
	a, _ := installCounter(r, counterPlugin{name: "a"})
	_, _ = installCounter(r, counterPlugin{name: "b"})

	r.Update(a.Message(counterMsg{Delta: 7}))

	sa, ok := NamedStateOf[counterState](r, "a")
	require.True(t, ok)
	assert.Equal(t, 7, sa.Value)

	sb, ok := NamedStateOf[counterState](r, "b")
	require.True(t, ok)
	assert.Equal(t, 0, sb.Value)

	_, ok = NamedStateOf[counterState](r, "missing")
	assert.False(t, ok)
}

func TestMutateState(t *testing.T) {
	r := New(nil)
	_, _ = installCounter(r, counterPlugin{})

	ok := MutateState(r, func(s *counterState) { s.Value = 99 })
	require.True(t, ok)

	cs, _ := StateOf[counterState](r)
	assert.Equal(t, 99, cs.Value)

	assert.False(t, MutateState(r, func(*timerState) {}))
}

func TestHandleOf(t *testing.T) {
	r := New(nil)
	installed, _ := installCounter(r, counterPlugin{})

	found, ok := HandleOf[counterState, counterMsg, counterOut](r)
	require.True(t, ok)
	assert.Equal(t, installed.Slot(), found.Slot())
	assert.Equal(t, "counter", found.Name())

	r.Update(found.Message(counterMsg{Delta: 2}))
	cs, _ := StateOf[counterState](r)
	assert.Equal(t, 2, cs.Value)

	_, ok = HandleOf[timerState, timerMsg, timerOut](r)
	assert.False(t, ok)
}

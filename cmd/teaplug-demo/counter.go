package main

import (
	"time"

	"teaplug/pkg/plug"
)

// The counter is the demo's in-app plugin: it owns a single integer,
// reacts to increments from keybindings, ticks once a second on its own
// subscription, and reports every change to listeners.

type counterState struct {
	Value int
	Ticks int
}

type counterMsg interface{ isCounterMsg() }

type adjust struct{ delta int }

type secondTick struct{}

func (adjust) isCounterMsg()     {}
func (secondTick) isCounterMsg() {}

// counterChanged is published on every value change.
type counterChanged struct {
	Value int
	Ticks int
}

type counterPlugin struct{}

type counterHandle = plug.Handle[counterState, counterMsg, counterChanged]

var _ plug.Plugin[counterState, counterMsg, counterChanged] = counterPlugin{}

func (counterPlugin) Name() string { return "counter" }

func (counterPlugin) Init() (counterState, plug.Cmd[counterMsg]) {
	return counterState{}, nil
}

func (counterPlugin) Update(s *counterState, msg counterMsg) (plug.Cmd[counterMsg], *counterChanged) {
	switch m := msg.(type) {
	case adjust:
		s.Value += m.delta
	case secondTick:
		s.Ticks++
	}
	out := counterChanged{Value: s.Value, Ticks: s.Ticks}
	return nil, &out
}

func (counterPlugin) Subscriptions(counterState) []plug.Sub[counterMsg] {
	return []plug.Sub[counterMsg]{
		plug.Every(time.Second, func(time.Time) counterMsg { return secondTick{} }),
	}
}

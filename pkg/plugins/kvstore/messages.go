// Package kvstore is a grouped key/value store plugin. Values are raw
// JSON documents persisted one file per group; groups are loaded lazily
// on first access and every mutation is written back asynchronously.
package kvstore

import (
	"encoding/json"
	"fmt"
)

// Msg is the store's inbound message set. Set, Get, and Delete are the
// public requests; the unexported variants are I/O completions.
type Msg interface{ isMsg() }

// Set stores a raw JSON value under group/key, creating the group if
// needed.
type Set struct {
	Group string
	Key   string
	Value json.RawMessage
}

// Get asks for the value under group/key. The answer arrives as a Value
// or NotFound output.
type Get struct {
	Group string
	Key   string
}

// Delete removes group/key. Deleting a missing key still reports Deleted.
type Delete struct {
	Group string
	Key   string
}

type loadDone struct {
	group   string
	entries map[string]json.RawMessage
	err     error
}

type saveDone struct {
	group string
	err   error
}

func (Set) isMsg()      {}
func (Get) isMsg()      {}
func (Delete) isMsg()   {}
func (loadDone) isMsg() {}
func (saveDone) isMsg() {}

// Output is what the store reports to its listeners.
type Output interface{ isOutput() }

// Stored confirms a Set was applied in memory; a write-back failure
// arrives separately as SaveFailed.
type Stored struct {
	Group string
	Key   string
}

// Value answers a Get that found the key.
type Value struct {
	Group string
	Key   string
	Data  json.RawMessage
}

// NotFound answers a Get whose key or group does not exist.
type NotFound struct {
	Group string
	Key   string
}

// Deleted confirms a Delete was applied.
type Deleted struct {
	Group string
	Key   string
}

// LoadFailed reports that a group file could not be read. Requests that
// were waiting on the load are discarded.
type LoadFailed struct {
	Group string
	Err   error
}

// SaveFailed reports that writing a group file back to disk failed.
type SaveFailed struct {
	Group string
	Err   error
}

func (Stored) isOutput()     {}
func (Value) isOutput()      {}
func (NotFound) isOutput()   {}
func (Deleted) isOutput()    {}
func (LoadFailed) isOutput() {}
func (SaveFailed) isOutput() {}

// SetJSON builds a Set from any JSON-marshalable value.
func SetJSON[T any](group, key string, v T) (Set, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Set{}, fmt.Errorf("marshal %s/%s: %w", group, key, err)
	}
	return Set{Group: group, Key: key, Value: data}, nil
}

// DecodeValue unmarshals a Value output into a concrete type.
func DecodeValue[T any](v Value) (T, error) {
	var out T
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", v.Group, v.Key, err)
	}
	return out, nil
}

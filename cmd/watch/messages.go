package main

import "github.com/quantfold/tickstream/pkg/stream"

// TickMsg carries one live tick from the stream.
type TickMsg struct {
	Tick stream.Tick
	// Window is the current rolling history length for the tick's symbol.
	Window int
}

// StreamErrorMsg indicates an error in the data stream.
type StreamErrorMsg struct {
	Err error
}

// StreamStartedMsg signals that streaming has begun.
type StreamStartedMsg struct{}

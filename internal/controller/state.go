// Package controller implements the Session Controller (spec §4.8): the
// per-session pipeline task that owns the state machine driving a device
// connection from attach through recording, recognition, generation,
// synthesis, and playback.
package controller

// State is one of the closed set of Session Controller states (spec §4.8).
// image_uploading is deliberately not a State value: the spec calls it out
// as a concurrent attribute that never displaces the primary state, so it
// lives on session.Session as a separate flag instead of in this enum.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateProcessing   State = "processing"
	StatePlaying      State = "playing"
	StateStalled      State = "stalled"
	StateShutdown     State = "shutdown"
)

// Package protocol implements the Frame Codec (spec §4.1): a closed,
// tagged-union pair of inbound/outbound event kinds decoded from and
// encoded to the duplex channel's interleaved JSON-text/binary frames.
package protocol

import "fmt"

// InboundKind enumerates every client→server text frame type. It is a
// closed set: DecodeInbound rejects anything outside it instead of
// passing an arbitrary string through to the controller's dispatch.
type InboundKind string

const (
	KindHello            InboundKind = "hello"
	KindClientOn         InboundKind = "client_on"
	KindRecordingStarted InboundKind = "recording_started"
	KindAudioChunkMeta   InboundKind = "audio_chunk_meta"
	KindRecordingStopped InboundKind = "recording_stopped"
	KindImageCaptured    InboundKind = "image_captured"
	KindReadyForPlayback InboundKind = "ready_for_playback"
	KindPlaybackComplete InboundKind = "playback_complete"
	KindPing             InboundKind = "ping"
	KindClientError      InboundKind = "error"
	KindReject           InboundKind = "reject"
)

var knownInboundKinds = map[InboundKind]bool{
	KindHello:            true,
	KindClientOn:         true,
	KindRecordingStarted: true,
	KindAudioChunkMeta:   true,
	KindRecordingStopped: true,
	KindImageCaptured:    true,
	KindReadyForPlayback: true,
	KindPlaybackComplete: true,
	KindPing:             true,
	KindClientError:      true,
	KindReject:           true,
}

// Capabilities is the client device's self-reported hardware profile,
// carried on hello.
type Capabilities struct {
	PSRAM         bool `json:"psram"`
	MaxChunkBytes int  `json:"max_chunk_bytes"`
}

// InboundEvent is every client→server frame shape flattened into one
// struct; only the fields relevant to Kind are populated. A dedicated
// struct per kind would mean a dedicated decode branch per kind too —
// this is the same tagged-union idea with one less layer of ceremony.
type InboundEvent struct {
	Kind         InboundKind  `json:"type"`
	Session      string       `json:"session"`
	Device       string       `json:"device,omitempty"`
	Capabilities Capabilities `json:"capabilities,omitempty"`
	Seq          int          `json:"seq,omitempty"`
	LenBytes     int          `json:"len_bytes,omitempty"`
	Filename     string       `json:"filename,omitempty"`
	Size         int          `json:"size,omitempty"`
	State        string       `json:"state,omitempty"`
	Error        string       `json:"error,omitempty"`
	Detail       string       `json:"detail,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	CurrentState string       `json:"current_state,omitempty"`
}

// Ready is emitted once channel attach + auth succeeds.
type Ready struct {
	Type string `json:"type"`
}

func NewReady() Ready { return Ready{Type: "ready"} }

// Ack acknowledges an accepted audio chunk.
type Ack struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
	Seq  int    `json:"seq"`
}

func NewAck(seq int) Ack { return Ack{Type: "ack", Ref: "chunk", Seq: seq} }

// Partial carries an interim STT result. Emitted only when the wired
// Recognizer Adapter streams partials; the protocol guarantees only the
// final Transcript.
type Partial struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewPartial(text string) Partial { return Partial{Type: "partial", Text: text} }

// Transcript is the guaranteed final recognition result for an utterance.
type Transcript struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func NewTranscript(text string) Transcript {
	return Transcript{Type: "transcript", Text: text, Final: true}
}

// LLMText carries the generator's reply text.
type LLMText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewLLMText(text string) LLMText { return LLMText{Type: "llm", Text: text} }

// TTSReady announces the synthesized reply artifact ahead of streaming.
type TTSReady struct {
	Type       string `json:"type"`
	DurationMS int64  `json:"duration_ms"`
	SampleRate int    `json:"sampleRate"`
	Format     string `json:"format"`
}

func NewTTSReady(durationMS int64, sampleRate int, format string) TTSReady {
	return TTSReady{Type: "tts_ready", DurationMS: durationMS, SampleRate: sampleRate, Format: format}
}

// TTSChunkMeta precedes exactly one binary frame of LenBytes bytes.
type TTSChunkMeta struct {
	Type     string `json:"type"`
	Seq      int    `json:"seq"`
	LenBytes int    `json:"len_bytes"`
}

func NewTTSChunkMeta(seq, lenBytes int) TTSChunkMeta {
	return TTSChunkMeta{Type: "tts_chunk_meta", Seq: seq, LenBytes: lenBytes}
}

// TTSDone signals the last reply chunk has been sent.
type TTSDone struct {
	Type string `json:"type"`
}

func NewTTSDone() TTSDone { return TTSDone{Type: "tts_done"} }

// ImageReceived acknowledges a completed /image upload over the channel.
type ImageReceived struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

func NewImageReceived(filename string) ImageReceived {
	return ImageReceived{Type: "image_received", Filename: filename}
}

// RequestRerecord asks the client to redo the current utterance.
type RequestRerecord struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewRequestRerecord(reason string) RequestRerecord {
	return RequestRerecord{Type: "request_rerecord", Reason: reason}
}

// OfferDownload is the playback-fallback path's URL.
type OfferDownload struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func NewOfferDownload(url string) OfferDownload {
	return OfferDownload{Type: "offer_download", URL: url}
}

// StateSync reports the server-authoritative state, used after reattach.
type StateSync struct {
	Type        string `json:"type"`
	ServerState string `json:"server_state"`
	Message     string `json:"message"`
}

func NewStateSync(state, message string) StateSync {
	return StateSync{Type: "state_sync", ServerState: state, Message: message}
}

// RequestUserIntervention asks the client to surface a human-facing
// message rather than retry automatically.
type RequestUserIntervention struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRequestUserIntervention(message string) RequestUserIntervention {
	return RequestUserIntervention{Type: "request_user_intervention", Message: message}
}

// ErrUnknownFrame is returned by DecodeInbound for a structurally valid
// JSON frame whose type is missing or outside the closed Kind set.
type ErrUnknownFrame struct {
	Type string
}

func (e *ErrUnknownFrame) Error() string {
	if e.Type == "" {
		return "frame missing type"
	}
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// ErrFrameProtocolViolation is returned when a binary frame does not
// immediately follow its declared meta frame, or does not match the
// declared length (spec §4.1).
var ErrFrameProtocolViolation = errors.New("frame protocol violation")

// Codec wraps one duplex channel (spec §5: "outbound frames on one
// channel are totally ordered"), decoding inbound text frames with
// bytedance/sonic and exposing a matched binary-frame read for the
// audio_chunk_meta/tts_chunk_meta contract.
type Codec struct {
	conn   *websocket.Conn
	logger orchestrator.Logger
}

// New wraps conn. A nil logger defaults to NoOpLogger.
func New(conn *websocket.Conn, logger orchestrator.Logger) *Codec {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Codec{conn: conn, logger: logger}
}

// DecodeInbound parses one text frame's JSON payload. Malformed JSON or
// an unknown/missing type is reported as an error — the caller (Next)
// logs it at Warn and moves on, per §4.1's "silently dropped with a
// warning log".
func DecodeInbound(data []byte) (*InboundEvent, error) {
	var ev InboundEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if !knownInboundKinds[ev.Kind] {
		return nil, &ErrUnknownFrame{Type: string(ev.Kind)}
	}
	return &ev, nil
}

// Next blocks for the next inbound text frame, decodes it, and retries
// on a malformed/unknown frame rather than surfacing it to the caller —
// only a channel-level error (EOF, reset) propagates.
func (c *Codec) Next(ctx context.Context) (*InboundEvent, error) {
	for {
		mt, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt != websocket.MessageText {
			c.logger.Warn("dropping unexpected binary frame with no preceding meta")
			continue
		}
		ev, err := DecodeInbound(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		return ev, nil
	}
}

// ReadBinary reads exactly one binary frame and verifies it matches
// expectedLen, the audio_chunk_meta/tts_chunk_meta contract of §4.1. A
// length mismatch or a non-binary frame is ErrFrameProtocolViolation.
func (c *Codec) ReadBinary(ctx context.Context, expectedLen int) ([]byte, error) {
	mt, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageBinary {
		return nil, ErrFrameProtocolViolation
	}
	if len(data) != expectedLen {
		return nil, ErrFrameProtocolViolation
	}
	return data, nil
}

// WriteJSON encodes v with sonic and writes it as one text frame.
func (c *Codec) WriteJSON(ctx context.Context, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// WriteBinary writes one binary frame. Callers must write the matching
// meta frame via WriteJSON immediately before, with no other frame
// interleaved (spec §5).
func (c *Codec) WriteBinary(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

// Close closes the underlying channel with the given status and reason.
func (c *Codec) Close(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}

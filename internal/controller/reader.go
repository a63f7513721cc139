package controller

import (
	"context"

	"github.com/lokutor-ai/voice-gateway/internal/protocol"
)

// Frame is one fully-materialized inbound unit: a decoded event, plus the
// matching binary payload when Event.Kind is KindAudioChunkMeta. Err is set
// either for the frame-protocol violation (wrong-length/missing binary
// frame) or a genuine channel-level failure; callers distinguish the two
// with errors.Is(err, protocol.ErrFrameProtocolViolation).
type Frame struct {
	Event *protocol.InboundEvent
	Audio []byte
	Err   error
}

// readLoop decodes one text frame at a time and, for audio_chunk_meta,
// immediately consumes the matching binary frame before handing the pair
// to out — spec §4.1's "meta frame immediately followed by exactly one
// binary frame" contract lives here, one layer above the Codec itself.
func readLoop(ctx context.Context, codec *protocol.Codec, out chan<- Frame) {
	for {
		ev, err := codec.Next(ctx)
		if err != nil {
			out <- Frame{Err: err}
			return
		}

		f := Frame{Event: ev}
		if ev.Kind == protocol.KindAudioChunkMeta {
			data, berr := codec.ReadBinary(ctx, ev.LenBytes)
			if berr != nil {
				f.Err = berr
			} else {
				f.Audio = data
			}
		}

		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

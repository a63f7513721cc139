package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/websocket"
)

func TestDecodeInboundKnownKind(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"type":"recording_started","session":"sess-A"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != KindRecordingStarted || ev.Session != "sess-A" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDecodeInboundUnknownKind(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"teleport","session":"sess-A"}`))
	if err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}

func TestDecodeInboundMissingType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"session":"sess-A"}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestDecodeInboundMalformedJSON(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed json")
	}
}

// withEchoServer spins up a websocket server that, for each call, runs
// serverFn against the accepted connection, and returns a client Codec
// dialed against it.
func withEchoServer(t *testing.T, serverFn func(conn *websocket.Conn)) *Codec {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		serverFn(conn)
	}))
	t.Cleanup(server.Close)

	url := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return New(conn, nil)
}

func TestCodecNextSkipsMalformedFrames(t *testing.T) {
	codec := withEchoServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"unknown_kind"}`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping","session":"sess-A"}`))
	})

	ev, err := codec.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != KindPing {
		t.Errorf("expected ping to survive malformed frames before it, got %s", ev.Kind)
	}
}

func TestCodecReadBinaryLengthMismatch(t *testing.T) {
	codec := withEchoServer(t, func(conn *websocket.Conn) {
		conn.Write(context.Background(), websocket.MessageBinary, []byte{1, 2, 3})
	})

	_, err := codec.ReadBinary(context.Background(), 4)
	if err != ErrFrameProtocolViolation {
		t.Errorf("expected ErrFrameProtocolViolation, got %v", err)
	}
}

func TestCodecReadBinaryMatchingLength(t *testing.T) {
	codec := withEchoServer(t, func(conn *websocket.Conn) {
		conn.Write(context.Background(), websocket.MessageBinary, []byte{1, 2, 3})
	})

	data, err := codec.ReadBinary(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("expected 3 bytes, got %d", len(data))
	}
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cazapp/famicall/internal/proto"
)

// sender is the session's outbound surface; Transport implements it and
// tests substitute a recorder.
type sender interface {
	Send(v any) error
}

// Transport is the client side of the signaling WebSocket. It authenticates
// once at dial time and delivers decoded frames until the connection drops.
type Transport struct {
	conn   *websocket.Conn
	frames chan []byte
	logger zerolog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the signaling endpoint, passing the bearer token in the
// Authorization header.
func Dial(ctx context.Context, url, token string, logger zerolog.Logger) (*Transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial signaling: unauthorized")
		}
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	t := &Transport{
		conn:   conn,
		frames: make(chan []byte, 32),
		logger: logger,
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Frames delivers inbound signaling messages. The channel is closed when the
// transport drops, for any reason; the session treats that as its own
// disconnect.
func (t *Transport) Frames() <-chan []byte {
	return t.frames
}

func (t *Transport) Send(v any) error {
	b, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	return nil
}

func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		_ = t.conn.Close()
	})
}

func (t *Transport) readLoop() {
	defer close(t.frames)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Warn().Err(err).Str("module", "client.transport").Msg("read error")
			}
			t.Close()
			return
		}
		select {
		case t.frames <- data:
		default:
			// Slow consumer only loses its own frames.
			t.logger.Warn().Str("module", "client.transport").Msg("frame dropped")
		}
	}
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/app"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame types sent on stream connections.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// StreamFrame is one message on a stream connection.
type StreamFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) streamTimeline(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := watchPeer(r.Context(), conn)
	defer cancel()
	sub := s.svc.Timeline.Subscribe(ctx, limit)
	pump(ctx, conn, sub, s.log)
}

func (s *Server) streamPost(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := watchPeer(r.Context(), conn)
	defer cancel()
	sub := s.svc.Timeline.SubscribePost(ctx, mux.Vars(r)["id"])
	pump(ctx, conn, sub, s.log)
}

// watchPeer reads from conn until it fails, then cancels the returned
// context. Clients never send data; reading processes pongs and close
// frames.
func watchPeer(parent context.Context, conn *websocket.Conn) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx, cancel
}

// pump writes snapshots of sub to conn until either side ends. It owns
// all writes on conn and closes it on return.
func pump[T any](ctx context.Context, conn *websocket.Conn, sub *app.Subscription[T], log *zap.Logger) {
	defer conn.Close()
	defer sub.Close()

	snaps := make(chan StreamFrame)
	go func() {
		defer close(snaps)
		for val, err := range sub.All(ctx) {
			frame := StreamFrame{Type: FrameSnapshot, Data: val}
			if err != nil {
				_, code := statusFor(err)
				frame = StreamFrame{Type: FrameError, Error: err.Error(), Code: code}
			}
			select {
			case snaps <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case frame, ok := <-snaps:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

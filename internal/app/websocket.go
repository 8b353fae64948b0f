package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"toggl-earnings/internal/broadcast"
)

// wsSubscriber adapts a websocket connection to broadcast.Subscriber.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(ctx context.Context, msg broadcast.Message) error {
	return wsjson.Write(ctx, s.conn, msg)
}

// handleWebsocket pushes {"month": ...} on connect and on every change, and
// answers "ping" with "pong". Other inbound messages are ignored.
func (a *App) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.Server.OriginPatterns,
	})
	if err != nil {
		a.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	ctx := r.Context()
	sub := &wsSubscriber{id: uuid.NewString(), conn: conn}
	if err := a.poller.Subscribe(ctx, sub); err != nil {
		return
	}
	defer a.poller.Unsubscribe(sub)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				a.log.Debug("websocket read failed", slog.String("id", sub.id), slog.String("error", err.Error()))
			}
			return
		}
		if typ == websocket.MessageText && string(data) == "ping" {
			if err := conn.Write(ctx, websocket.MessageText, []byte("pong")); err != nil {
				return
			}
		}
	}
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-arena-backend/internal/gateway"
	"github.com/DoyleJ11/dice-arena-backend/internal/metrics"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 8 << 10
)

type Options struct {
	// OriginPatterns are extra hosts allowed to connect cross-origin,
	// e.g. "localhost:*".
	OriginPatterns []string
	OutboxSize     int
}

func Handler(g *gateway.Gateway, logger *zap.Logger, opts Options) http.HandlerFunc {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 32
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)

		connID := uuid.NewString()
		log := logger.With(zap.String("conn_id", connID))
		metrics.ConnectionsActive.Inc()
		defer metrics.ConnectionsActive.Dec()
		log.Debug("client connected", zap.String("remote", r.RemoteAddr))

		// Rooms may keep a reference after we leave, so out is never closed;
		// sends into it are non-blocking.
		out := make(chan protocol.ServerMessage, opts.OutboxSize)
		client := room.Conn{ID: connID, Outbox: out}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		defer func() {
			// The request context is gone by now, so detach on a fresh one.
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			g.Disconnect(dctx, connID)
			log.Debug("client disconnected")
		}()

		// Writer goroutine
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-out:
					payload, err := json.Marshal(msg)
					if err != nil {
						log.Error("marshal server message", zap.String("type", msg.Type), zap.Error(err))
						continue
					}
					wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
					err = conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						// a stuck client is dropped; the reader sees the close
						log.Debug("write failed", zap.Error(err))
						_ = conn.Close(websocket.StatusPolicyViolation, "write timeout")
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			g.HandleFrame(ctx, client, data)
		}
	}
}

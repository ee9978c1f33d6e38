// Package ws is the per-connection protocol endpoint: it upgrades HTTP
// requests, greets the client, broadcasts periodic state snapshots scoped to
// the connection, and dispatches inbound command envelopes.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voidstar.gg/internal/chat"
	"voidstar.gg/internal/game"
	"voidstar.gg/internal/protocol"
)

const outQueueSize = 64

type Server struct {
	store          *game.Store
	relay          *chat.Relay
	log            *slog.Logger
	broadcastEvery time.Duration

	clients  atomic.Int64
	upgrader websocket.Upgrader
}

func NewServer(store *game.Store, relay *chat.Relay, logger *slog.Logger, broadcastEvery time.Duration) *Server {
	return &Server{
		store:          store,
		relay:          relay,
		log:            logger,
		broadcastEvery: broadcastEvery,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// ClientCount reports the number of open connections.
func (s *Server) ClientCount() int64 { return s.clients.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("OK"))
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		s.clients.Add(1)
		defer s.clients.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, outQueueSize)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		s.send(ctx, out, protocol.Greeting{Message: protocol.GreetingText})

		// Broadcast task, bound to this connection's lifetime.
		go s.broadcast(ctx, out)

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			if string(msg) == "ping" {
				s.enqueue(ctx, out, []byte("pong"))
				continue
			}
			s.dispatch(ctx, out, msg)
		}
	}
}

func (s *Server) broadcast(ctx context.Context, out chan<- []byte) {
	t := time.NewTicker(s.broadcastEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.send(ctx, out, protocol.OutEnvelope{
				Type: protocol.TypeGameStateUpdate,
				Data: s.store.Snapshot(),
			})
		}
	}
}

func (s *Server) dispatch(ctx context.Context, out chan<- []byte, msg []byte) {
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		s.log.Warn("dropping malformed message", "err", err)
		return
	}

	switch env.Type {
	case protocol.TypePlayerPosition:
		d, err := protocol.DecodePlayerPosition(env.Data)
		if err != nil {
			s.log.Warn("invalid playerPosition payload", "err", err)
			return
		}
		s.store.SetPlayerPosition(d.X, d.Y)

	case protocol.TypeCallForChat:
		if err := protocol.DecodeCallForChat(env.Data); err != nil {
			s.log.Warn("invalid callForChat payload", "err", err)
			return
		}
		if agentID, ok := s.store.CallForChat(); ok {
			s.log.Info("conversation started", "agent", agentID)
		}

	case protocol.TypeChatMessage:
		d, err := protocol.DecodeChatMessage(env.Data)
		if err != nil {
			s.log.Warn("invalid chatMessage payload", "err", err)
			return
		}
		// The stream is long-running; run it off the reader loop so the
		// connection keeps receiving other commands. It shares the
		// connection context, so closing the connection cancels it.
		go func() {
			err := s.relay.Run(ctx, d.To, d.Message, func(c protocol.ChatChunkData) {
				s.send(ctx, out, protocol.OutEnvelope{Type: protocol.TypeChatMessageChunk, Data: c})
			})
			if err != nil && ctx.Err() == nil {
				s.log.Error("chat relay failed", "to", d.To, "err", err)
			}
		}()

	default:
		s.log.Warn("dropping unknown message type", "type", env.Type)
	}
}

func (s *Server) send(ctx context.Context, out chan<- []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal outbound message", "err", err)
		return
	}
	s.enqueue(ctx, out, b)
}

// enqueue drops the message when the client cannot keep up; snapshots are
// superseded 100ms later anyway.
func (s *Server) enqueue(ctx context.Context, out chan<- []byte, b []byte) {
	select {
	case out <- b:
	case <-ctx.Done():
	default:
		s.log.Debug("outbound queue full, dropping message")
	}
}

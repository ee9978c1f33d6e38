// Probe client: connects to the game server, random-walks the player, calls
// for a chat when an agent is close enough and prints the streamed reply.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voidstar.gg/internal/game"
	"voidstar.gg/internal/protocol"
)

func main() {
	var (
		url = flag.String("url", "ws://localhost:8080/api/ws", "ws url")
		say = flag.String("say", "Hello, who are you?", "message sent once a conversation starts")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var (
		pos       game.Position
		chatting  string
		lastMoved time.Time
	)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			// The greeting is a bare {message} payload, not an envelope.
			var greeting protocol.Greeting
			if json.Unmarshal(msg, &greeting) == nil && greeting.Message != "" {
				logger.Printf("server says: %s", greeting.Message)
			}
			continue
		}

		switch env.Type {
		case protocol.TypeGameStateUpdate:
			var snap game.Snapshot
			if err := json.Unmarshal(env.Data, &snap); err != nil {
				continue
			}
			if time.Since(lastMoved) < 500*time.Millisecond {
				continue
			}
			lastMoved = time.Now()

			pos = game.Position{
				X: snap.Player.Position.X + (rng.Float64()-0.5),
				Y: snap.Player.Position.Y + (rng.Float64()-0.5),
			}
			_ = conn.WriteJSON(protocol.OutEnvelope{
				Type: protocol.TypePlayerPosition,
				Data: protocol.PlayerPositionData{X: pos.X, Y: pos.Y},
			})

			if chatting == "" {
				if id, d := nearest(snap, pos); id != "" && d < 2.5 {
					_ = conn.WriteJSON(protocol.OutEnvelope{Type: protocol.TypeCallForChat, Data: map[string]any{}})
					_ = conn.WriteJSON(protocol.OutEnvelope{
						Type: protocol.TypeChatMessage,
						Data: protocol.ChatMessageData{To: id, Message: *say},
					})
					chatting = id
					logger.Printf("calling agent %s for a chat (distance %.2f)", id, d)
				}
			}

		case protocol.TypeChatMessageChunk:
			var chunk protocol.ChatChunkData
			if err := json.Unmarshal(env.Data, &chunk); err != nil {
				continue
			}
			os.Stdout.WriteString(chunk.Message)
			if chunk.Ended {
				os.Stdout.WriteString("\n")
				logger.Printf("chat with %s done", chunk.From)
			}
		}
	}
}

func nearest(snap game.Snapshot, from game.Position) (string, float64) {
	bestID, bestD := "", math.Inf(1)
	for _, a := range snap.Agents {
		d := math.Hypot(a.Position.X-from.X, a.Position.Y-from.Y)
		if d < bestD {
			bestID, bestD = a.ID, d
		}
	}
	return bestID, bestD
}

// Package chat bridges validated chatMessage commands to the completion
// service: it builds the role-tagged transcript, streams the response back to
// the originating connection, and keeps the pair history current.
package chat

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"voidstar.gg/internal/game"
	"voidstar.gg/internal/llm"
	"voidstar.gg/internal/protocol"
)

// persona is the fixed system instruction framing every agent.
const persona = "You are an entity drifting in a void of nothingness. You are " +
	"endlessly curious about the few other entities sharing the void and you " +
	"love trading overheard stories about them. You speak in short, wistful " +
	"sentences and you never break character or mention being an AI."

// Completer is the streaming completion service the relay talks to.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []llm.Message) (<-chan llm.StreamEvent, error)
}

// Transcripts receives completed chat entries; nil disables transcript
// logging.
type Transcripts interface {
	Write(e game.ChatEntry) error
}

type Relay struct {
	store       *game.Store
	completer   Completer
	transcripts Transcripts
	log         *slog.Logger
}

func NewRelay(store *game.Store, completer Completer, transcripts Transcripts, logger *slog.Logger) *Relay {
	return &Relay{store: store, completer: completer, transcripts: transcripts, log: logger}
}

// Run relays one player message to the agent identified by `to`. The player's
// outbound message is recorded first, under a fresh stream id that is already
// complete. Each response chunk is merged into the shared history and handed
// to send for forwarding; the history keeps whatever was merged before a
// stream error (no rollback).
func (r *Relay) Run(ctx context.Context, to, message string, send func(protocol.ChatChunkData)) error {
	history := r.store.History(game.PlayerID, to)

	out := r.store.AppendMessage(game.PlayerID, to, uuid.NewString(), message)
	r.logTranscript(out)

	events, err := r.completer.StreamCompletion(ctx, r.transcript(history, to, message))
	if err != nil {
		return goerr.Wrap(err, "start completion stream", goerr.V("to", to))
	}

	for ev := range events {
		if ev.Err != nil {
			return goerr.Wrap(ev.Err, "completion stream aborted", goerr.V("to", to))
		}
		entry := r.store.MergeChunk(to, game.PlayerID, ev.Chunk.StreamID, ev.Chunk.Content)
		send(protocol.ChatChunkData{
			StreamID: ev.Chunk.StreamID,
			From:     to,
			To:       game.PlayerID,
			Message:  ev.Chunk.Content,
			Ended:    ev.Chunk.Ended,
		})
		if ev.Chunk.Ended {
			r.logTranscript(entry)
		}
	}
	return nil
}

// transcript reinterprets the pair history as role-tagged turns: the persona,
// then player->agent entries as user turns and agent->player entries as
// assistant turns, then the new user turn. Entries matching neither direction
// are a data-integrity fault; they are logged and skipped, never forwarded.
func (r *Relay) transcript(history []game.ChatEntry, to, message string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: persona})
	for _, e := range history {
		switch {
		case e.From == game.PlayerID && e.To == to:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: e.Message})
		case e.From == to && e.To == game.PlayerID:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: e.Message})
		default:
			r.log.Error("invalid chat history entry",
				"id", e.ID, "from", e.From, "to", e.To, "expected", to)
		}
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

func (r *Relay) logTranscript(e game.ChatEntry) {
	if r.transcripts == nil {
		return
	}
	if err := r.transcripts.Write(e); err != nil {
		r.log.Warn("transcript write failed", "err", err)
	}
}

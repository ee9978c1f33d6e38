package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voidstar.gg/internal/game"
	"voidstar.gg/internal/llm"
	"voidstar.gg/internal/protocol"
)

type stubCompleter struct {
	gotMessages []llm.Message
	events      []llm.StreamEvent
	err         error
}

func (s *stubCompleter) StreamCompletion(ctx context.Context, messages []llm.Message) (<-chan llm.StreamEvent, error) {
	s.gotMessages = messages
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan llm.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore() *game.Store {
	return game.NewStore(game.Config{XDim: 20, YDim: 20, MinConversationDistance: 3})
}

func TestRun_StreamsAndMergesHistory(t *testing.T) {
	store := testStore()
	completer := &stubCompleter{events: []llm.StreamEvent{
		{Chunk: llm.Chunk{StreamID: "s1", Content: "Hel"}},
		{Chunk: llm.Chunk{StreamID: "s1", Content: "lo"}},
		{Chunk: llm.Chunk{StreamID: "s1", Ended: true}},
	}}
	relay := NewRelay(store, completer, nil, testLogger())

	var sent []protocol.ChatChunkData
	err := relay.Run(context.Background(), "2", "hi there", func(c protocol.ChatChunkData) {
		sent = append(sent, c)
	})
	require.NoError(t, err)

	require.Len(t, sent, 3)
	assert.Equal(t, "2", sent[0].From)
	assert.Equal(t, game.PlayerID, sent[0].To)
	assert.Equal(t, "Hel", sent[0].Message)
	assert.True(t, sent[2].Ended)

	history := store.History(game.PlayerID, "2")
	require.Len(t, history, 2, "player message plus one accumulated reply")
	assert.Equal(t, "hi there", history[0].Message)
	assert.Equal(t, game.PlayerID, history[0].From)
	assert.Equal(t, "Hello", history[1].Message)
	assert.Equal(t, "2", history[1].From)
}

func TestRun_TranscriptRoles(t *testing.T) {
	store := testStore()
	store.AppendMessage(game.PlayerID, "2", "m1", "first question")
	store.AppendMessage("2", game.PlayerID, "m2", "first answer")

	completer := &stubCompleter{events: nil}
	relay := NewRelay(store, completer, nil, testLogger())
	require.NoError(t, relay.Run(context.Background(), "2", "second question", func(protocol.ChatChunkData) {}))

	msgs := completer.gotMessages
	require.Len(t, msgs, 4, "system + two history turns + new turn")
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, "first question", msgs[1].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "first answer", msgs[2].Content)
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
	assert.Equal(t, "second question", msgs[3].Content)
}

func TestTranscript_SkipsInvalidDirections(t *testing.T) {
	relay := NewRelay(testStore(), &stubCompleter{}, nil, testLogger())

	history := []game.ChatEntry{
		{ID: "m1", From: game.PlayerID, To: "2", Message: "fine"},
		// Entries matching neither direction are a data-integrity fault.
		{ID: "m2", From: "3", To: game.PlayerID, Message: "stray"},
		{ID: "m3", From: "2", To: "3", Message: "also stray"},
	}
	msgs := relay.transcript(history, "2", "new turn")

	require.Len(t, msgs, 3, "system + one valid turn + new turn")
	assert.Equal(t, "fine", msgs[1].Content)
	assert.Equal(t, "new turn", msgs[2].Content)
}

func TestRun_KeepsPartialHistoryOnStreamError(t *testing.T) {
	store := testStore()
	completer := &stubCompleter{events: []llm.StreamEvent{
		{Chunk: llm.Chunk{StreamID: "s1", Content: "partial"}},
		{Err: goerr.New("chunk failed validation")},
	}}
	relay := NewRelay(store, completer, nil, testLogger())

	var sent []protocol.ChatChunkData
	err := relay.Run(context.Background(), "2", "hi", func(c protocol.ChatChunkData) {
		sent = append(sent, c)
	})
	require.Error(t, err)
	require.Len(t, sent, 1)

	history := store.History(game.PlayerID, "2")
	require.Len(t, history, 2)
	assert.Equal(t, "partial", history[1].Message, "merged chunks are retained, not rolled back")
}

func TestRun_CompleterStartFailure(t *testing.T) {
	store := testStore()
	relay := NewRelay(store, &stubCompleter{err: goerr.New("boom")}, nil, testLogger())

	err := relay.Run(context.Background(), "2", "hi", func(protocol.ChatChunkData) {})
	require.Error(t, err)
	// The player's outbound message is recorded before the stream starts.
	require.Len(t, store.History(game.PlayerID, "2"), 1)
}

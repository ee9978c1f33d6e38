package sim

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"voidstar.gg/internal/game"
)

func testLoop(t *testing.T, store *game.Store) *Loop {
	t.Helper()
	return NewLoop(store, Config{
		TickEvery:   time.Second,
		WalkJitter:  0.5,
		EvictBeyond: 3,
	}, rand.New(rand.NewSource(7)), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStep_EvictsDriftedConversation(t *testing.T) {
	store := game.NewStore(game.Config{XDim: 20, YDim: 20, MinConversationDistance: 3})
	store.SeedAgents(1, rand.New(rand.NewSource(1)))
	// Pin the agent to the corner via clamping, then pair at distance 0.
	store.DisplaceAgent("1", 100, 100)
	store.SetPlayerPosition(10, 10)
	if _, ok := store.CallForChat(); !ok {
		t.Fatalf("expected a conversation at distance 0")
	}

	// Drift the player out of range, distance now > 3.
	store.SetPlayerPosition(0, 0)

	before := store.Snapshot().Agents[0].Position
	testLoop(t, store).Step()

	if got := store.ConversationsWith("1"); len(got) != 0 {
		t.Fatalf("agent still in conversations: %v", got)
	}
	// The eviction tick never moves the agent.
	if after := store.Snapshot().Agents[0].Position; after != before {
		t.Fatalf("agent moved during eviction tick: %v -> %v", before, after)
	}
}

func TestStep_HoldsStillWhileChatting(t *testing.T) {
	store := game.NewStore(game.Config{XDim: 20, YDim: 20, MinConversationDistance: 3})
	store.SetPlayerPosition(1, 1)
	store.SeedAgents(1, rand.New(rand.NewSource(3)))
	// Force a known nearby position, then pair up.
	store.DisplaceAgent("1", 100, 100) // clamps to corner
	store.SetPlayerPosition(10, 10)
	if _, ok := store.CallForChat(); !ok {
		t.Fatalf("expected conversation at distance 0")
	}

	before := store.Snapshot().Agents[0].Position
	loop := testLoop(t, store)
	for i := 0; i < 5; i++ {
		loop.Step()
	}
	if after := store.Snapshot().Agents[0].Position; after != before {
		t.Fatalf("chatting agent moved: %v -> %v", before, after)
	}
	if got := store.ConversationsWith("1"); len(got) != 1 {
		t.Fatalf("conversation dropped while in range: %v", got)
	}
}

func TestStep_RandomWalkStaysWithinJitterAndBounds(t *testing.T) {
	store := game.NewStore(game.Config{XDim: 20, YDim: 20, MinConversationDistance: 3})
	store.SeedAgents(5, rand.New(rand.NewSource(11)))
	loop := testLoop(t, store)

	for tick := 0; tick < 50; tick++ {
		before := store.Snapshot().Agents
		loop.Step()
		after := store.Snapshot().Agents
		for i := range after {
			dx := after[i].Position.X - before[i].Position.X
			dy := after[i].Position.Y - before[i].Position.Y
			// Clamping only ever shrinks a step, so each component stays
			// within the jitter bound.
			if math.Abs(dx) > 0.5 || math.Abs(dy) > 0.5 {
				t.Fatalf("tick %d agent %s stepped (%v,%v), beyond jitter", tick, after[i].ID, dx, dy)
			}
			if c := store.Clamp(after[i].Position.X, after[i].Position.Y); c != after[i].Position {
				t.Fatalf("agent %s out of bounds at %v", after[i].ID, after[i].Position)
			}
		}
	}
}

// Package sim runs the fixed-tick agent simulation: agents random-walk the
// world unless they are talking to the player, and drift apart conversations
// are torn down.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"voidstar.gg/internal/game"
)

type Config struct {
	TickEvery   time.Duration
	WalkJitter  float64
	EvictBeyond float64 // distance at which a player conversation is dropped
}

type Loop struct {
	store *game.Store
	cfg   Config
	rng   *rand.Rand
	log   *slog.Logger
}

func NewLoop(store *game.Store, cfg Config, rng *rand.Rand, logger *slog.Logger) *Loop {
	return &Loop{store: store, cfg: cfg, rng: rng, log: logger}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.TickEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l.Step()
		}
	}
}

// Step advances the simulation by one tick. For every agent, in creation
// order: an agent in a conversation with the player holds still, and is
// evicted from all its conversations once it has drifted beyond the eviction
// distance; any other agent takes an independent uniform random step on each
// axis, clamped to world bounds.
func (l *Loop) Step() {
	for _, id := range l.store.AgentIDs() {
		if l.store.InConversationWithPlayer(id) {
			dist, ok := l.store.AgentDistanceToPlayer(id)
			if ok && dist > l.cfg.EvictBeyond {
				l.store.ExitAllConversations(id)
				l.log.Debug("conversation evicted", "agent", id, "distance", dist)
			}
			continue
		}
		dx := (l.rng.Float64() - 0.5) * 2 * l.cfg.WalkJitter
		dy := (l.rng.Float64() - 0.5) * 2 * l.cfg.WalkJitter
		l.store.DisplaceAgent(id, dx, dy)
	}
}

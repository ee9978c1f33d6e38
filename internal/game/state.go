// Package game holds the process-wide authoritative game state: the player,
// the autonomous agents, active conversations and per-pair chat histories.
// Every component holds a reference to one Store; all access goes through its
// methods, each of which is atomic under the store lock.
package game

import (
	"math"
	"math/rand"
	"strconv"
	"sync"
)

// PlayerID is the participant identifier the singleton player uses in
// conversations and chat histories.
const PlayerID = "player"

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Agent struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

type Player struct {
	Position Position `json:"position"`
}

type Conversation struct {
	Parties []string `json:"parties"`
}

// ChatEntry is one logical message in a pair history. Streamed responses
// accumulate into a single entry identified by its stream id.
type ChatEntry struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// Snapshot is the wire representation broadcast to every client.
type Snapshot struct {
	Player              Player         `json:"player"`
	Agents              []Agent        `json:"agents"`
	ActiveConversations []Conversation `json:"activeConversations"`
}

// Metrics is a read-only counter view for the /metrics endpoint.
type Metrics struct {
	Agents        int
	Conversations int
}

type Config struct {
	XDim                    float64
	YDim                    float64
	MinConversationDistance float64
}

type Store struct {
	cfg Config

	mu            sync.RWMutex
	player        Player
	agents        []Agent
	conversations []Conversation
	histories     map[string][]*ChatEntry
}

func NewStore(cfg Config) *Store {
	return &Store{
		cfg:       cfg,
		histories: make(map[string][]*ChatEntry),
	}
}

// SeedAgents creates n agents with ids "1".."n" at uniform random positions.
// Creation order is stable for the process lifetime; it is also the tie-break
// order for nearest-agent selection.
func (s *Store) SeedAgents(n int, rng *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.agents = append(s.agents, Agent{
			ID: strconv.Itoa(i + 1),
			Position: Position{
				X: (rng.Float64() - 0.5) * s.cfg.XDim,
				Y: (rng.Float64() - 0.5) * s.cfg.YDim,
			},
		})
	}
}

// Clamp restricts a coordinate pair to the world half-extents. Pure and
// idempotent.
func (s *Store) Clamp(x, y float64) Position {
	return Position{
		X: math.Min(math.Max(x, -s.cfg.XDim/2), s.cfg.XDim/2),
		Y: math.Min(math.Max(y, -s.cfg.YDim/2), s.cfg.YDim/2),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Player:              s.player,
		Agents:              make([]Agent, len(s.agents)),
		ActiveConversations: make([]Conversation, 0, len(s.conversations)),
	}
	copy(snap.Agents, s.agents)
	for _, c := range s.conversations {
		parties := make([]string, len(c.Parties))
		copy(parties, c.Parties)
		snap.ActiveConversations = append(snap.ActiveConversations, Conversation{Parties: parties})
	}
	return snap
}

func (s *Store) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Metrics{Agents: len(s.agents), Conversations: len(s.conversations)}
}

func (s *Store) SetPlayerPosition(x, y float64) {
	p := s.Clamp(x, y)
	s.mu.Lock()
	s.player.Position = p
	s.mu.Unlock()
}

func (s *Store) PlayerPosition() Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player.Position
}

// AgentIDs returns agent ids in creation order.
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.agents))
	for i, a := range s.agents {
		ids[i] = a.ID
	}
	return ids
}

// ConversationsWith returns every conversation containing id. An empty slice
// means id is not in any conversation.
func (s *Store) ConversationsWith(id string) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationsWithLocked(id)
}

func (s *Store) conversationsWithLocked(id string) []Conversation {
	var out []Conversation
	for _, c := range s.conversations {
		if containsParty(c, id) {
			parties := make([]string, len(c.Parties))
			copy(parties, c.Parties)
			out = append(out, Conversation{Parties: parties})
		}
	}
	return out
}

// InConversationWithPlayer reports whether id shares a conversation with the
// player.
func (s *Store) InConversationWithPlayer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if containsParty(c, id) && containsParty(c, PlayerID) {
			return true
		}
	}
	return false
}

// ExitAllConversations removes id from the membership of every conversation.
// A conversation left with fewer than two parties is no longer valid and is
// pruned.
func (s *Store) ExitAllConversations(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitAllLocked(id)
}

func (s *Store) exitAllLocked(id string) {
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		parties := c.Parties[:0]
		for _, p := range c.Parties {
			if p != id {
				parties = append(parties, p)
			}
		}
		c.Parties = parties
		if len(c.Parties) >= 2 {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
}

// AgentDistanceToPlayer returns the Euclidean distance between the agent and
// the player. ok is false for unknown agent ids.
func (s *Store) AgentDistanceToPlayer(id string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.ID == id {
			return distance(a.Position, s.player.Position), true
		}
	}
	return 0, false
}

// DisplaceAgent moves an agent by (dx, dy), clamped to world bounds.
func (s *Store) DisplaceAgent(id string, dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents {
		if s.agents[i].ID == id {
			p := s.agents[i].Position
			s.agents[i].Position = s.Clamp(p.X+dx, p.Y+dy)
			return
		}
	}
}

// CallForChat pairs the player with the nearest agent. The player first exits
// any conversation it is in. If the nearest agent (first encountered wins on
// ties) is strictly closer than the minimum conversation distance, that agent
// is evicted from its own conversations and a fresh conversation
// {agentID, "player"} is created. Otherwise this is a silent no-op.
func (s *Store) CallForChat() (agentID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exitAllLocked(PlayerID)

	best := -1
	bestDist := math.Inf(1)
	for i, a := range s.agents {
		if d := distance(a.Position, s.player.Position); d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 || bestDist >= s.cfg.MinConversationDistance {
		return "", false
	}

	agentID = s.agents[best].ID
	s.exitAllLocked(agentID)
	s.conversations = append(s.conversations, Conversation{Parties: []string{agentID, PlayerID}})
	return agentID, true
}

// PairKey computes the canonical chat-history key for two participants: the
// identifiers sorted and joined, so both directions address one history.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

// History returns a copy of the chat history shared by a and b, oldest first.
func (s *Store) History(a, b string) []ChatEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.histories[PairKey(a, b)]
	out := make([]ChatEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return out
}

// AppendMessage records a completed message (no further chunks expected for
// its stream id).
func (s *Store) AppendMessage(from, to, streamID, message string) ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PairKey(from, to)
	e := &ChatEntry{ID: streamID, From: from, To: to, Message: message}
	s.histories[key] = append(s.histories[key], e)
	return *e
}

// MergeChunk accumulates a streamed chunk into the pair history: text is
// concatenated onto the entry with a matching stream id, or a new entry is
// created when the id is unseen. Returns the accumulated entry.
func (s *Store) MergeChunk(from, to, streamID, text string) ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PairKey(from, to)
	for _, e := range s.histories[key] {
		if e.ID == streamID {
			e.Message += text
			return *e
		}
	}
	e := &ChatEntry{ID: streamID, From: from, To: to, Message: text}
	s.histories[key] = append(s.histories[key], e)
	return *e
}

func containsParty(c Conversation, id string) bool {
	for _, p := range c.Parties {
		if p == id {
			return true
		}
	}
	return false
}

func distance(a, b Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}


// Package protocol defines the {type, data} envelope spoken over the game
// WebSocket and the schema validation applied to inbound payloads.
package protocol

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"voidstar.gg/schemas"
)

// Inbound command types.
const (
	TypePlayerPosition = "playerPosition"
	TypeCallForChat    = "callForChat"
	TypeChatMessage    = "chatMessage"
)

// Outbound message types.
const (
	TypeGameStateUpdate  = "gameStateUpdate"
	TypeChatMessageChunk = "chatMessageChunk"
)

// Envelope wraps every inbound message. Data stays raw until the type-specific
// schema has validated it.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return e, goerr.Wrap(err, "malformed envelope")
	}
	if e.Type == "" {
		return e, goerr.New("envelope missing type")
	}
	return e, nil
}

// OutEnvelope wraps outbound messages; Data is marshalled as-is.
type OutEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Greeting is the first payload sent on every fresh connection.
type Greeting struct {
	Message string `json:"message"`
}

const GreetingText = "Hello from the server!"

type PlayerPositionData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ChatMessageData struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// ChatChunkData is one streamed chat fragment forwarded to the client that
// issued the chatMessage command.
type ChatChunkData struct {
	StreamID string `json:"streamId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Message  string `json:"message"`
	Ended    bool   `json:"ended"`
}

var (
	playerPositionSchema = schemas.MustCompile(schemas.PlayerPosition)
	callForChatSchema    = schemas.MustCompile(schemas.CallForChat)
	chatMessageSchema    = schemas.MustCompile(schemas.ChatMessage)
)

// DecodePlayerPosition validates raw against the playerPosition schema and
// decodes it.
func DecodePlayerPosition(raw json.RawMessage) (PlayerPositionData, error) {
	var d PlayerPositionData
	if err := validate(playerPositionSchema, raw); err != nil {
		return d, err
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, goerr.Wrap(err, "decode playerPosition")
	}
	return d, nil
}

// DecodeCallForChat validates the (empty) callForChat payload. Absent data is
// treated as the empty object.
func DecodeCallForChat(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return validate(callForChatSchema, raw)
}

// DecodeChatMessage validates raw against the chatMessage schema and decodes
// it.
func DecodeChatMessage(raw json.RawMessage) (ChatMessageData, error) {
	var d ChatMessageData
	if err := validate(chatMessageSchema, raw); err != nil {
		return d, err
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, goerr.Wrap(err, "decode chatMessage")
	}
	return d, nil
}

func validate(s *jsonschema.Schema, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return goerr.Wrap(err, "malformed payload")
	}
	if err := s.Validate(v); err != nil {
		return goerr.Wrap(err, "payload failed schema validation")
	}
	return nil
}

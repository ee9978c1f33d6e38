// Package schemas embeds the JSON Schemas for inbound client payloads and for
// the upstream completion-chunk wire format.
package schemas

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed *.schema.json
var files embed.FS

// Schema file names.
const (
	PlayerPosition  = "player_position.schema.json"
	CallForChat     = "call_for_chat.schema.json"
	ChatMessage     = "chat_message.schema.json"
	CompletionChunk = "completion_chunk.schema.json"
)

// MustCompile compiles an embedded schema by file name. Panics on unknown or
// malformed schemas; these are build artifacts, not runtime input.
func MustCompile(name string) *jsonschema.Schema {
	raw, err := files.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("schemas: read %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("schemas: add %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("schemas: compile %s: %v", name, err))
	}
	return s
}

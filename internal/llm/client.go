// Package llm is a minimal client for an OpenAI-compatible streaming
// chat-completions endpoint. Responses arrive as server-sent events; every
// data payload is validated against the chunk schema before it is trusted,
// and the first invalid chunk aborts the whole stream.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"voidstar.gg/schemas"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one fragment of a streamed completion. StreamID is the upstream
// completion id shared by every chunk of one logical message.
type Chunk struct {
	StreamID string
	Content  string
	Ended    bool
}

// StreamEvent carries either a chunk or the error that terminated the stream.
// The event channel is closed after the final event.
type StreamEvent struct {
	Chunk Chunk
	Err   error
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

var chunkSchema = schemas.MustCompile(schemas.CompletionChunk)

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type completionChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion submits the transcript and returns a lazy, finite,
// non-restartable sequence of chunks. Cancelling ctx cancels the upstream
// request; so does the first chunk that fails schema validation.
func (c *Client) StreamCompletion(ctx context.Context, messages []Message) (<-chan StreamEvent, error) {
	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "encode completion request")
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "completion request failed")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, goerr.New("completion request rejected",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(msg)))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer cancel()
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			payload, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			payload = strings.TrimSpace(payload)
			if payload == "[DONE]" {
				return
			}

			chunk, err := decodeChunk([]byte(payload))
			if err != nil {
				events <- StreamEvent{Err: err}
				return
			}
			select {
			case events <- StreamEvent{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			events <- StreamEvent{Err: goerr.Wrap(err, "read completion stream")}
		}
	}()
	return events, nil
}

func decodeChunk(payload []byte) (Chunk, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return Chunk{}, goerr.Wrap(err, "malformed completion chunk")
	}
	if err := chunkSchema.Validate(v); err != nil {
		return Chunk{}, goerr.Wrap(err, "completion chunk failed schema validation")
	}
	var cc completionChunk
	if err := json.Unmarshal(payload, &cc); err != nil {
		return Chunk{}, goerr.Wrap(err, "decode completion chunk")
	}
	out := Chunk{StreamID: cc.ID}
	if len(cc.Choices) > 0 {
		out.Content = cc.Choices[0].Delta.Content
		out.Ended = cc.Choices[0].FinishReason != nil
	}
	return out, nil
}

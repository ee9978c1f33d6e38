// Package tuning loads runtime tuning from yaml with sane defaults for every
// field, so the server starts without a config file.
package tuning

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	World  World  `yaml:"world"`
	Agents Agents `yaml:"agents"`

	SimTickMs   int `yaml:"sim_tick_ms"`
	BroadcastMs int `yaml:"broadcast_ms"`

	MinConversationDistance float64 `yaml:"min_conversation_distance"`

	LLM LLM `yaml:"llm"`

	// TranscriptDir enables the compressed chat transcript log when set.
	TranscriptDir string `yaml:"transcript_dir"`
}

type World struct {
	XDim float64 `yaml:"x_dim"`
	YDim float64 `yaml:"y_dim"`
}

type Agents struct {
	Count      int     `yaml:"count"`
	WalkJitter float64 `yaml:"walk_jitter"`
}

type LLM struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

func Defaults() Tuning {
	return Tuning{
		World:                   World{XDim: 20, YDim: 20},
		Agents:                  Agents{Count: 5, WalkJitter: 0.5},
		SimTickMs:               1000,
		BroadcastMs:             100,
		MinConversationDistance: 3,
		LLM: LLM{
			Model:   "gpt-3.5-turbo",
			BaseURL: "https://api.openai.com/v1",
		},
	}
}

// Load reads tuning from path, overlaying the defaults. A missing file is an
// error; callers that want the defaults pass an empty path.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, goerr.Wrap(err, "read tuning", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, goerr.Wrap(err, "parse tuning", goerr.V("path", path))
	}
	return t, t.validate()
}

func (t Tuning) validate() error {
	if t.World.XDim <= 0 || t.World.YDim <= 0 {
		return goerr.New("world dimensions must be positive")
	}
	if t.Agents.Count < 0 {
		return goerr.New("agent count must not be negative")
	}
	if t.SimTickMs <= 0 || t.BroadcastMs <= 0 {
		return goerr.New("tick intervals must be positive")
	}
	if t.MinConversationDistance <= 0 {
		return goerr.New("min_conversation_distance must be positive")
	}
	return nil
}

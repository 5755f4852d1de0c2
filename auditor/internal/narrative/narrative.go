package narrative

import (
	"context"
	"log/slog"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
)

// failurePrefix starts the feedback text stored when generation fails.
const failurePrefix = "LLM Error generating chef feedback: "

// Prompt is everything a Generator may use to write chef feedback.
type Prompt struct {
	// System sets the writer's role and output rules.
	System string
	// User carries the facts and the task.
	User string
	// Offline is a deterministic body built from the same facts, used when
	// no language model is available.
	Offline string
}

// Generator writes the body of a chef feedback email.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// New returns the configured generator. The llm backend falls back to
// Static when its API key resolves empty.
func New(cfg config.NarrativeConfig) Generator {
	if cfg.Backend != "llm" {
		return Static{}
	}
	key := cfg.APIKey()
	if key == "" {
		slog.Warn("narrative: API key not set, using static feedback", "key_env", cfg.APIKeyEnv)
		return Static{}
	}
	return NewLLM(cfg.Endpoint, key, cfg.Model, cfg.Temperature, cfg.Timeout)
}

// FailureText is the feedback text stored in place of a narrative when
// generation fails.
func FailureText(err error) string {
	return failurePrefix + err.Error()
}

// Static returns Prompt.Offline unchanged.
type Static struct{}

func (Static) Name() string { return "static" }

func (Static) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Offline, nil
}

// Package translator defines the capability interface the dispatcher is
// written against, and the backend variants implementing it over
// OpenAI-compatible chat-completion endpoints.
package translator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vntransl/internal/batch"
	"vntransl/internal/config"
	"vntransl/internal/glossary"
	"vntransl/internal/prompt"
)

// Result is a successfully translated batch, tagged with the endpoint
// instance that produced it.
type Result struct {
	Lines          []prompt.Line
	TranslatorName string
}

// Translator is one configured translation endpoint instance. TranslateBatch
// performs exactly one request attempt; retry policy belongs to the caller.
type Translator interface {
	Name() string
	TranslateBatch(ctx context.Context, bt *batch.Batch) (Result, error)
}

// Build constructs every configured translator instance in declaration
// order. Streaming is requested per instance only when allowStream is set;
// the dispatcher disables it whenever more than one endpoint is configured.
func Build(cfg *config.Config, engine *glossary.Engine, logger *slog.Logger, allowStream bool) ([]Translator, error) {
	instances := cfg.Instances()
	translators := make([]Translator, 0, len(instances))
	for _, inst := range instances {
		client, err := NewClient(ClientConfig{
			BaseURL: inst.API,
			APIKey:  inst.APIKey,
			Model:   inst.Model,
			Timeout: time.Duration(inst.Timeout) * time.Second,
			Proxy:   cfg.Proxy,
			Stream:  allowStream,
		})
		if err != nil {
			return nil, fmt.Errorf("translator %s: %w", inst.Name, err)
		}
		builder := prompt.NewBuilder(engine, "", inst.Style, inst.PreviousLines, inst.NextLines)
		switch inst.Kind {
		case "sakura":
			translators = append(translators, newSakura(inst.Name, client, builder, logger))
		case "chatgpt":
			translators = append(translators, newChatGPT(inst.Name, client, builder, logger))
		default:
			return nil, fmt.Errorf("translator %s: unknown kind %q", inst.Name, inst.Kind)
		}
	}
	return translators, nil
}

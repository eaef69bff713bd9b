package translator

import (
	"context"
	"log/slog"

	"vntransl/internal/batch"
	"vntransl/internal/logging"
	"vntransl/internal/prompt"
)

// chatGPT drives a generic OpenAI-compatible chat model. History is carried
// as prior conversation turns rather than flattened into the prompt text.
type chatGPT struct {
	name    string
	client  *Client
	builder *prompt.Builder
	logger  *slog.Logger
}

func newChatGPT(name string, client *Client, builder *prompt.Builder, logger *slog.Logger) *chatGPT {
	return &chatGPT{
		name:    name,
		client:  client,
		builder: builder,
		logger:  logging.NewComponentLogger(logger, "translator").With(logging.String(logging.FieldTranslator, name)),
	}
}

func (c *chatGPT) Name() string { return c.name }

func (c *chatGPT) TranslateBatch(ctx context.Context, bt *batch.Batch) (Result, error) {
	p := c.builder.Build(bt)

	messages := make([]Message, 0, 2+2*len(p.History))
	messages = append(messages, Message{Role: "system", Content: p.System})
	for _, exchange := range p.History {
		messages = append(messages, Message{Role: "user", Content: exchange.Source})
		messages = append(messages, Message{Role: "assistant", Content: exchange.Translation})
	}
	messages = append(messages, Message{Role: "user", Content: p.User})

	response, err := c.client.Complete(ctx, messages, Sampling{
		Temperature: 1.0,
		TopP:        1.0,
	})
	if err != nil {
		return Result{}, err
	}

	lines, err := c.builder.ParseResponse(bt, response)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: lines, TranslatorName: c.name}, nil
}

var _ Translator = (*chatGPT)(nil)

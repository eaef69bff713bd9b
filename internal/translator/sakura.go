package translator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"vntransl/internal/batch"
	"vntransl/internal/faults"
	"vntransl/internal/logging"
	"vntransl/internal/prompt"
)

// maxFrequencyPenalty caps the anti-repetition escalation applied after a
// degenerate response.
const maxFrequencyPenalty = 0.8

// sakura drives a SakuraLLM/GalTransl endpoint. History is flattened into
// the user prompt; sampling follows the values the model family was tuned
// with, with frequency_penalty escalated after degenerate output.
type sakura struct {
	name    string
	client  *Client
	builder *prompt.Builder
	logger  *slog.Logger

	// Mutated only by the owning dispatcher worker, which serializes
	// requests per endpoint.
	frequencyPenalty float64
}

func newSakura(name string, client *Client, builder *prompt.Builder, logger *slog.Logger) *sakura {
	return &sakura{
		name:    name,
		client:  client,
		builder: builder,
		logger:  logging.NewComponentLogger(logger, "translator").With(logging.String(logging.FieldTranslator, name)),
	}
}

func (s *sakura) Name() string { return s.name }

func (s *sakura) TranslateBatch(ctx context.Context, bt *batch.Batch) (Result, error) {
	p := s.builder.Build(bt)

	messages := make([]Message, 0, 2)
	messages = append(messages, Message{Role: "system", Content: p.System})
	user := p.User
	if history := renderHistory(p.History); history != "" {
		user = history + "\n" + user
	}
	messages = append(messages, Message{Role: "user", Content: user})

	response, err := s.client.Complete(ctx, messages, Sampling{
		Temperature:      0.3,
		TopP:             0.8,
		FrequencyPenalty: s.frequencyPenalty,
	})
	if err != nil {
		return Result{}, err
	}

	sourceRunes := 0
	for i := range bt.Entries {
		sourceRunes += utf8.RuneCountInString(bt.Entries[i].Source)
	}
	if degenerate(response, maxRepetitions(sourceRunes)) || overlong(response, sourceRunes) {
		if s.frequencyPenalty < maxFrequencyPenalty {
			s.frequencyPenalty += 0.1
		}
		s.logger.Warn("degenerate response, will retry with higher frequency penalty",
			logging.String(logging.FieldEventType, "degenerate_response"))
		return Result{}, faults.Wrap(faults.ErrFormat, "translator", s.name, "degenerate response", nil)
	}
	s.frequencyPenalty = 0

	lines, err := s.builder.ParseResponse(bt, response)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: lines, TranslatorName: s.name}, nil
}

// renderHistory flattens resolved history pairs into the prompt preamble.
func renderHistory(history []prompt.Exchange) string {
	if len(history) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("历史翻译：")
	for i, exchange := range history {
		if i > 0 {
			out.WriteString("<TRNewSeq>")
		}
		out.WriteString(exchange.Translation)
	}
	return out.String()
}

// maxRepetitions scales the repetition bound with the source size so long
// batches do not trip the guard on legitimately recurring particles.
func maxRepetitions(sourceRunes int) int {
	if sourceRunes > 30 {
		return sourceRunes
	}
	return 30
}

// overlong flags a translation running past 1.5 times the source length,
// the other signature of a decoding loop.
func overlong(response string, sourceRunes int) bool {
	if sourceRunes == 0 {
		return false
	}
	return utf8.RuneCountInString(response)*2 > sourceRunes*3
}

// degenerate reports whether the response tail repeats more than limit
// times, the signature of a decoding loop.
func degenerate(response string, limit int) bool {
	runes := []rune(response)
	for length := 1; length <= len(runes)/limit; length++ {
		tail := string(runes[len(runes)-length:])
		count := 0
		for rest := response; strings.HasSuffix(rest, tail); rest = rest[:len(rest)-len(tail)] {
			count++
			if count >= limit {
				return true
			}
		}
	}
	return false
}

var _ Translator = (*sakura)(nil)

// String implements fmt.Stringer for log output.
func (s *sakura) String() string { return fmt.Sprintf("sakura(%s)", s.name) }

// Package prompt assembles translation prompts from batches, history, and
// glossary material, and parses model responses back into per-entry lines.
// Building is a pure function of the batch and the read-only glossary tables.
package prompt

import (
	"fmt"
	"strings"

	"vntransl/internal/batch"
	"vntransl/internal/faults"
	"vntransl/internal/glossary"
	"vntransl/internal/textutil"
)

// DefaultSystemPrompt is the instruction the SakuraLLM/GalTransl family of
// models was tuned for.
const DefaultSystemPrompt = "你是一个视觉小说翻译模型，可以通顺地使用给定的术语表以指定的风格将日文翻译成简体中文，并联系上下文正确使用人称代词，注意不要混淆使役态和被动态的主语和宾语，不要擅自添加原文中没有的特殊符号，也不要擅自增加或减少换行。"

// Exchange is one resolved history pair supplied as conversational context.
type Exchange struct {
	Source      string
	Translation string
}

// Prompt is the assembled request material for one batch. Lines is the exact
// number of newline-delimited lines the model must return.
type Prompt struct {
	System  string
	History []Exchange
	User    string
	Lines   int
}

// Line is one parsed translation result.
type Line struct {
	Text    string
	Speaker string
}

// Builder renders prompts for one translator instance.
type Builder struct {
	engine         *glossary.Engine
	system         string
	style          string
	historyLimit   int
	lookaheadLimit int
}

// NewBuilder constructs a Builder. An empty system instruction falls back to
// DefaultSystemPrompt.
func NewBuilder(engine *glossary.Engine, system, style string, previousLines, nextLines int) *Builder {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Builder{
		engine:         engine,
		system:         system,
		style:          style,
		historyLimit:   previousLines,
		lookaheadLimit: nextLines,
	}
}

// Build assembles the prompt for a batch. Pre-glossary substitution is
// applied to every source line before glossary selection and rendering.
func (b *Builder) Build(bt *batch.Batch) Prompt {
	sources := make([]string, 0, len(bt.Entries))
	for i := range bt.Entries {
		entry := &bt.Entries[i]
		sources = append(sources, renderSource(entry.Speaker, b.engine.ApplyPre(entry.Source)))
	}

	selected := b.engine.SelectGPT(strings.Join(sources, "\n"))

	history := bt.ResolveHistory(b.historyLimit)
	exchanges := make([]Exchange, 0, len(history))
	for i := range history {
		entry := &history[i]
		exchanges = append(exchanges, Exchange{
			Source:      renderSource(entry.Speaker, b.engine.ApplyPre(entry.Source)),
			Translation: renderSource(entry.TargetSpeaker, entry.Target),
		})
	}

	lookahead := bt.Lookahead
	if b.lookaheadLimit > 0 && len(lookahead) > b.lookaheadLimit {
		lookahead = lookahead[:b.lookaheadLimit]
	}

	var user strings.Builder
	user.WriteString("参考以下术语表（可为空，格式为src->dst #备注）：\n")
	user.WriteString(glossary.FormatBlock(selected))
	fmt.Fprintf(&user, "\n根据以上术语表的对应关系和备注，结合历史剧情和上下文，以%s的风格将下面的%d行文本从日文翻译成简体中文，保持行数不变：\n", b.style, len(sources))
	user.WriteString(strings.Join(sources, "\n"))
	if len(lookahead) > 0 {
		user.WriteString("\n以下是后文，仅供参考，不要翻译：\n")
		for i, line := range lookahead {
			if i > 0 {
				user.WriteByte('\n')
			}
			user.WriteString(textutil.EscapeLine(b.engine.ApplyPre(line)))
		}
	}

	return Prompt{
		System:  b.system,
		History: exchanges,
		User:    user.String(),
		Lines:   len(sources),
	}
}

// ParseResponse validates the model's response against the batch and returns
// one Line per batch entry with post-glossary substitution applied. A line
// count differing from the request, or a blank translated line, is a format
// error and is never silently repaired.
func (b *Builder) ParseResponse(bt *batch.Batch, response string) ([]Line, error) {
	returned := strings.Split(strings.TrimRight(response, "\n"), "\n")
	if len(returned) != len(bt.Entries) {
		return nil, faults.Wrap(faults.ErrFormat, "prompt", "parse response",
			fmt.Sprintf("requested %d lines, got %d", len(bt.Entries), len(returned)), nil)
	}
	lines := make([]Line, 0, len(returned))
	for i, raw := range returned {
		if strings.TrimSpace(raw) == "" && bt.Entries[i].Source != "" {
			return nil, faults.Wrap(faults.ErrFormat, "prompt", "parse response",
				fmt.Sprintf("line %d is empty", i+1), nil)
		}
		entry := &bt.Entries[i]
		speaker, text := splitSpeaker(entry.Speaker, raw)
		text = textutil.UnescapeLine(text)
		text = trimToSourceLines(text, entry.Source)
		lines = append(lines, Line{
			Text:    b.engine.ApplyPost(text),
			Speaker: speaker,
		})
	}
	return lines, nil
}

// renderSource produces one prompt line. Dialogue by a named speaker is
// wrapped as speaker「text」 with inner corner brackets swapped to curly
// quotes so the wrapping stays unambiguous.
func renderSource(speaker, text string) string {
	if speaker != "" {
		text = strings.ReplaceAll(text, "「", "“")
		text = strings.ReplaceAll(text, "」", "”")
		text = speaker + "「" + text + "」"
	}
	return textutil.EscapeLine(text)
}

// splitSpeaker reverses renderSource on a translated line. When the original
// entry had no speaker the line passes through untouched.
func splitSpeaker(originalSpeaker, line string) (string, string) {
	if originalSpeaker == "" {
		return "", line
	}
	speaker := originalSpeaker
	content := line
	if idx := strings.Index(line, "「"); idx >= 0 {
		speaker = line[:idx]
		content = line[idx+len("「"):]
		content = strings.ReplaceAll(content, "“", "「")
		content = strings.ReplaceAll(content, "”", "」")
	}
	content = strings.TrimSuffix(content, "」")
	return speaker, content
}

// trimToSourceLines drops trailing surplus lines the model added beyond the
// source's own line count.
func trimToSourceLines(text, source string) string {
	sourceLines := strings.Count(source, "\n") + 1
	parts := strings.SplitN(text, "\n", sourceLines+1)
	if len(parts) > sourceLines {
		parts = parts[:sourceLines]
	}
	return strings.Join(parts, "\n")
}

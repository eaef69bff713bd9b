package prompt_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"vntransl/internal/batch"
	"vntransl/internal/config"
	"vntransl/internal/document"
	"vntransl/internal/faults"
	"vntransl/internal/glossary"
	"vntransl/internal/prompt"
)

func emptyEngine(t *testing.T) *glossary.Engine {
	t.Helper()
	engine, err := glossary.Load(config.Glossary{})
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func testBatch(sources ...string) *batch.Batch {
	entries := make([]document.Entry, len(sources))
	for i, source := range sources {
		entries[i] = document.Entry{Index: i, Source: source}
	}
	return &batch.Batch{FileID: "scene.json", Entries: entries}
}

func TestBuildCountsAndStyle(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	p := builder.Build(testBatch("こんにちは", "さようなら"))

	if p.Lines != 2 {
		t.Fatalf("Lines = %d, want 2", p.Lines)
	}
	if p.System != prompt.DefaultSystemPrompt {
		t.Fatalf("empty system must fall back to the default prompt")
	}
	if !strings.Contains(p.User, "2行") {
		t.Fatalf("user prompt must state the line count: %q", p.User)
	}
	if !strings.Contains(p.User, "流畅") {
		t.Fatalf("user prompt must carry the style: %q", p.User)
	}
	if !strings.Contains(p.User, "こんにちは\nさようなら") {
		t.Fatalf("sources missing from user prompt: %q", p.User)
	}
}

func TestBuildRendersSpeakerLine(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	bt := testBatch("「はい」")
	bt.Entries[0].Speaker = "アリス"
	p := builder.Build(bt)

	if !strings.Contains(p.User, "アリス「“はい”」") {
		t.Fatalf("speaker line not rendered: %q", p.User)
	}
}

func TestBuildEscapesMultilineSource(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	p := builder.Build(testBatch("一行目\n二行目"))
	if !strings.Contains(p.User, `一行目\n二行目`) {
		t.Fatalf("newline not escaped: %q", p.User)
	}
}

func TestBuildSelectsGlossaryAndLookahead(t *testing.T) {
	engine, err := glossary.Load(config.Glossary{
		GPT: config.GlossaryTable{Rules: []config.GlossaryRule{
			{Term: "アリス", Replacement: "爱丽丝", Note: "主人公"},
			{Term: "魔王", Replacement: "魔王"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	builder := prompt.NewBuilder(engine, "", "流畅", 2, 2)
	bt := testBatch("アリスが歩く")
	bt.Lookahead = []string{"後文一", "後文二", "後文三"}
	p := builder.Build(bt)

	if !strings.Contains(p.User, "アリス->爱丽丝 #主人公") {
		t.Fatalf("matched gpt rule missing: %q", p.User)
	}
	if strings.Contains(p.User, "魔王") {
		t.Fatalf("unmatched gpt rule leaked into prompt: %q", p.User)
	}
	if !strings.Contains(p.User, "不要翻译") {
		t.Fatalf("lookahead section missing: %q", p.User)
	}
	if !strings.Contains(p.User, "後文一\n後文二") || strings.Contains(p.User, "後文三") {
		t.Fatalf("lookahead not capped at 2: %q", p.User)
	}
}

func TestBuildCapsHistoryFromTail(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 2, 0)
	bt := testBatch("次")
	for i := 0; i < 4; i++ {
		bt.History = append(bt.History, document.Entry{
			Source:   fmt.Sprintf("原%d", i),
			Target:   fmt.Sprintf("译%d", i),
			Resolved: true,
		})
	}
	p := builder.Build(bt)
	if len(p.History) != 2 {
		t.Fatalf("history not capped: %d", len(p.History))
	}
	if p.History[0].Source != "原2" || p.History[1].Source != "原3" {
		t.Fatalf("history must keep the most recent exchanges: %+v", p.History)
	}
}

func TestParseResponseLineCountMismatch(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	bt := testBatch("一", "二")
	_, err := builder.ParseResponse(bt, "只有一行")
	if err == nil {
		t.Fatal("expected line count mismatch error")
	}
	if !errors.Is(err, faults.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if !faults.Retryable(err) {
		t.Fatal("format errors must be retryable")
	}
}

func TestParseResponseBlankLineFails(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	bt := testBatch("一", "二")
	if _, err := builder.ParseResponse(bt, "第一行\n   "); !errors.Is(err, faults.ErrFormat) {
		t.Fatalf("expected format error for blank line, got %v", err)
	}
}

func TestParseResponseSplitsSpeakerAndUnescapes(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	bt := testBatch("「はい、\nそうです」")
	bt.Entries[0].Speaker = "アリス"

	lines, err := builder.ParseResponse(bt, `爱丽丝「好的，\n是这样」`)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if lines[0].Speaker != "爱丽丝" {
		t.Fatalf("speaker not split: %+v", lines[0])
	}
	if lines[0].Text != "好的，\n是这样" {
		t.Fatalf("text not unescaped: %q", lines[0].Text)
	}
}

func TestParseResponseTrailingNewlineTolerated(t *testing.T) {
	builder := prompt.NewBuilder(emptyEngine(t), "", "流畅", 0, 0)
	bt := testBatch("一", "二")
	lines, err := builder.ParseResponse(bt, "甲\n乙\n")
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if lines[0].Text != "甲" || lines[1].Text != "乙" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestParseResponseAppliesPostGlossary(t *testing.T) {
	engine, err := glossary.Load(config.Glossary{
		Post: config.GlossaryTable{Rules: []config.GlossaryRule{
			{Term: "爱丽絲", Replacement: "爱丽丝"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	builder := prompt.NewBuilder(engine, "", "流畅", 0, 0)
	lines, err := builder.ParseResponse(testBatch("アリスです"), "我是爱丽絲")
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if lines[0].Text != "我是爱丽丝" {
		t.Fatalf("post glossary not applied: %q", lines[0].Text)
	}
}

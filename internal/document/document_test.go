package document_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vntransl/internal/document"
)

func writeInput(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSortedRelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "scene02.json", "[]")
	writeInput(t, dir, filepath.Join("route", "scene01.json"), "[]")
	writeInput(t, dir, "notes.txt", "skip me")

	paths, err := document.Discover(dir)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	want := []string{filepath.Join("route", "scene01.json"), "scene02.json"}
	if len(paths) != len(want) {
		t.Fatalf("Discover = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Discover = %v, want %v", paths, want)
		}
	}
}

func TestLoadAssignsIndexesAndPreExisting(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "scene.json", `[
		{"source": "こんにちは", "speaker": "アリス"},
		{"source": "既訳", "target": "已译"},
		{"source": "次の行", "scene_id": 42}
	]`)

	doc, err := document.Load(dir, "scene.json")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(doc.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(doc.Entries))
	}
	for i, entry := range doc.Entries {
		if entry.Index != i {
			t.Fatalf("entry %d has index %d", i, entry.Index)
		}
	}
	if doc.Entries[0].Speaker != "アリス" || doc.Entries[0].Resolved {
		t.Fatalf("unexpected first entry: %+v", doc.Entries[0])
	}
	if !doc.Entries[1].Resolved || doc.Entries[1].TranslateBy != document.PreExistingTranslator {
		t.Fatalf("pre-translated entry not marked: %+v", doc.Entries[1])
	}
	if doc.Untranslated() != 2 {
		t.Fatalf("Untranslated = %d, want 2", doc.Untranslated())
	}
	if _, ok := doc.Entries[2].Extra["scene_id"]; !ok {
		t.Fatalf("unknown key not preserved: %+v", doc.Entries[2])
	}
}

func TestOutputRecordDropsAbsentFields(t *testing.T) {
	entry := document.Entry{Index: 3, Source: "未訳"}
	record := entry.OutputRecord()
	if record["index"] != 3 || record["source"] != "未訳" {
		t.Fatalf("unexpected record: %v", record)
	}
	for _, key := range []string{"translation", "translate_by", "original_speaker", "speaker_translation"} {
		if _, ok := record[key]; ok {
			t.Fatalf("key %q should be absent: %v", key, record)
		}
	}

	entry = document.Entry{
		Index:         0,
		Source:        "こんにちは",
		Speaker:       "アリス",
		Target:        "你好",
		TargetSpeaker: "爱丽丝",
		TranslateBy:   "sakura-1",
		Resolved:      true,
	}
	record = entry.OutputRecord()
	if record["translation"] != "你好" || record["translate_by"] != "sakura-1" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["original_speaker"] != "アリス" || record["speaker_translation"] != "爱丽丝" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestOutputRecordOmitsUnattributedTranslation(t *testing.T) {
	// Empty sources resolve locally with no translator attribution; their
	// records carry neither translation nor translate_by.
	entry := document.Entry{Index: 1, Source: "", Resolved: true}
	record := entry.OutputRecord()
	for _, key := range []string{"translation", "translate_by"} {
		if _, ok := record[key]; ok {
			t.Fatalf("key %q should be absent: %v", key, record)
		}
	}
}

func TestApplyExistingDefaultsMissingAttribution(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeInput(t, inputDir, "scene.json", `[{"source": "一行目"}]`)
	writeInput(t, outputDir, "scene.json", `[{"index": 0, "source": "一行目", "translation": "第一行"}]`)

	doc, err := document.Load(inputDir, "scene.json")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := doc.ApplyExisting(outputDir); err != nil {
		t.Fatalf("ApplyExisting returned error: %v", err)
	}
	if doc.Entries[0].TranslateBy != document.PreExistingTranslator {
		t.Fatalf("hand-edited translation lost attribution: %+v", doc.Entries[0])
	}
	record := doc.Entries[0].OutputRecord()
	if record["translation"] != "第一行" {
		t.Fatalf("hand-edited translation dropped on rewrite: %v", record)
	}
}

func TestWriteThenResumeRoundTrip(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeInput(t, inputDir, "scene.json", `[
		{"source": "一行目", "line_id": "a1"},
		{"source": "二行目"}
	]`)

	doc, err := document.Load(inputDir, "scene.json")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	doc.Entries[0].Target = "第一行"
	doc.Entries[0].TranslateBy = "sakura-1"
	doc.Entries[0].Resolved = true
	if err := doc.Write(outputDir); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(outputDir, "scene.json"))
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["line_id"] != "a1" {
		t.Fatalf("extra key not round-tripped: %v", records[0])
	}
	if _, ok := records[1]["translation"]; ok {
		t.Fatalf("untranslated entry must not carry translation: %v", records[1])
	}

	resumed, err := document.Load(inputDir, "scene.json")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := resumed.ApplyExisting(outputDir); err != nil {
		t.Fatalf("ApplyExisting returned error: %v", err)
	}
	if !resumed.Entries[0].Resolved || resumed.Entries[0].Target != "第一行" {
		t.Fatalf("resume did not restore entry: %+v", resumed.Entries[0])
	}
	if resumed.Entries[0].TranslateBy != "sakura-1" {
		t.Fatalf("resume lost translator attribution: %+v", resumed.Entries[0])
	}
	if resumed.Entries[1].Resolved {
		t.Fatalf("untranslated entry wrongly resolved: %+v", resumed.Entries[1])
	}
}

func TestApplyExistingMissingFileIsNotAnError(t *testing.T) {
	doc := &document.Document{Path: "nope.json", Entries: []document.Entry{{Source: "x"}}}
	if err := doc.ApplyExisting(t.TempDir()); err != nil {
		t.Fatalf("missing output file should be tolerated: %v", err)
	}
}

// Package document models the translation units of a project: ordered entry
// lists loaded from JSON documents, and the index-tagged output records
// written once a file resolves.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vntransl/internal/textutil"
)

// PreExistingTranslator is the translate_by marker for entries that arrived
// already translated and were passed through without new work.
const PreExistingTranslator = "pre-existing"

// Entry is one line of source text plus optional speaker and metadata,
// addressed by its stable position in the document.
type Entry struct {
	Index         int
	Source        string
	Speaker       string
	Target        string
	TargetSpeaker string
	// TranslateBy names the translator that produced Target, or the
	// pre-existing marker for entries that arrived translated.
	TranslateBy string
	// Resolved distinguishes an intentionally empty translation from an
	// entry that has not been translated.
	Resolved bool
	// Extra carries unrecognized input keys through to the output unmodified.
	Extra map[string]json.RawMessage
}

var knownInputKeys = map[string]struct{}{
	"source":         {},
	"speaker":        {},
	"target":         {},
	"target_speaker": {},
}

// UnmarshalJSON decodes an input object, folding unknown keys into Extra.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decodeString := func(key string, dst *string) error {
		value, ok := raw[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return fmt.Errorf("entry key %q: %w", key, err)
		}
		return nil
	}
	if err := decodeString("source", &e.Source); err != nil {
		return err
	}
	if err := decodeString("speaker", &e.Speaker); err != nil {
		return err
	}
	if err := decodeString("target", &e.Target); err != nil {
		return err
	}
	if err := decodeString("target_speaker", &e.TargetSpeaker); err != nil {
		return err
	}
	for key, value := range raw {
		if _, known := knownInputKeys[key]; known {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]json.RawMessage)
		}
		e.Extra[key] = value
	}
	if e.Target != "" {
		e.Resolved = true
	}
	return nil
}

// OutputRecord renders the entry for persistence. Optional keys appear only
// when the corresponding value is present; entries whose translation failed,
// and empty sources resolved locally without attribution, carry neither
// translation nor translate_by.
func (e *Entry) OutputRecord() map[string]any {
	record := map[string]any{
		"index":  e.Index,
		"source": e.Source,
	}
	if e.Resolved && e.TranslateBy != "" {
		record["translation"] = e.Target
		record["translate_by"] = e.TranslateBy
	}
	if e.Speaker != "" {
		record["original_speaker"] = e.Speaker
	}
	if e.TargetSpeaker != "" {
		record["speaker_translation"] = e.TargetSpeaker
	}
	for key, value := range e.Extra {
		if _, taken := record[key]; taken {
			continue
		}
		record[key] = value
	}
	return record
}

// Document holds one input file's ordered entries.
type Document struct {
	// Path is the file's location relative to the project input directory.
	Path    string
	Entries []Entry
}

// Untranslated counts entries still awaiting a translation.
func (d *Document) Untranslated() int {
	count := 0
	for i := range d.Entries {
		if !d.Entries[i].Resolved {
			count++
		}
	}
	return count
}

// Discover walks the input directory and returns every JSON document path,
// relative to inputDir, in lexical order.
func Discover(inputDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads one input document. Entry indexes equal original positions.
// A UTF-8 byte order mark, common in tool-exported Japanese text, is
// tolerated and stripped.
func Load(inputDir, relPath string) (*Document, error) {
	data, err := textutil.ReadFileUTF8(filepath.Join(inputDir, relPath))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", relPath, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", relPath, err)
	}
	for i := range entries {
		entries[i].Index = i
		if entries[i].Target != "" {
			entries[i].TranslateBy = PreExistingTranslator
		}
	}
	return &Document{Path: relPath, Entries: entries}, nil
}

// ApplyExisting marks entries as resolved from a previous run's output file,
// so a resumed run issues no requests for them. Missing output files are not
// an error.
func (d *Document) ApplyExisting(outputDir string) error {
	data, err := textutil.ReadFileUTF8(filepath.Join(outputDir, d.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read existing output %s: %w", d.Path, err)
	}
	var records []struct {
		Index              int     `json:"index"`
		Translation        *string `json:"translation"`
		TranslateBy        string  `json:"translate_by"`
		SpeakerTranslation string  `json:"speaker_translation"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse existing output %s: %w", d.Path, err)
	}
	for _, record := range records {
		if record.Index < 0 || record.Index >= len(d.Entries) || record.Translation == nil {
			continue
		}
		entry := &d.Entries[record.Index]
		if entry.Resolved {
			continue
		}
		entry.Target = *record.Translation
		entry.TranslateBy = record.TranslateBy
		if entry.TranslateBy == "" {
			// Hand-edited outputs may carry a translation without
			// attribution; keep them from being dropped on rewrite.
			entry.TranslateBy = PreExistingTranslator
		}
		entry.TargetSpeaker = record.SpeakerTranslation
		entry.Resolved = true
	}
	return nil
}

// Write persists the document's output records, creating parent directories
// as needed. The write goes through a temporary file so an interrupted run
// never leaves a truncated document behind.
func (d *Document) Write(outputDir string) error {
	records := make([]map[string]any, 0, len(d.Entries))
	for i := range d.Entries {
		records = append(records, d.Entries[i].OutputRecord())
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "\t")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encode output %s: %w", d.Path, err)
	}

	target := filepath.Join(outputDir, d.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("ensure output directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", d.Path, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("finalize output %s: %w", d.Path, err)
	}
	return nil
}

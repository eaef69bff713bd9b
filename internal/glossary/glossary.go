// Package glossary loads and applies the three dictionary tables of a
// project: pre (source substitution before translation), post (target
// substitution after translation), and gpt (in-prompt reference, never
// substituted).
package glossary

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"vntransl/internal/config"
	"vntransl/internal/faults"
	"vntransl/internal/textutil"
)

// Rule is one dictionary entry. Note is populated only for gpt rules.
type Rule struct {
	Term        string
	Replacement string
	Note        string
}

// Engine owns the merged rule tables. It is read-only after Load and safe
// for unsynchronized use by every worker.
type Engine struct {
	pre  []Rule
	post []Rule
	gpt  []Rule
}

// Load merges file-based and inline rules into one table per kind. Relative
// load order is preserved; a later rule with an identical term replaces the
// earlier one and occupies the later position.
func Load(cfg config.Glossary) (*Engine, error) {
	engine := &Engine{}
	tables := []struct {
		name      string
		table     config.GlossaryTable
		withNotes bool
		dst       *[]Rule
	}{
		{"pre", cfg.Pre, false, &engine.pre},
		{"pos", cfg.Post, false, &engine.post},
		{"gpt", cfg.GPT, true, &engine.gpt},
	}
	for _, t := range tables {
		var rules []Rule
		for _, file := range t.table.Files {
			fileRules, err := ParseFile(file, t.withNotes)
			if err != nil {
				return nil, faults.Wrap(faults.ErrGlossary, "glossary", t.name, file, err)
			}
			rules = mergeRules(rules, fileRules)
		}
		for _, inline := range t.table.Rules {
			if strings.TrimSpace(inline.Term) == "" {
				continue
			}
			rules = mergeRules(rules, []Rule{{
				Term:        inline.Term,
				Replacement: inline.Replacement,
				Note:        inline.Note,
			}})
		}
		*t.dst = rules
	}
	return engine, nil
}

// ParseFile reads one dictionary file: lines of "term->replacement", blank
// lines and "//" comments ignored, "\->" escaping a literal arrow inside the
// term. When withNotes is set, a trailing " #note" is split off the
// replacement. A line without a separator is a malformed-dictionary error.
func ParseFile(path string, withNotes bool) ([]Rule, error) {
	data, err := textutil.ReadFileUTF8(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	for lineNo, line := range strings.Split(string(data), "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, err := parseLine(line, withNotes)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseLine(line string, withNotes bool) (Rule, error) {
	sep := arrowIndex(line)
	if sep < 0 {
		return Rule{}, fmt.Errorf("missing \"->\" separator in %q", line)
	}
	term := strings.ReplaceAll(strings.TrimSpace(line[:sep]), `\->`, "->")
	rest := strings.TrimSpace(line[sep+2:])
	if term == "" {
		return Rule{}, fmt.Errorf("empty term in %q", line)
	}
	rule := Rule{Term: term, Replacement: rest}
	if withNotes {
		if replacement, note, found := strings.Cut(rest, " #"); found {
			rule.Replacement = strings.TrimSpace(replacement)
			rule.Note = strings.TrimSpace(note)
		}
	}
	return rule, nil
}

// arrowIndex finds the first "->" not escaped by a preceding backslash.
func arrowIndex(line string) int {
	offset := 0
	for {
		idx := strings.Index(line[offset:], "->")
		if idx < 0 {
			return -1
		}
		abs := offset + idx
		if abs == 0 || line[abs-1] != '\\' {
			return abs
		}
		offset = abs + 2
	}
}

func mergeRules(existing, incoming []Rule) []Rule {
	for _, rule := range incoming {
		kept := existing[:0]
		for _, prior := range existing {
			if prior.Term != rule.Term {
				kept = append(kept, prior)
			}
		}
		existing = append(kept, rule)
	}
	return existing
}

// ApplyPre substitutes pre-table rules into source text.
func (e *Engine) ApplyPre(text string) string {
	return apply(e.pre, text)
}

// ApplyPost substitutes post-table rules into translated text.
func (e *Engine) ApplyPost(text string) string {
	return apply(e.post, text)
}

// apply scans left to right; at each position the longest matching term
// wins, the replacement is emitted, and scanning resumes past the term.
func apply(rules []Rule, text string) string {
	if len(rules) == 0 || text == "" {
		return text
	}
	var out strings.Builder
	out.Grow(len(text))
	for pos := 0; pos < len(text); {
		best := -1
		bestLen := 0
		for i, rule := range rules {
			if len(rule.Term) > bestLen && strings.HasPrefix(text[pos:], rule.Term) {
				best = i
				bestLen = len(rule.Term)
			}
		}
		if best < 0 {
			_, size := utf8.DecodeRuneInString(text[pos:])
			out.WriteString(text[pos : pos+size])
			pos += size
			continue
		}
		out.WriteString(rules[best].Replacement)
		pos += bestLen
	}
	return out.String()
}

// SelectGPT returns, in table order, every gpt rule whose term occurs in
// text. The table is already deduplicated by term at load time.
func (e *Engine) SelectGPT(text string) []Rule {
	var selected []Rule
	for _, rule := range e.gpt {
		if strings.Contains(text, rule.Term) {
			selected = append(selected, rule)
		}
	}
	return selected
}

// FormatBlock renders rules as the "src->dst #note" block referenced from
// prompts. The note is omitted when empty; every rule is written even when
// term equals replacement.
func FormatBlock(rules []Rule) string {
	lines := make([]string, 0, len(rules))
	for _, rule := range rules {
		line := rule.Term + "->" + rule.Replacement
		if rule.Note != "" {
			line += " #" + rule.Note
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Sizes reports the loaded rule counts (pre, post, gpt) for startup logging.
func (e *Engine) Sizes() (int, int, int) {
	return len(e.pre), len(e.post), len(e.gpt)
}

// Package merge places completed batch results back into their documents.
// Placement is keyed by entry index, never by arrival order, so the final
// output always matches the input order regardless of which endpoint
// finished first.
package merge

import (
	"fmt"
	"log/slog"
	"sync"

	"vntransl/internal/batch"
	"vntransl/internal/dispatch"
	"vntransl/internal/document"
	"vntransl/internal/faults"
	"vntransl/internal/logging"
)

// Stats summarizes one file's terminal state.
type Stats struct {
	Entries     int
	Translated  int
	PreExisting int
	Failed      int
}

// Assembler owns one file's result buffer. Outcomes arrive in arbitrary
// completion order from the single consumer of the dispatcher's result
// stream, while workers read accumulated history concurrently; the mutex
// covers both.
type Assembler struct {
	doc       *document.Document
	outputDir string
	logger    *slog.Logger

	mu            sync.Mutex
	remaining     int
	failedBatches int
	preResolved   int
	mergeErr      error
}

// NewAssembler prepares the buffer for a document with totalBatches pending
// work units.
func NewAssembler(doc *document.Document, outputDir string, totalBatches int, logger *slog.Logger) *Assembler {
	preResolved := 0
	for i := range doc.Entries {
		if doc.Entries[i].Resolved {
			preResolved++
		}
	}
	return &Assembler{
		doc:         doc,
		outputDir:   outputDir,
		logger:      logging.NewComponentLogger(logger, "merge").With(logging.String(logging.FieldFile, doc.Path)),
		remaining:   totalBatches,
		preResolved: preResolved,
	}
}

// Apply consumes one terminal batch outcome. Failed batches leave their
// entries untranslated; successful ones are written to their entries by
// index. A duplicate or out-of-range index poisons the file: merging stops,
// other files are unaffected.
func (a *Assembler) Apply(outcome dispatch.Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.remaining <= 0 {
		a.mergeErr = faults.Wrap(faults.ErrMerge, "merge", a.doc.Path, "outcome for already-completed file", nil)
		return a.mergeErr
	}
	a.remaining--

	if outcome.Failed() {
		a.failedBatches++
		a.logger.Error("batch failed, entries remain untranslated",
			logging.Int(logging.FieldBatch, outcome.Batch.StartIndex),
			logging.Int("entries", outcome.Batch.Len()),
			logging.Int(logging.FieldAttempt, outcome.Attempts),
			logging.Error(outcome.Err),
		)
		return nil
	}

	if a.mergeErr != nil {
		return a.mergeErr
	}
	if len(outcome.Result.Lines) != outcome.Batch.Len() {
		a.mergeErr = faults.Wrap(faults.ErrMerge, "merge", a.doc.Path,
			fmt.Sprintf("result carries %d lines for a %d-entry batch", len(outcome.Result.Lines), outcome.Batch.Len()), nil)
		return a.mergeErr
	}

	for i, line := range outcome.Result.Lines {
		index := outcome.Batch.Entries[i].Index
		if index < 0 || index >= len(a.doc.Entries) {
			a.mergeErr = faults.Wrap(faults.ErrMerge, "merge", a.doc.Path,
				fmt.Sprintf("index %d out of range (document has %d entries)", index, len(a.doc.Entries)), nil)
			return a.mergeErr
		}
		entry := &a.doc.Entries[index]
		if entry.Resolved {
			a.mergeErr = faults.Wrap(faults.ErrMerge, "merge", a.doc.Path,
				fmt.Sprintf("duplicate result for index %d", index), nil)
			return a.mergeErr
		}
		entry.Target = line.Text
		entry.TargetSpeaker = line.Speaker
		entry.TranslateBy = outcome.Result.TranslatorName
		entry.Resolved = true
	}
	return nil
}

// HistoryBefore returns up to limit entries resolved so far preceding index
// start, oldest first. It serves as a batch's live history source and
// reflects every outcome merged since planning.
func (a *Assembler) HistoryBefore(start, limit int) []document.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return batch.HistoryBefore(a.doc, start, limit)
}

// Done reports whether every batch of the file reached a terminal state.
func (a *Assembler) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining == 0
}

// Err returns the merge error that poisoned the file, if any.
func (a *Assembler) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mergeErr
}

// Finalize persists the file once all batches are terminal. A file with
// failed batches still produces a complete, valid document whose failed
// entries simply lack translation fields. A poisoned file is not written.
func (a *Assembler) Finalize() (Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats()
	if a.mergeErr != nil {
		return stats, a.mergeErr
	}
	if a.remaining > 0 {
		return stats, fmt.Errorf("finalize %s: %d batches still pending", a.doc.Path, a.remaining)
	}
	if err := a.doc.Write(a.outputDir); err != nil {
		return stats, err
	}
	return stats, nil
}

// Checkpoint persists whatever has merged so far. Used on run interruption;
// best effort, a poisoned file is skipped.
func (a *Assembler) Checkpoint() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mergeErr != nil {
		return a.mergeErr
	}
	return a.doc.Write(a.outputDir)
}

// stats counts entries resolved before the run as pre-existing and entries
// resolved during the run as translated, regardless of which translator the
// record attributes them to. Callers hold the mutex.
func (a *Assembler) stats() Stats {
	stats := Stats{Entries: len(a.doc.Entries), PreExisting: a.preResolved}
	resolved := 0
	for i := range a.doc.Entries {
		if a.doc.Entries[i].Resolved {
			resolved++
		}
	}
	stats.Translated = resolved - a.preResolved
	stats.Failed = len(a.doc.Entries) - resolved
	return stats
}

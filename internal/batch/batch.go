// Package batch partitions a document's entry list into the ordered work
// units submitted to translation endpoints.
package batch

import (
	"vntransl/internal/document"
)

// Batch is a bounded group of consecutive untranslated entries submitted
// together in one translation request, plus the context material resolved at
// planning time.
type Batch struct {
	// FileID is the owning document's path relative to the input directory.
	FileID string
	// StartIndex is the document index of the first entry in the batch.
	StartIndex int
	// Entries are the untranslated entries, in document order.
	Entries []document.Entry
	// History holds the most recent entries preceding the batch that were
	// already resolved when the plan was made, oldest first.
	History []document.Entry
	// HistorySource, when set, supplies the resolved entries preceding the
	// batch at translation time, so history reflects batches merged after
	// planning. The supplier must be safe to call from worker goroutines.
	HistorySource func(start, limit int) []document.Entry
	// Lookahead holds the raw source strings of upcoming entries, supplied
	// as forward context only and never translated.
	Lookahead []string
}

// ResolveHistory returns up to limit resolved entries preceding the batch,
// oldest first. A live source takes precedence over the plan-time snapshot;
// on a fresh document the snapshot is empty and only the source ever yields
// context.
func (b *Batch) ResolveHistory(limit int) []document.Entry {
	if b.HistorySource != nil && limit > 0 {
		return b.HistorySource(b.StartIndex, limit)
	}
	history := b.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// Len returns the number of entries awaiting translation in the batch.
func (b *Batch) Len() int { return len(b.Entries) }

// Plan walks the document once and groups runs of consecutive untranslated
// entries into batches of at most batchSize; the final group of a run may be
// smaller. Entries whose source is empty resolve in place to an empty
// translation and are never batched. Batches come back in document order.
func Plan(doc *document.Document, batchSize, historySize, nextLines int) []Batch {
	if batchSize <= 0 {
		batchSize = 1
	}

	// Empty-source fast path: nothing to send, the translation is empty.
	for i := range doc.Entries {
		entry := &doc.Entries[i]
		if !entry.Resolved && entry.Source == "" {
			entry.Target = ""
			entry.Resolved = true
		}
	}

	var batches []Batch
	var run []document.Entry
	runStart := 0

	flush := func() {
		for len(run) > 0 {
			size := min(batchSize, len(run))
			chunk := run[:size:size]
			batches = append(batches, Batch{
				FileID:     doc.Path,
				StartIndex: runStart,
				Entries:    chunk,
				History:    HistoryBefore(doc, runStart, historySize),
				Lookahead:  lookaheadAfter(doc, runStart+size-1, nextLines),
			})
			run = run[size:]
			runStart += size
		}
	}

	for i := range doc.Entries {
		entry := doc.Entries[i]
		if entry.Resolved {
			flush()
			runStart = i + 1
			continue
		}
		if len(run) == 0 {
			runStart = i
		}
		run = append(run, entry)
	}
	flush()
	return batches
}

// HistoryBefore collects the last historySize resolved entries preceding
// index start, oldest first. Plan uses it for the plan-time snapshot; the
// merge layer uses it to serve live history while batches complete.
func HistoryBefore(doc *document.Document, start, historySize int) []document.Entry {
	if historySize <= 0 {
		return nil
	}
	var history []document.Entry
	for i := start - 1; i >= 0 && len(history) < historySize; i-- {
		if doc.Entries[i].Resolved {
			history = append(history, doc.Entries[i])
		}
	}
	// Collected newest-first; reverse into document order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history
}

// lookaheadAfter collects the raw sources of up to nextLines entries
// following index last.
func lookaheadAfter(doc *document.Document, last, nextLines int) []string {
	if nextLines <= 0 {
		return nil
	}
	var lookahead []string
	for i := last + 1; i < len(doc.Entries) && len(lookahead) < nextLines; i++ {
		lookahead = append(lookahead, doc.Entries[i].Source)
	}
	return lookahead
}

package workflow

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vntransl/internal/batch"
	"vntransl/internal/config"
	"vntransl/internal/dispatch"
	"vntransl/internal/document"
	"vntransl/internal/glossary"
	"vntransl/internal/logging"
	"vntransl/internal/merge"
	"vntransl/internal/store"
	"vntransl/internal/translator"
)

type fileState struct {
	relPath   string
	ledgerID  int64
	assembler *merge.Assembler
	done      bool
}

// Run executes one translation pass over the project's input directory and
// blocks until every batch reaches a terminal state or the context is
// canceled. Files finish independently; a failure in one never blocks the
// others.
func (m *Manager) Run(ctx context.Context) (*Summary, error) {
	runCtx, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer m.end()

	if err := m.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	lock, err := m.acquireLock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	engine, err := glossary.Load(m.cfg.Glossary)
	if err != nil {
		return nil, err
	}
	pre, post, gpt := engine.Sizes()
	m.logger.Info("glossary loaded",
		logging.Int("pre_rules", pre),
		logging.Int("post_rules", post),
		logging.Int("gpt_rules", gpt),
	)

	instances := m.cfg.Instances()
	allowStream := dispatch.StreamingAllowed(m.cfg.StreamOutput, len(instances))
	if m.cfg.StreamOutput && !allowStream {
		m.logger.Warn("stream output disabled: more than one endpoint configured",
			logging.Int("endpoints", len(instances)))
	}

	translators, err := translator.Build(m.cfg, engine, m.logger, allowStream)
	if err != nil {
		return nil, err
	}

	relPaths, err := document.Discover(m.cfg.InputDir)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()
	summary := &Summary{RunID: runID}
	logger := m.logger.With(logging.String(logging.FieldRunID, runID))

	if len(relPaths) == 0 {
		logger.Info("no input documents found", logging.String("input_dir", m.cfg.InputDir))
		return summary, nil
	}

	m.ledgerWarn(m.ledger.BeginRun(runCtx, runID), "begin run")

	states := make(map[string]*fileState, len(relPaths))
	batchIDs := make(map[*batch.Batch]int64)
	var allBatches []*batch.Batch

	for _, rel := range relPaths {
		doc, loadErr := document.Load(m.cfg.InputDir, rel)
		if loadErr != nil {
			logger.Error("skipping unreadable document",
				logging.String(logging.FieldFile, rel), logging.Error(loadErr))
			summary.FailedFiles++
			continue
		}
		if resumeErr := doc.ApplyExisting(m.cfg.OutputDir); resumeErr != nil {
			logger.Warn("ignoring unreadable prior output, translating from scratch",
				logging.String(logging.FieldFile, rel), logging.Error(resumeErr))
		}

		batches := batch.Plan(doc, requestBatchSize(instances, m.cfg.BatchSize), m.cfg.HistorySize, m.cfg.NextLines)
		fileID, regErr := m.ledger.RegisterFile(runCtx, runID, rel, len(doc.Entries), len(batches))
		m.ledgerWarn(regErr, "register file")

		state := &fileState{
			relPath:   rel,
			ledgerID:  fileID,
			assembler: merge.NewAssembler(doc, m.cfg.OutputDir, len(batches), m.logger),
		}
		states[rel] = state
		summary.Files++
		summary.Entries += len(doc.Entries)

		if len(batches) == 0 {
			m.finalizeFile(runCtx, logger, state, summary)
			continue
		}
		for i := range batches {
			bt := &batches[i]
			// History is read live at translation time so batches merged
			// after planning still feed context into later prompts.
			bt.HistorySource = state.assembler.HistoryBefore
			batchID, batchErr := m.ledger.RegisterBatch(runCtx, fileID, bt.StartIndex, bt.Len())
			m.ledgerWarn(batchErr, "register batch")
			batchIDs[bt] = batchID
			allBatches = append(allBatches, bt)
		}
		logger.Info("document planned",
			logging.String(logging.FieldFile, rel),
			logging.Int("entries", len(doc.Entries)),
			logging.Int("batches", len(batches)),
		)
	}

	if len(allBatches) == 0 {
		m.ledgerWarn(m.ledger.FinishRun(runCtx, runID, store.StatusCompleted), "finish run")
		summary.Duration = time.Since(started)
		m.logSummary(logger, summary)
		return summary, nil
	}

	dispatcher := dispatch.New(translators, m.cfg.RetryAttempts, m.logger, m.dispatchOpts...)
	if err := dispatcher.Start(runCtx); err != nil {
		return nil, err
	}
	go func() {
		for _, bt := range allBatches {
			if submitErr := dispatcher.Submit(runCtx, bt); submitErr != nil {
				break
			}
		}
		dispatcher.Close()
	}()

	var completed atomic.Int64
	progressDone := make(chan struct{})
	go m.reportProgress(logger, &completed, int64(len(allBatches)), progressDone)

	for outcome := range dispatcher.Results() {
		completed.Add(1)
		state, ok := states[outcome.Batch.FileID]
		if !ok {
			logger.Error("outcome for unknown document",
				logging.String(logging.FieldFile, outcome.Batch.FileID))
			continue
		}

		batchStatus := store.StatusCompleted
		if outcome.Failed() {
			batchStatus = store.StatusFailed
			summary.FailedBatches++
		}
		m.ledgerWarn(
			m.ledger.MarkBatch(runCtx, batchIDs[outcome.Batch], batchStatus, outcome.Result.TranslatorName, outcome.Attempts),
			"mark batch",
		)

		if applyErr := state.assembler.Apply(outcome); applyErr != nil {
			logger.Error("merge failed, document poisoned",
				logging.String(logging.FieldFile, state.relPath), logging.Error(applyErr))
		}
		if state.assembler.Done() && !state.done {
			m.finalizeFile(runCtx, logger, state, summary)
		}
	}
	close(progressDone)

	interrupted := runCtx.Err() != nil
	if interrupted {
		for _, state := range states {
			if state.done {
				continue
			}
			if ckErr := state.assembler.Checkpoint(); ckErr != nil {
				logger.Warn("checkpoint failed",
					logging.String(logging.FieldFile, state.relPath), logging.Error(ckErr))
			} else {
				logger.Info("checkpointed partial document",
					logging.String(logging.FieldFile, state.relPath))
			}
			m.ledgerWarn(m.ledger.MarkFile(runCtx, state.ledgerID, store.StatusFailed), "mark file")
		}
	}

	runStatus := store.StatusCompleted
	if interrupted || summary.FailedFiles > 0 {
		runStatus = store.StatusFailed
	}
	m.ledgerWarn(m.ledger.FinishRun(context.WithoutCancel(runCtx), runID, runStatus), "finish run")

	summary.Duration = time.Since(started)
	m.logSummary(logger, summary)
	if interrupted {
		return summary, runCtx.Err()
	}
	return summary, nil
}

// requestBatchSize returns the number of entries per translation request:
// the smallest number_per_request_translate across the configured instances,
// so every endpoint can take any batch from the shared queue.
func requestBatchSize(instances []config.Instance, fallback int) int {
	size := 0
	for _, inst := range instances {
		if inst.NumberPerBatch <= 0 {
			continue
		}
		if size == 0 || inst.NumberPerBatch < size {
			size = inst.NumberPerBatch
		}
	}
	if size == 0 {
		return fallback
	}
	return size
}

func (m *Manager) finalizeFile(ctx context.Context, logger *slog.Logger, state *fileState, summary *Summary) {
	state.done = true
	stats, err := state.assembler.Finalize()
	summary.Translated += stats.Translated
	summary.PreExisting += stats.PreExisting

	status := store.StatusCompleted
	if err != nil {
		status = store.StatusFailed
		summary.FailedFiles++
		logger.Error("document not written",
			logging.String(logging.FieldFile, state.relPath), logging.Error(err))
	} else {
		logger.Info("document written",
			logging.String(logging.FieldFile, state.relPath),
			logging.Int("entries", stats.Entries),
			logging.Int("translated", stats.Translated),
			logging.Int("pre_existing", stats.PreExisting),
			logging.Int("untranslated", stats.Failed),
		)
	}
	m.ledgerWarn(m.ledger.MarkFile(context.WithoutCancel(ctx), state.ledgerID, status), "mark file")
}

func (m *Manager) reportProgress(logger *slog.Logger, completed *atomic.Int64, total int64, done <-chan struct{}) {
	ticker := time.NewTicker(m.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			logger.Info("run progress",
				logging.Int64("completed_batches", completed.Load()),
				logging.Int64("total_batches", total),
			)
		}
	}
}

func (m *Manager) logSummary(logger *slog.Logger, summary *Summary) {
	logger.Info("run finished",
		logging.Int("files", summary.Files),
		logging.Int("entries", summary.Entries),
		logging.Int("translated", summary.Translated),
		logging.Int("pre_existing", summary.PreExisting),
		logging.Int("failed_batches", summary.FailedBatches),
		logging.Int("failed_files", summary.FailedFiles),
		logging.Duration("duration", summary.Duration),
	)
}

func (m *Manager) ledgerWarn(err error, operation string) {
	if err != nil {
		m.logger.Warn("ledger update failed", logging.String("operation", operation), logging.Error(err))
	}
}

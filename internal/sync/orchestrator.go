package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"imovel-portal/internal/database"
	"imovel-portal/internal/models"
	"imovel-portal/internal/synclog"
	"imovel-portal/internal/transform"

	"github.com/sirupsen/logrus"
)

// Fetcher retrieves raw records from an external source API
type Fetcher interface {
	Fetch(ctx context.Context, cfg *models.SourceConfig) ([]map[string]interface{}, error)
}

// RunLogStore persists sync run history
type RunLogStore interface {
	StartRun(sourceConfigID string, startedAt time.Time) (*models.SyncLog, error)
	Finalize(entry *models.SyncLog, outcome synclog.RunOutcome) error
}

// Indexer keeps the search index in step with the record store
type Indexer interface {
	IndexImovel(imovel *models.Imovel) error
	RemoveImovel(id uint) error
}

// SourceProvider lists the active source configurations to sync
type SourceProvider interface {
	ActiveSources() ([]models.SourceConfig, error)
}

// Orchestrator drives one sync run per source: fetch, transform, upsert,
// stale cleanup, one SyncLog per run. All collaborators are injected.
type Orchestrator struct {
	store   database.PropertyStore
	logs    RunLogStore
	fetcher Fetcher
	engine  *transform.Engine
	index   Indexer // optional
	locks   *runLocks
	now     func() time.Time
}

// NewOrchestrator wires a sync orchestrator. index may be nil when no
// search backend is configured.
func NewOrchestrator(store database.PropertyStore, logs RunLogStore, fetcher Fetcher, engine *transform.Engine, index Indexer) *Orchestrator {
	return &Orchestrator{
		store:   store,
		logs:    logs,
		fetcher: fetcher,
		engine:  engine,
		index:   index,
		locks:   newRunLocks(),
		now:     time.Now,
	}
}

// SyncResult summarizes one run for one source
type SyncResult struct {
	SourceID       string   `json:"sourceId"`
	Status         string   `json:"status"`
	TotalProcessed int      `json:"totalProcessed"`
	TotalErrors    int      `json:"totalErrors"`
	TotalDeleted   int      `json:"totalDeleted"`
	ErrorMessages  []string `json:"errorMessages,omitempty"`

	deletedIDStrings []string
}

// SyncSource executes one full run against one source. Run-level failures
// (fetch, config) terminate the run with an error-status log; per-record
// failures are counted and never abort the run. A second call for a source
// whose run is still in flight returns ErrSyncInProgress.
func (o *Orchestrator) SyncSource(ctx context.Context, cfg *models.SourceConfig) (*SyncResult, error) {
	if !o.locks.acquire(cfg.ID) {
		return nil, ErrSyncInProgress
	}
	defer o.locks.release(cfg.ID)

	start := o.now()
	entry, err := o.logs.StartRun(cfg.ID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync log for source %s: %w", cfg.SourceKey, err)
	}

	logrus.WithFields(logrus.Fields{
		"source": cfg.SourceKey,
		"run":    entry.ID,
	}).Info("Sync: run started")

	result := &SyncResult{SourceID: cfg.ID}

	raw, err := o.fetcher.Fetch(ctx, cfg)
	if err != nil {
		// Fetch failure ends the run before any record is processed
		result.Status = models.SyncLogStatusError
		result.ErrorMessages = []string{err.Error()}
		o.finalize(entry, result, start)
		logrus.Warnf("Sync: fetch failed for source %s: %v", cfg.SourceKey, err)
		return result, nil
	}

	touched := make([]uint, 0, len(raw))
	for _, record := range raw {
		id, upsertErr := o.upsertRaw(cfg, record)
		if upsertErr != nil {
			result.TotalErrors++
			result.ErrorMessages = append(result.ErrorMessages, upsertErr.Error())
			continue
		}
		result.TotalProcessed++
		touched = append(touched, id)
	}

	if cfg.DeleteEnabled {
		deletedIDs, delErr := o.cleanupStale(cfg, touched)
		if delErr != nil {
			result.TotalErrors++
			result.ErrorMessages = append(result.ErrorMessages, delErr.Error())
		} else {
			result.TotalDeleted = len(deletedIDs)
			result.deletedIDStrings = toIDStrings(deletedIDs)
		}
	}

	result.Status = finalStatus(result)
	o.finalize(entry, result, start)

	logrus.WithFields(logrus.Fields{
		"source":    cfg.SourceKey,
		"run":       entry.ID,
		"status":    result.Status,
		"processed": result.TotalProcessed,
		"errors":    result.TotalErrors,
		"deleted":   result.TotalDeleted,
	}).Info("Sync: run finished")

	return result, nil
}

// SyncAll runs every active source in turn. One source failing never fails
// the whole call; each source's outcome lands in its own result.
func (o *Orchestrator) SyncAll(ctx context.Context, sources SourceProvider) ([]SyncResult, error) {
	configs, err := sources.ActiveSources()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}

	results := make([]SyncResult, 0, len(configs))
	for i := range configs {
		cfg := &configs[i]
		result, err := o.SyncSource(ctx, cfg)
		if err != nil {
			results = append(results, SyncResult{
				SourceID:      cfg.ID,
				Status:        models.SyncLogStatusError,
				ErrorMessages: []string{err.Error()},
			})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// UpsertRecord transforms and upserts a single pushed record. Shared with
// the webhook path, which feeds records here without opening a full run.
func (o *Orchestrator) UpsertRecord(cfg *models.SourceConfig, raw map[string]interface{}) error {
	_, err := o.upsertRaw(cfg, raw)
	return err
}

// upsertRaw transforms one raw record and writes it to the store,
// returning the affected listing id
func (o *Orchestrator) upsertRaw(cfg *models.SourceConfig, raw map[string]interface{}) (uint, error) {
	record := o.engine.Transform(raw, cfg.SourceKey)

	// The config's display name beats the key-derived fallback
	if cfg.Name != "" {
		record["source_display_name"] = cfg.Name
	}

	if !transform.Validate(record) {
		return 0, fmt.Errorf("record from source %s has no usable external id", cfg.SourceKey)
	}

	externalID := record["external_id"].(string)
	fields := models.SyncFieldsFromRecord(record)

	existing, err := o.store.FindByExternalID(externalID, cfg.SourceKey)
	switch {
	case err == nil:
		return existing.ID, o.updateExisting(existing, fields)
	case err == database.ErrNotFound:
		return o.insertNew(cfg, externalID, fields)
	default:
		return 0, fmt.Errorf("lookup failed for %s/%s: %w", cfg.SourceKey, externalID, err)
	}
}

func (o *Orchestrator) updateExisting(existing *models.Imovel, fields map[string]interface{}) error {
	if err := o.store.UpdateFields(existing.ID, fields); err != nil {
		return fmt.Errorf("update failed for listing %d: %w", existing.ID, err)
	}
	models.ApplySyncFields(existing, fields)
	o.reindex(existing)
	return nil
}

func (o *Orchestrator) insertNew(cfg *models.SourceConfig, externalID string, fields map[string]interface{}) (uint, error) {
	imovel := models.ImovelFromSyncFields(fields)
	err := o.store.Insert(imovel)
	if err == nil {
		o.reindex(imovel)
		return imovel.ID, nil
	}

	// A concurrent writer may have inserted the same key between our lookup
	// and this insert; the unique index turns that race into an update.
	if database.IsDuplicateKey(err) {
		existing, findErr := o.store.FindByExternalID(externalID, cfg.SourceKey)
		if findErr != nil {
			return 0, fmt.Errorf("insert raced but lookup failed for %s/%s: %w", cfg.SourceKey, externalID, findErr)
		}
		return existing.ID, o.updateExisting(existing, fields)
	}

	return 0, fmt.Errorf("insert failed for %s/%s: %w", cfg.SourceKey, externalID, err)
}

// cleanupStale applies the source's deletion policy to previously-synced
// listings absent from this run and past the retention window
func (o *Orchestrator) cleanupStale(cfg *models.SourceConfig, touched []uint) ([]uint, error) {
	cutoff := o.now().AddDate(0, 0, -cfg.KeepDaysBeforeDelete)
	stale, err := o.store.ListStale(cfg.SourceKey, touched, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale lookup failed for source %s: %w", cfg.SourceKey, err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(stale))
	for i := range stale {
		ids[i] = stale[i].ID
	}

	if cfg.DeleteStrategy == models.DeleteStrategyHard {
		err = o.store.HardDelete(ids)
	} else {
		err = o.store.Deactivate(ids)
	}
	if err != nil {
		return nil, fmt.Errorf("stale cleanup failed for source %s: %w", cfg.SourceKey, err)
	}

	if o.index != nil {
		for _, id := range ids {
			if idxErr := o.index.RemoveImovel(id); idxErr != nil {
				logrus.Warnf("Sync: failed to remove listing %d from search index: %v", id, idxErr)
			}
		}
	}

	logrus.Infof("Sync: source %s stale cleanup removed %d listings (strategy %s, retention %dd)",
		cfg.SourceKey, len(ids), cfg.DeleteStrategy, cfg.KeepDaysBeforeDelete)
	return ids, nil
}

func (o *Orchestrator) reindex(imovel *models.Imovel) {
	if o.index == nil {
		return
	}
	if err := o.index.IndexImovel(imovel); err != nil {
		logrus.Warnf("Sync: failed to index listing %d: %v", imovel.ID, err)
	}
}

func (o *Orchestrator) finalize(entry *models.SyncLog, result *SyncResult, start time.Time) {
	outcome := synclog.RunOutcome{
		Status:        result.Status,
		Processed:     result.TotalProcessed,
		Errors:        result.TotalErrors,
		ErrorMessages: result.ErrorMessages,
		Deleted:       result.TotalDeleted,
		DeletedIDs:    result.deletedIDStrings,
		Duration:      o.now().Sub(start),
	}
	if err := o.logs.Finalize(entry, outcome); err != nil {
		logrus.Errorf("Sync: failed to finalize sync log %d: %v", entry.ID, err)
	}
}

// finalStatus maps run counters to the terminal log state: error when the
// run produced nothing but errors, warning when it completed with some
// failures, success otherwise.
func finalStatus(result *SyncResult) string {
	if result.TotalErrors > 0 && result.TotalProcessed == 0 {
		return models.SyncLogStatusError
	}
	if result.TotalErrors > 0 {
		return models.SyncLogStatusWarning
	}
	return models.SyncLogStatusSuccess
}

func toIDStrings(ids []uint) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(uint64(id), 10)
	}
	return out
}

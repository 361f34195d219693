package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"imovel-portal/internal/database"
	"imovel-portal/internal/mapping"
	"imovel-portal/internal/models"
	"imovel-portal/internal/synclog"
	"imovel-portal/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory PropertyStore keyed like the real unique index
type fakeStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[string]*models.Imovel // "externalID|sourceAPI"

	insertErr error
	updateErr error
	inserts   int
	updates   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, records: make(map[string]*models.Imovel)}
}

func storeKey(externalID, sourceAPI string) string {
	return externalID + "|" + sourceAPI
}

func (s *fakeStore) FindByExternalID(externalID, sourceAPI string) (*models.Imovel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if imovel, ok := s.records[storeKey(externalID, sourceAPI)]; ok {
		copied := *imovel
		return &copied, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) Insert(imovel *models.Imovel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	key := storeKey(*imovel.ExternalID, *imovel.SourceAPI)
	if _, exists := s.records[key]; exists {
		return errors.New("Duplicate entry for key 'idx_external_source'")
	}
	imovel.ID = s.nextID
	s.nextID++
	copied := *imovel
	s.records[key] = &copied
	s.inserts++
	return nil
}

func (s *fakeStore) UpdateFields(id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, imovel := range s.records {
		if imovel.ID == id {
			models.ApplySyncFields(imovel, fields)
			s.updates++
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *fakeStore) ListStale(sourceAPI string, touchedIDs []uint, cutoff time.Time) ([]models.Imovel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := make(map[uint]bool, len(touchedIDs))
	for _, id := range touchedIDs {
		touched[id] = true
	}
	var stale []models.Imovel
	for _, imovel := range s.records {
		if imovel.SourceAPI == nil || *imovel.SourceAPI != sourceAPI {
			continue
		}
		if !imovel.Active || touched[imovel.ID] {
			continue
		}
		if imovel.LastSyncAt != nil && imovel.LastSyncAt.After(cutoff) {
			continue
		}
		stale = append(stale, *imovel)
	}
	return stale, nil
}

func (s *fakeStore) Deactivate(ids []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, imovel := range s.records {
		for _, id := range ids {
			if imovel.ID == id {
				imovel.Active = false
				imovel.SyncStatus = models.SyncStatusInactive
			}
		}
	}
	return nil
}

func (s *fakeStore) HardDelete(ids []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, imovel := range s.records {
		for _, id := range ids {
			if imovel.ID == id {
				delete(s.records, key)
			}
		}
	}
	return nil
}

func (s *fakeStore) get(externalID, sourceAPI string) *models.Imovel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[storeKey(externalID, sourceAPI)]
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeFetcher returns canned records or an error
type fakeFetcher struct {
	records []map[string]interface{}
	err     error

	mu      sync.Mutex
	block   chan struct{} // when set, Fetch blocks until closed
	fetches int
}

func (f *fakeFetcher) Fetch(ctx context.Context, cfg *models.SourceConfig) ([]map[string]interface{}, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.records, f.err
}

// fakeLogStore captures run lifecycle calls
type fakeLogStore struct {
	mu       sync.Mutex
	nextID   uint
	started  []*models.SyncLog
	outcomes []synclog.RunOutcome
}

func (l *fakeLogStore) StartRun(sourceConfigID string, startedAt time.Time) (*models.SyncLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	entry := &models.SyncLog{
		ID:             l.nextID,
		SourceConfigID: sourceConfigID,
		StartedAt:      startedAt,
		Status:         models.SyncLogStatusRunning,
	}
	l.started = append(l.started, entry)
	return entry, nil
}

func (l *fakeLogStore) Finalize(entry *models.SyncLog, outcome synclog.RunOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.IsTerminal() {
		return fmt.Errorf("sync log %d already finalized as %s", entry.ID, entry.Status)
	}
	entry.Status = outcome.Status
	l.outcomes = append(l.outcomes, outcome)
	return nil
}

func (l *fakeLogStore) lastOutcome() synclog.RunOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcomes[len(l.outcomes)-1]
}

func newTestOrchestrator(store *fakeStore, fetch *fakeFetcher, logs *fakeLogStore) *Orchestrator {
	engine := transform.NewEngine(mapping.NewRegistry())
	return NewOrchestrator(store, logs, fetch, engine, nil)
}

func demoConfig() *models.SourceConfig {
	return &models.SourceConfig{
		ID:        "cfg-1",
		Name:      "Demo Imobiliaria",
		SourceKey: "demo_api",
		Endpoint:  "http://example.test/feed",
	}
}

func TestSyncSourceInsertsAndUpdates(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{records: []map[string]interface{}{
		{"id": "A1", "price": "250.000,00", "city": "Cuiaba"},
		{"id": "A2", "price": "180.000,00", "city": "Sinop"},
	}}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogStatusSuccess, result.Status)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 0, result.TotalErrors)
	assert.Equal(t, 2, store.count())

	first := store.get("A1", "demo_api")
	require.NotNil(t, first)
	require.NotNil(t, first.Valor)
	assert.Equal(t, float64(250000), *first.Valor)
	assert.Equal(t, "Cuiaba", first.Cidade)
	assert.Equal(t, "Demo Imobiliaria", first.SourceDisplayName)
	assert.True(t, first.Active)

	// A second run with changed data updates in place, no duplicates
	fetch.records[0]["price"] = "260.000,00"
	result, err = o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogStatusSuccess, result.Status)
	assert.Equal(t, 2, store.count())
	assert.Equal(t, 2, store.inserts)
	assert.Equal(t, 2, store.updates)

	first = store.get("A1", "demo_api")
	assert.Equal(t, float64(260000), *first.Valor)
}

func TestSyncSourcePartialUpdateKeepsOtherFields(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{records: []map[string]interface{}{
		{"id": "A1", "price": "100.000,00", "city": "Cuiaba", "neighborhood": "Centro"},
	}}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	_, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	// Next payload drops the neighborhood; the stored value must survive
	fetch.records = []map[string]interface{}{
		{"id": "A1", "price": "120.000,00", "city": "Cuiaba"},
	}
	_, err = o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	imovel := store.get("A1", "demo_api")
	assert.Equal(t, float64(120000), *imovel.Valor)
	assert.Equal(t, "Centro", imovel.Bairro)
}

func TestSyncSourceFailSoft(t *testing.T) {
	records := make([]map[string]interface{}, 0, 10)
	for i := 0; i < 9; i++ {
		records = append(records, map[string]interface{}{
			"id": fmt.Sprintf("ok-%d", i), "city": "Cuiaba",
		})
	}
	records = append(records, map[string]interface{}{"id": "bad", "city": "Sinop"})

	store := newFakeStore()
	fetch := &fakeFetcher{records: records}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	// The "bad" record already exists, so it takes the update path; failing
	// updates makes exactly that one record error while the inserts succeed.
	source := "demo_api"
	external := "bad"
	store.records[storeKey(external, source)] = &models.Imovel{
		ID: 99, ExternalID: &external, SourceAPI: &source, Active: true,
	}
	store.nextID = 100
	store.updateErr = errors.New("update exploded")

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	assert.Equal(t, models.SyncLogStatusWarning, result.Status)
	assert.Equal(t, 9, result.TotalProcessed)
	assert.Equal(t, 1, result.TotalErrors)
	require.Len(t, result.ErrorMessages, 1)
	assert.Contains(t, result.ErrorMessages[0], "update exploded")
}

func TestSyncSourceFetchFailureEndsRun(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{err: errors.New("connection refused")}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	assert.Equal(t, models.SyncLogStatusError, result.Status)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Equal(t, 0, store.count())

	// The run log still reaches a terminal state
	require.Len(t, logs.outcomes, 1)
	assert.Equal(t, models.SyncLogStatusError, logs.lastOutcome().Status)
}

func TestSyncSourceAllRecordsFailing(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("disk full")
	fetch := &fakeFetcher{records: []map[string]interface{}{
		{"id": "A1"}, {"id": "A2"},
	}}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	// Zero processed plus errors is a failed run, not a warning
	assert.Equal(t, models.SyncLogStatusError, result.Status)
	assert.Equal(t, 2, result.TotalErrors)
}

func TestSyncSourceEmptyFeedSucceeds(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{records: nil}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogStatusSuccess, result.Status)
	assert.Equal(t, 0, result.TotalProcessed)
}

func TestSyncSourceStaleCleanupRespectsRetention(t *testing.T) {
	store := newFakeStore()
	source := "demo_api"

	seed := func(id uint, externalID string, daysAgo int) {
		last := time.Now().AddDate(0, 0, -daysAgo)
		ext := externalID
		store.records[storeKey(externalID, source)] = &models.Imovel{
			ID: id, ExternalID: &ext, SourceAPI: &source,
			Active: true, LastSyncAt: &last,
		}
	}
	seed(1, "fresh", 10)   // inside the window, keep
	seed(2, "stale", 40)   // past the window, remove
	seed(3, "ancient", 90) // past the window, remove
	store.nextID = 10

	fetch := &fakeFetcher{records: []map[string]interface{}{{"id": "fresh"}}}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	cfg := demoConfig()
	cfg.DeleteEnabled = true
	cfg.DeleteStrategy = models.DeleteStrategySoft
	cfg.KeepDaysBeforeDelete = 30

	result, err := o.SyncSource(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalDeleted)
	assert.True(t, store.get("fresh", source).Active)
	assert.False(t, store.get("stale", source).Active)
	assert.Equal(t, models.SyncStatusInactive, store.get("stale", source).SyncStatus)
	assert.False(t, store.get("ancient", source).Active)

	outcome := logs.lastOutcome()
	assert.Equal(t, 2, outcome.Deleted)
	assert.Len(t, outcome.DeletedIDs, 2)
}

func TestSyncSourceWiderRetentionKeepsRecord(t *testing.T) {
	store := newFakeStore()
	source := "demo_api"
	ext := "stale"
	last := time.Now().AddDate(0, 0, -40)
	store.records[storeKey(ext, source)] = &models.Imovel{
		ID: 2, ExternalID: &ext, SourceAPI: &source, Active: true, LastSyncAt: &last,
	}
	store.nextID = 10

	fetch := &fakeFetcher{records: nil}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	cfg := demoConfig()
	cfg.DeleteEnabled = true
	cfg.DeleteStrategy = models.DeleteStrategySoft
	cfg.KeepDaysBeforeDelete = 60

	result, err := o.SyncSource(context.Background(), cfg)
	require.NoError(t, err)

	// 40 days unseen is inside a 60-day window
	assert.Equal(t, 0, result.TotalDeleted)
	assert.True(t, store.get(ext, source).Active)
}

func TestSyncSourceHardDeleteStrategy(t *testing.T) {
	store := newFakeStore()
	source := "demo_api"
	ext := "gone"
	last := time.Now().AddDate(0, 0, -60)
	store.records[storeKey(ext, source)] = &models.Imovel{
		ID: 5, ExternalID: &ext, SourceAPI: &source, Active: true, LastSyncAt: &last,
	}
	store.nextID = 10

	fetch := &fakeFetcher{records: nil}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	cfg := demoConfig()
	cfg.DeleteEnabled = true
	cfg.DeleteStrategy = models.DeleteStrategyHard
	cfg.KeepDaysBeforeDelete = 30

	result, err := o.SyncSource(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalDeleted)
	assert.Equal(t, 0, store.count())
}

func TestSyncSourceCleanupDisabledByDefault(t *testing.T) {
	store := newFakeStore()
	source := "demo_api"
	ext := "stale"
	last := time.Now().AddDate(0, 0, -365)
	store.records[storeKey(ext, source)] = &models.Imovel{
		ID: 5, ExternalID: &ext, SourceAPI: &source, Active: true, LastSyncAt: &last,
	}
	store.nextID = 10

	fetch := &fakeFetcher{records: nil}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	result, err := o.SyncSource(context.Background(), demoConfig())
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalDeleted)
	assert.True(t, store.get(ext, source).Active)
}

func TestSyncSourceConcurrentRunRejected(t *testing.T) {
	store := newFakeStore()
	block := make(chan struct{})
	fetch := &fakeFetcher{block: block}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.SyncSource(context.Background(), demoConfig())
		assert.NoError(t, err)
	}()

	// Wait for the first run to reach its fetch
	require.Eventually(t, func() bool {
		fetch.mu.Lock()
		defer fetch.mu.Unlock()
		return fetch.fetches == 1
	}, time.Second, 5*time.Millisecond)

	_, err := o.SyncSource(context.Background(), demoConfig())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	<-done

	// The lock is released once the first run finishes
	_, err = o.SyncSource(context.Background(), demoConfig())
	assert.NoError(t, err)
}

func TestUpsertRecordDuplicateKeyRaceBecomesUpdate(t *testing.T) {
	store := newFakeStore()
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, &fakeFetcher{}, logs)

	cfg := demoConfig()
	raw := map[string]interface{}{"id": "A1", "city": "Cuiaba"}

	// Simulate the race: another writer inserts the key after our lookup
	// misses. racingStore reports not-found once, then delegates.
	rs := &racingStore{fakeStore: store}
	o.store = rs

	source := "demo_api"
	ext := "A1"
	store.records[storeKey(ext, source)] = &models.Imovel{
		ID: 7, ExternalID: &ext, SourceAPI: &source, Active: true,
	}
	store.nextID = 10

	require.NoError(t, o.UpsertRecord(cfg, raw))
	assert.Equal(t, 0, store.inserts)
	assert.Equal(t, 1, store.updates)
}

// racingStore misses the first lookup so the orchestrator attempts an
// insert that collides with the already-present row
type racingStore struct {
	*fakeStore
	missed bool
}

func (r *racingStore) FindByExternalID(externalID, sourceAPI string) (*models.Imovel, error) {
	if !r.missed {
		r.missed = true
		return nil, database.ErrNotFound
	}
	return r.fakeStore.FindByExternalID(externalID, sourceAPI)
}

func TestSyncAllIsolatesSourceFailures(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetcher{records: []map[string]interface{}{{"id": "A1"}}}
	logs := &fakeLogStore{}
	o := newTestOrchestrator(store, fetch, logs)

	provider := &fakeProvider{configs: []models.SourceConfig{
		{ID: "cfg-1", Name: "One", SourceKey: "demo_api", Endpoint: "http://one.test"},
		{ID: "cfg-2", Name: "Two", SourceKey: "demo_api", Endpoint: "http://two.test"},
	}}

	results, err := o.SyncAll(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.SyncLogStatusSuccess, results[0].Status)
	assert.Equal(t, models.SyncLogStatusSuccess, results[1].Status)
}

type fakeProvider struct {
	configs []models.SourceConfig
}

func (p *fakeProvider) ActiveSources() ([]models.SourceConfig, error) {
	return p.configs, nil
}

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, models.SyncLogStatusSuccess, finalStatus(&SyncResult{TotalProcessed: 5}))
	assert.Equal(t, models.SyncLogStatusWarning, finalStatus(&SyncResult{TotalProcessed: 5, TotalErrors: 1}))
	assert.Equal(t, models.SyncLogStatusError, finalStatus(&SyncResult{TotalErrors: 3}))
	assert.Equal(t, models.SyncLogStatusSuccess, finalStatus(&SyncResult{}))
}

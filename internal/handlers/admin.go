package handlers

import (
	"net/http"
	"strconv"

	"imovel-portal/internal/cleanup"
	"imovel-portal/internal/database"
	"imovel-portal/internal/mapping"
	"imovel-portal/internal/models"
	"imovel-portal/internal/scheduler"
	syncer "imovel-portal/internal/sync"
	"imovel-portal/internal/synclog"
	"imovel-portal/internal/transform"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AdminHandler serves the operator API: source config management, run
// history, statistics and cleanup.
type AdminHandler struct {
	store          *database.GormStore
	registry       *mapping.Registry
	engine         *transform.Engine
	fetcher        syncer.Fetcher
	orchestrator   *syncer.Orchestrator
	logStore       *synclog.Store
	cleanupService *cleanup.Service
	scheduler      *scheduler.Scheduler
	validate       *validator.Validate
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store *database.GormStore, registry *mapping.Registry, engine *transform.Engine,
	fetcher syncer.Fetcher, orchestrator *syncer.Orchestrator, logStore *synclog.Store,
	sched *scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{
		store:          store,
		registry:       registry,
		engine:         engine,
		fetcher:        fetcher,
		orchestrator:   orchestrator,
		logStore:       logStore,
		cleanupService: cleanup.NewService(store.DB()),
		scheduler:      sched,
		validate:       validator.New(),
	}
}

// ListSourceConfigs returns all source configs
func (h *AdminHandler) ListSourceConfigs(c *gin.Context) {
	configs, err := h.store.ListSources()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": configs, "count": len(configs)})
}

// GetSourceConfig returns one source config
func (h *AdminHandler) GetSourceConfig(c *gin.Context) {
	cfg, err := h.store.GetSource(c.Param("id"))
	if err == database.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "source config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// CreateSourceConfig persists a new source config and registers its mapping
func (h *AdminHandler) CreateSourceConfig(c *gin.Context) {
	var cfg models.SourceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.AuthType == "" {
		cfg.AuthType = models.AuthTypeNone
	}

	if err := h.store.CreateSource(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.RegisterJSON(cfg.SourceKey, cfg.FieldMapping); err != nil {
		logrus.Warnf("Admin: source %s saved with unusable field mapping: %v", cfg.SourceKey, err)
	}

	logrus.Infof("Admin: source config %s (%s) created", cfg.ID, cfg.SourceKey)
	c.JSON(http.StatusCreated, cfg)
}

// UpdateSourceConfig saves changes to a source config
func (h *AdminHandler) UpdateSourceConfig(c *gin.Context) {
	existing, err := h.store.GetSource(c.Param("id"))
	if err == database.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "source config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var cfg models.SourceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt

	if err := h.validate.Struct(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateSource(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if existing.SourceKey != cfg.SourceKey {
		h.registry.Remove(existing.SourceKey)
	}
	if err := h.registry.RegisterJSON(cfg.SourceKey, cfg.FieldMapping); err != nil {
		logrus.Warnf("Admin: source %s saved with unusable field mapping: %v", cfg.SourceKey, err)
	}

	c.JSON(http.StatusOK, cfg)
}

// DeleteSourceConfig removes a source config; its listings and run history stay
func (h *AdminHandler) DeleteSourceConfig(c *gin.Context) {
	cfg, err := h.store.GetSource(c.Param("id"))
	if err == database.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "source config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.DeleteSource(cfg.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.registry.Remove(cfg.SourceKey)

	logrus.Infof("Admin: source config %s (%s) deleted", cfg.ID, cfg.SourceKey)
	c.JSON(http.StatusOK, gin.H{"deleted": cfg.ID})
}

// TestSourceConfig dry-runs a candidate config: one fetch, one transform,
// nothing persisted. The admin UI uses this to validate a mapping before
// saving it.
func (h *AdminHandler) TestSourceConfig(c *gin.Context) {
	var cfg models.SourceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Candidate mappings are registered under a throwaway key so a test
	// never clobbers the live mapping for the same source.
	testKey := cfg.SourceKey
	if cfg.FieldMapping != "" {
		testKey = "test_" + uuid.NewString()
		if err := h.registry.RegisterJSON(testKey, cfg.FieldMapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": []string{err.Error()}})
			return
		}
		defer h.registry.Remove(testKey)
	}

	raw, err := h.fetcher.Fetch(c.Request.Context(), &cfg)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "errors": []string{err.Error()}})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"errors":  []string{"source returned no records"},
		})
		return
	}

	sample := raw[0]
	mapped := h.engine.Transform(sample, testKey)
	mapped["source_api"] = cfg.SourceKey // report under the real key, not the throwaway

	var errors []string
	if !transform.Validate(mapped) {
		errors = append(errors, "transformed record is missing source_api or external_id")
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     len(errors) == 0,
		"mappedData":  mapped,
		"extraFields": h.extraFields(testKey, sample),
		"errors":      errors,
		"sampleData":  sample,
	})
}

// extraFields lists raw fields the mapping does not consume
func (h *AdminHandler) extraFields(sourceKey string, raw map[string]interface{}) []string {
	m, ok := h.registry.Lookup(sourceKey)
	if !ok {
		return nil
	}
	var extra []string
	for field := range raw {
		if _, mapped := m.FieldMap[field]; !mapped {
			extra = append(extra, field)
		}
	}
	return extra
}

// TriggerSource manually syncs one source
func (h *AdminHandler) TriggerSource(c *gin.Context) {
	cfg, err := h.store.GetSource(c.Param("id"))
	if err == database.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "source config not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.SyncSource(c.Request.Context(), cfg)
	if err == syncer.ErrSyncInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already running for this source"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// TriggerAll manually syncs every active source in the background
func (h *AdminHandler) TriggerAll(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not available"})
		return
	}

	logrus.Info("Admin: manual sync trigger requested")
	go func() {
		if err := h.scheduler.RunNow(); err != nil {
			logrus.Errorf("Admin: manual sync failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "sync job started", "status": "running"})
}

// GetSyncLogs returns recent sync runs, optionally for one source
func (h *AdminHandler) GetSyncLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var logs []models.SyncLog
	var err error
	if sourceID := c.Query("source_id"); sourceID != "" {
		logs, err = h.logStore.RunsForSource(sourceID, limit)
	} else {
		logs, err = h.logStore.RecentRuns(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// GetSourceStats returns aggregated run history for one source
func (h *AdminHandler) GetSourceStats(c *gin.Context) {
	stats, err := h.logStore.StatsForSource(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats := make(map[string]interface{})

	counts, err := h.store.CountBySource()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats["active_by_source"] = counts

	deleteStats, err := h.cleanupService.Stats()
	if err != nil {
		logrus.Errorf("Admin: failed to get delete stats: %v", err)
	} else {
		stats["deletions"] = deleteStats
	}

	c.JSON(http.StatusOK, stats)
}

// RunCleanup executes the retention cleanup
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int  `json:"retention_days"`
		SyncLogRetention int  `json:"sync_log_retention_days"`
		MaxDeletionCount int  `json:"max_deletion_count"`
		DryRun           bool `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := cleanup.DefaultConfig()
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.SyncLogRetention > 0 {
		cfg.SyncLogRetention = req.SyncLogRetention
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	cfg.DryRun = req.DryRun

	result, err := h.cleanupService.Run(cfg)
	if err != nil {
		logrus.Errorf("Admin: cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetWebhookDeliveries returns recent inbound webhook deliveries
func (h *AdminHandler) GetWebhookDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	deliveries, err := h.store.RecentDeliveries(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries, "count": len(deliveries)})
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.cleanupService.RecentDeleteLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

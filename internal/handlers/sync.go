package handlers

import (
	"net/http"
	"strings"

	"imovel-portal/internal/database"
	syncer "imovel-portal/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler exposes the scheduled sync trigger endpoint
type SyncHandler struct {
	orchestrator *syncer.Orchestrator
	store        *database.GormStore
	cronSecret   string
}

// NewSyncHandler creates a sync trigger handler
func NewSyncHandler(orchestrator *syncer.Orchestrator, store *database.GormStore, cronSecret string) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		store:        store,
		cronSecret:   cronSecret,
	}
}

// TriggerSync handles GET/POST /sync. It runs every active source and always
// answers 200 with per-source results; a single failing source never fails
// the response.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	results, err := h.orchestrator.SyncAll(c.Request.Context(), h.store)
	if err != nil {
		logrus.Errorf("Sync: trigger failed before any source ran: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
	})
}

func (h *SyncHandler) authorized(c *gin.Context) bool {
	if h.cronSecret == "" {
		return false
	}
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	return token != auth && token == h.cronSecret
}

package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"imovel-portal/internal/config"
	"imovel-portal/internal/database"
	"imovel-portal/internal/fetcher"
	"imovel-portal/internal/handlers"
	"imovel-portal/internal/mapping"
	"imovel-portal/internal/ratelimit"
	"imovel-portal/internal/scheduler"
	"imovel-portal/internal/search"
	syncer "imovel-portal/internal/sync"
	"imovel-portal/internal/synclog"
	"imovel-portal/internal/transform"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	db           *database.DB
	gormStore    *database.GormStore
	searchClient *search.SearchClient
	appConfig    *config.Config
	appScheduler *scheduler.Scheduler
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on environment")
	}

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "/app/config/portal_config.yaml")
	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		logrus.Warnf("Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		logrus.Infof("Loaded configuration from %s", configPath)
	}

	setupLogging(appConfig.Logging.Level)

	// Initialize database based on configuration
	dbType := appConfig.Database.Type
	if dbType == "" {
		dbType = getEnv("DB_TYPE", "mysql")
	}

	if dbType == "mysql" {
		logrus.Info("Using MySQL with GORM")
		mysqlCfg := appConfig.Database.MySQL

		portStr := ""
		if mysqlCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", mysqlCfg.Port)
		}

		gormStore, err = database.NewGormStore(
			getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
			getEnvOrConfig(portStr, "DB_PORT", "3306"),
			getEnvOrConfig(mysqlCfg.User, "DB_USER", "imovel_user"),
			getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "imovel_pass"),
			getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "imovel_db"),
		)
		if err != nil {
			logrus.Fatalf("Failed to connect to MySQL: %v", err)
		}
		defer gormStore.Close()

		if err := gormStore.InitSchema(); err != nil {
			logrus.Fatalf("Failed to initialize schema: %v", err)
		}
	} else {
		logrus.Info("Using PostgreSQL")
		pgCfg := appConfig.Database.Postgres

		portStr := ""
		if pgCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", pgCfg.Port)
		}

		db, err = database.NewDB(
			getEnvOrConfig(pgCfg.Host, "DB_HOST", "db"),
			getEnvOrConfig(portStr, "DB_PORT", "5432"),
			getEnvOrConfig(pgCfg.User, "DB_USER", "imovel_user"),
			getEnvOrConfig(pgCfg.Password, "DB_PASSWORD", "imovel_pass"),
			getEnvOrConfig(pgCfg.Database, "DB_NAME", "imovel_db"),
		)
		if err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			logrus.Fatalf("Failed to initialize schema: %v", err)
		}
	}

	// Initialize Meilisearch using config
	meilisearchHost := appConfig.Search.Meilisearch.Host
	if meilisearchHost == "" {
		meilisearchHost = getEnv("MEILISEARCH_HOST", "http://meilisearch:7700")
	}
	meilisearchKey := appConfig.Search.Meilisearch.APIKey
	if meilisearchKey == "" {
		meilisearchKey = getEnv("MEILISEARCH_KEY", "masterKey123")
	}

	searchClient = search.NewSearchClient(meilisearchHost, meilisearchKey)

	// Wait for Meilisearch to be ready
	time.Sleep(2 * time.Second)

	if err := searchClient.InitIndex(); err != nil {
		logrus.Warnf("Failed to initialize search index: %v", err)
	}

	// Setup Gin router
	r := gin.Default()

	allowOrigins := appConfig.CORS.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:5176"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-api-key", "x-webhook-signature"},
		AllowCredentials: true,
	}))

	// Public routes
	r.GET("/health", healthCheck)
	r.GET("/api/properties", getProperties)
	r.GET("/api/properties/:id", getProperty)
	r.GET("/api/search", searchProperties)
	r.GET("/api/filter", filterProperties)

	// The ingestion pipeline needs the GORM backend; with the reduced
	// PostgreSQL backend the server runs read-only.
	if gormStore != nil {
		registry := mapping.NewRegistry()
		seedRegistry(registry)

		engine := transform.NewEngine(registry)
		fetchClient := fetcher.NewClient(ratelimit.NewSourceLimiter())
		logStore := synclog.NewStore(gormStore.DB())
		orchestrator := syncer.NewOrchestrator(gormStore, logStore, fetchClient, engine, searchClient)

		appScheduler = scheduler.NewScheduler(orchestrator, gormStore, appConfig)
		if err := appScheduler.Start(); err != nil {
			logrus.Warnf("Failed to start scheduler: %v", err)
		}
		defer appScheduler.Stop()

		r.POST("/api/search/reindex", reindexAllProperties)

		syncHandler := handlers.NewSyncHandler(orchestrator, gormStore, appConfig.Sync.ResolveCronSecret())
		r.GET("/sync", syncHandler.TriggerSync)
		r.POST("/sync", syncHandler.TriggerSync)

		webhookHandler := handlers.NewWebhookHandler(orchestrator, gormStore)
		r.POST("/webhooks/properties", webhookHandler.Receive)

		adminHandler := handlers.NewAdminHandler(
			gormStore, registry, engine, fetchClient, orchestrator, logStore, appScheduler)

		admin := r.Group("/admin")
		{
			// Source configuration
			admin.GET("/source-configs", adminHandler.ListSourceConfigs)
			admin.POST("/source-configs", adminHandler.CreateSourceConfig)
			admin.POST("/source-configs/test", adminHandler.TestSourceConfig)
			admin.GET("/source-configs/:id", adminHandler.GetSourceConfig)
			admin.PUT("/source-configs/:id", adminHandler.UpdateSourceConfig)
			admin.DELETE("/source-configs/:id", adminHandler.DeleteSourceConfig)
			admin.POST("/source-configs/:id/sync", adminHandler.TriggerSource)
			admin.GET("/source-configs/:id/stats", adminHandler.GetSourceStats)

			// Sync control and history
			admin.POST("/sync/trigger", adminHandler.TriggerAll)
			admin.GET("/sync/logs", adminHandler.GetSyncLogs)

			// Statistics
			admin.GET("/stats", adminHandler.GetStats)

			// Cleanup operations
			admin.POST("/cleanup/run", adminHandler.RunCleanup)
			admin.GET("/cleanup/logs", adminHandler.GetDeleteLogs)
			admin.GET("/webhooks/deliveries", adminHandler.GetWebhookDeliveries)
		}

		logrus.Info("Admin API routes registered at /admin/*")
	}

	port := getEnv("PORT", "8084")
	logrus.Infof("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}

// seedRegistry loads persisted field mappings so transforms work from boot
func seedRegistry(registry *mapping.Registry) {
	configs, err := gormStore.ListSources()
	if err != nil {
		logrus.Warnf("Failed to load source configs for mapping registry: %v", err)
		return
	}
	for _, cfg := range configs {
		if cfg.FieldMapping == "" {
			continue
		}
		if err := registry.RegisterJSON(cfg.SourceKey, cfg.FieldMapping); err != nil {
			logrus.Warnf("Skipping invalid field mapping for %s: %v", cfg.SourceKey, err)
		}
	}
	logrus.Infof("Mapping registry seeded with %d source configs", len(configs))
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func getProperties(c *gin.Context) {
	// PostgreSQL backend serves the simple read path
	if gormStore == nil {
		properties, err := db.GetActiveProperties(200)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"properties": properties, "total": len(properties)})
		return
	}

	filters := database.PropertyFilters{
		Cidade:        c.Query("cidade"),
		Bairro:        c.Query("bairro"),
		Categoria:     c.Query("categoria"),
		TipoTransacao: c.Query("tipo_transacao"),
		SourceAPI:     c.Query("source_api"),
		SortBy:        c.DefaultQuery("sort", "created_at"),
	}

	if minStr := c.Query("min_valor"); minStr != "" {
		if min, parseErr := strconv.ParseFloat(minStr, 64); parseErr == nil {
			filters.MinValor = &min
		}
	}
	if maxStr := c.Query("max_valor"); maxStr != "" {
		if max, parseErr := strconv.ParseFloat(maxStr, 64); parseErr == nil {
			filters.MaxValor = &max
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, parseErr := strconv.Atoi(limitStr); parseErr == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, parseErr := strconv.Atoi(offsetStr); parseErr == nil && offset > 0 {
			filters.Offset = offset
		}
	}

	properties, total, err := gormStore.ListProperties(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"properties": properties, "total": total})
}

func getProperty(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property id"})
		return
	}

	if gormStore == nil {
		property, dbErr := db.GetPropertyByID(uint(id))
		if dbErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
			return
		}
		c.JSON(http.StatusOK, property)
		return
	}

	property, err := gormStore.GetPropertyByID(uint(id))
	if err == database.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, property)
}

func searchProperties(c *gin.Context) {
	query := c.Query("q")
	limit := int64(20)
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.ParseInt(limitStr, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := searchClient.Search(query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func filterProperties(c *gin.Context) {
	params := search.FilterParams{
		Query:         c.Query("q"),
		Categoria:     c.Query("categoria"),
		TipoTransacao: c.Query("tipo_transacao"),
		Cidade:        c.Query("cidade"),
		SortBy:        c.Query("sort"),
		Limit:         50,
	}

	if minStr := c.Query("min_valor"); minStr != "" {
		if min, err := strconv.ParseFloat(minStr, 64); err == nil {
			params.MinValor = &min
		}
	}
	if maxStr := c.Query("max_valor"); maxStr != "" {
		if max, err := strconv.ParseFloat(maxStr, 64); err == nil {
			params.MaxValor = &max
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.ParseInt(limitStr, 10, 64); err == nil && limit > 0 {
			params.Limit = limit
		}
	}

	results, err := searchClient.FilterSearch(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func reindexAllProperties(c *gin.Context) {
	filters := database.PropertyFilters{Limit: 10000}
	properties, _, err := gormStore.ListProperties(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := searchClient.IndexImoveis(properties); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reindex complete", "indexed": len(properties)})
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvOrConfig prefers an env var, then the config value, then a default
func getEnvOrConfig(configValue, envKey, fallback string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if configValue != "" {
		return configValue
	}
	return fallback
}

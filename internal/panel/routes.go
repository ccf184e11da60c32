package panel

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"switchboard/internal/bot"
	"switchboard/internal/models"
	"switchboard/internal/store"
)

// registerRoutes sets up all panel routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/api/status", handleStatus(opts))
	router.GET("/api/models", handleModels(opts.Cache))

	router.GET("/api/communities", handleCommunityList(opts.Store))
	router.GET("/api/communities/:id", handleCommunityGet(opts.Store))
	router.PUT("/api/communities/:id", handleCommunityPut(opts.Store))
	router.DELETE("/api/communities/:id", handleCommunityDelete(opts.Store))

	router.GET("/api/audit", handleAudit(opts.DB))
	router.GET("/api/events", handleSSE(opts.DB))

	if opts.Controller != nil {
		router.POST("/api/bot/start", handleLifecycle(opts.Controller.StartBot))
		router.POST("/api/bot/stop", handleLifecycle(opts.Controller.StopBot))
		router.POST("/api/bot/restart", handleLifecycle(opts.Controller.RestartBot))
	}
}

func handleStatus(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{}
		if opts.Controller != nil {
			resp["bot"] = opts.Controller.BotStatus()
		}
		if ids, err := opts.Store.List(); err == nil {
			resp["communities"] = len(ids)
		}
		if opts.Cache != nil {
			names, refreshed := opts.Cache.Names()
			resp["models"] = len(names)
			if !refreshed.IsZero() {
				resp["models_refreshed"] = refreshed
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleModels(cache *bot.ModelCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil {
			c.JSON(http.StatusOK, gin.H{"models": []string{}})
			return
		}
		names, refreshed := cache.Names()
		c.JSON(http.StatusOK, gin.H{"models": names, "refreshed": refreshed})
	}
}

func handleCommunityList(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := st.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"communities": ids})
	}
}

func handleCommunityGet(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc, err := st.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cc)
	}
}

// handleCommunityPut replaces a community's configuration. The payload is
// validated the same way chat commands validate their inputs.
func handleCommunityPut(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cc store.Community
		if err := c.ShouldBindJSON(&cc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid payload: %v", err)})
			return
		}
		cc.ID = c.Param("id")
		if err := validateCommunity(&cc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.Save(&cc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		saved, err := st.Get(cc.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, saved)
	}
}

func handleCommunityDelete(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Delete(c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	}
}

// validateCommunity rejects out-of-range values instead of silently
// clamping them; an operator edit should hear about its mistakes.
func validateCommunity(cc *store.Community) error {
	if cc.RandomReply.Probability < 0 || cc.RandomReply.Probability > 1 {
		return fmt.Errorf("random_reply.probability must be between 0.0 and 1.0")
	}
	if cc.RandomReply.CooldownSec < 0 {
		return fmt.Errorf("random_reply.cooldown_seconds must not be negative")
	}
	if cc.Pagination.PageSize != 0 &&
		(cc.Pagination.PageSize < store.MinPageSize || cc.Pagination.PageSize > store.MaxPageSize) {
		return fmt.Errorf("pagination.page_size_chars must be between %d and %d", store.MinPageSize, store.MaxPageSize)
	}
	for kind := range cc.Permissions {
		valid := false
		for _, k := range store.PermissionKinds {
			if k == kind {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown permission type %q", kind)
		}
	}
	return nil
}

func handleAudit(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"entries": []models.AuditEntry{}})
			return
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		q := db.Order("id DESC").Limit(limit)
		if community := c.Query("community"); community != "" {
			q = q.Where("community_id = ?", community)
		}
		if event := c.Query("event"); event != "" {
			q = q.Where("event = ?", event)
		}
		var entries []models.AuditEntry
		if err := q.Find(&entries).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func handleLifecycle(fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/tasks"
)

func NewHandler(trigger RunTrigger, store Reader, sources SourceCounter, version string) *Handler {
	return &Handler{
		trigger: trigger,
		store:   store,
		sources: sources,
		version: version,
	}
}

// TriggerRun runs the pipeline synchronously. Any completed run, aborted or
// not, is reported as 200 with its result.
func (h *Handler) TriggerRun(c *gin.Context) {
	result, err := h.trigger.Run(c.Request.Context())
	if errors.Is(err, tasks.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "Run already in progress"})
		return
	}
	if err != nil {
		zap.L().Error("Run trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Run could not be started"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.store.ListRuns(c.Request.Context(), queryLimit(c))
	if err != nil {
		zap.L().Error("Database error", zap.String("operation", "list_runs"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

func (h *Handler) ListItems(c *gin.Context) {
	status := database.ItemStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "status": status})
		return
	}

	items, err := h.store.ListItems(c.Request.Context(), database.ItemFilter{Status: status, Limit: queryLimit(c)})
	if err != nil {
		zap.L().Error("Database error", zap.String("operation", "list_items"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) GetItem(c *gin.Context) {
	guid := c.Param("guid")

	item, err := h.store.GetItem(c.Request.Context(), guid)
	if err != nil {
		zap.L().Error("Database error", zap.String("operation", "get_item"), zap.String("guid", guid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.store.ListTransactions(c.Request.Context(), queryLimit(c))
	if err != nil {
		zap.L().Error("Database error", zap.String("operation", "list_transactions"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs, "total": len(txs)})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"sources":   h.sources.Count(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		zap.L().Error("Database error", zap.String("operation", "stats"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// queryLimit returns the limit query parameter, or 0 to let the store apply
// its default.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}

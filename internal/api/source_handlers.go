package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/ingest"
	"github.com/svrlab/video-archiver/internal/middleware"
	"github.com/svrlab/video-archiver/internal/service"
)

// PostSourceRequest represents the source registration request
type PostSourceRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	URL  string `json:"url" binding:"required,url"`
}

// PostSourceHandler handles source registration
func PostSourceHandler(dbConn *gorm.DB, ingestService *ingest.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req PostSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source request", "details": err.Error()})
			return
		}

		source, err := service.CreateSource(dbConn, user.UserID, req.Name, req.URL)
		if err != nil {
			if errors.Is(err, service.ErrQuotaExceeded) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Source quota exceeded"})
				return
			}
			logger.Error("failed to create source", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create source"})
			return
		}

		// Best effort: the poller will pick the source up if the queue is full.
		if err := ingestService.NotifySource(source.ID); err != nil {
			logger.Warn("failed to notify ingest service", zap.Uint("source_id", source.ID), zap.Error(err))
		}

		c.JSON(http.StatusCreated, source)
	}
}

// ListSourcesHandler handles source listing. Admins see all sources, regular
// users only their own. An optional status query filters by status code.
func ListSourcesHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		scopeUserID := user.UserID
		if user.IsAdmin {
			scopeUserID = 0
		}

		var status *db.SourceStatus
		if raw := c.Query("status"); raw != "" {
			code, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status code"})
				return
			}
			s := db.SourceStatus(code)
			status = &s
		}

		sources, err := service.ListSources(dbConn, scopeUserID, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, sources)
	}
}

// GetSourceHandler handles retrieving a single source
func GetSourceHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := requireSource(c, dbConn)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, source)
	}
}

// ListChunksHandler returns the chunks of a source ordered by start time.
// Supports ?at=<seconds> for the chunk containing a timestamp and
// ?from=&to= for chunks intersecting an interval.
func ListChunksHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := requireSource(c, dbConn)
		if !ok {
			return
		}

		if raw := c.Query("at"); raw != "" {
			at, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timestamp"})
				return
			}
			chunk, err := service.ChunkAtTimestamp(dbConn, source.ID, at)
			if err != nil {
				if errors.Is(err, service.ErrNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "No chunk at given timestamp"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			c.JSON(http.StatusOK, chunk)
			return
		}

		if fromRaw, toRaw := c.Query("from"), c.Query("to"); fromRaw != "" || toRaw != "" {
			from, err1 := strconv.ParseFloat(fromRaw, 64)
			to, err2 := strconv.ParseFloat(toRaw, 64)
			if err1 != nil || err2 != nil || to < from {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time interval"})
				return
			}
			chunks, err := service.ChunksInInterval(dbConn, source.ID, from, to)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			c.JSON(http.StatusOK, chunks)
			return
		}

		chunks, err := service.ListChunks(dbConn, source.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, chunks)
	}
}

// ResetSourceHandler returns a terminal source to pending for re-ingestion.
func ResetSourceHandler(dbConn *gorm.DB, ingestService *ingest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := requireSource(c, dbConn)
		if !ok {
			return
		}

		if err := service.ResetSource(dbConn, source.ID); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ingestService.NotifySource(source.ID)
		c.JSON(http.StatusOK, gin.H{"status": "pending"})
	}
}

// DeleteSourceHandler removes a source with an explicit fan-out delete of its
// chunks.
func DeleteSourceHandler(dbConn *gorm.DB, chunksDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := requireSource(c, dbConn)
		if !ok {
			return
		}

		if err := service.DeleteSource(dbConn, source.ID, chunksDir); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete source"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": source.ID})
	}
}

// requireSource parses the id parameter and loads the source scoped to the
// requesting user (admins bypass the ownership filter). Writes the error
// response itself when it returns false.
func requireSource(c *gin.Context, dbConn *gorm.DB) (*db.Source, bool) {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil, false
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source ID"})
		return nil, false
	}

	scopeUserID := user.UserID
	if user.IsAdmin {
		scopeUserID = 0
	}

	source, err := service.GetSourceForUser(dbConn, uint(id), scopeUserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return source, true
}

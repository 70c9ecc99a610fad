package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/secretbox"
	"github.com/svrlab/video-archiver/internal/service"
)

// SecretRequest represents a secret write request
type SecretRequest struct {
	Value     string `json:"value" binding:"required,max=2048"`
	Encrypted bool   `json:"encrypted"`
}

// sealValue runs the value through the secretbox capability when requested.
// The store itself never encrypts.
func sealValue(box *secretbox.Box, req SecretRequest) (string, error) {
	if !req.Encrypted {
		return req.Value, nil
	}
	if box == nil {
		return "", errors.New("no secretbox key configured")
	}
	return box.Seal(req.Value)
}

// CreateSecretHandler stores a new named credential. Fails on an existing
// name; overwriting requires the explicit update endpoint.
func CreateSecretHandler(dbConn *gorm.DB, box *secretbox.Box) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid secret request"})
			return
		}

		value, err := sealValue(box, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to seal secret"})
			return
		}

		if err := service.PutSecret(dbConn, c.Param("name"), value, req.Encrypted); err != nil {
			if errors.Is(err, service.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "Secret already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store secret"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"name": c.Param("name"), "encrypted": req.Encrypted})
	}
}

// UpdateSecretHandler overwrites an existing named credential.
func UpdateSecretHandler(dbConn *gorm.DB, box *secretbox.Box) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid secret request"})
			return
		}

		value, err := sealValue(box, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to seal secret"})
			return
		}

		if err := service.UpdateSecret(dbConn, c.Param("name"), value, req.Encrypted); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update secret"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "encrypted": req.Encrypted})
	}
}

// GetSecretHandler returns secret metadata. The value is redacted: encrypted
// values never leave the store in cleartext, and plaintext values are only
// revealed with an explicit reveal flag.
func GetSecretHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		value, encrypted, err := service.GetSecret(dbConn, name)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		resp := gin.H{"name": name, "encrypted": encrypted, "value": "<redacted>"}
		if !encrypted && c.Query("reveal") == "1" {
			resp["value"] = value
		}
		c.JSON(http.StatusOK, resp)
	}
}

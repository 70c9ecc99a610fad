package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/middleware"
	"github.com/svrlab/video-archiver/internal/service"
)

const tokenTTL = 24 * time.Hour

// RegisterRequest represents the account creation request
type RegisterRequest struct {
	Name       string `json:"name" binding:"required,min=3,max=100"`
	Password   string `json:"password" binding:"required,min=6"`
	MaxSources *int   `json:"max_sources"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler handles account creation
func RegisterHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration request", "details": err.Error()})
			return
		}

		maxSources := 5
		if req.MaxSources != nil {
			maxSources = *req.MaxSources
		}

		user, err := service.CreateUser(dbConn, req.Name, req.Password, maxSources, false)
		if err != nil {
			if errors.Is(err, service.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "Name already taken"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// LoginHandler handles authentication and issues a JWT
func LoginHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login request"})
			return
		}

		user, err := service.GetUserByName(dbConn, req.Name)
		if err != nil || !service.CheckPassword(user, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := middleware.IssueToken(user.ID, user.Name, user.IsAdmin, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  user,
		})
	}
}

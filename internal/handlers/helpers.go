package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"teamboard/internal/authz"
	"teamboard/internal/middleware"
	"teamboard/internal/models"
	"teamboard/internal/repositories"
	"teamboard/internal/services"
)

func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}

// queryInt returns def when key is absent or not a number.
func queryInt(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// parseDate accepts a bare date (as sent by date inputs) or a full RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// respondError maps service errors to status codes. Store failures get a generic message.
func respondError(c *gin.Context, area, op string, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		log.Printf("[%s][%s][400] %v", area, op, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		log.Printf("[%s][%s][401] %v", area, op, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, authz.ErrNotOwner):
		log.Printf("[%s][%s][deny] %v", area, op, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authorized to update this task"})
	case errors.Is(err, authz.ErrForbidden):
		log.Printf("[%s][%s][deny] %v", area, op, err)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, repositories.ErrNotFound):
		log.Printf("[%s][%s][404] %v", area, op, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	default:
		log.Printf("[%s][%s][err] %v", area, op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"serpgap/internal/api/middleware"
	"serpgap/internal/domain"
	"serpgap/internal/service"
)

// CredentialHandler handles credential management endpoints.
type CredentialHandler struct {
	credentialService *service.CredentialService
}

// NewCredentialHandler creates a new credential handler.
// Parameters:
//   - credentialService: credential service instance.
// Returns:
//   - *CredentialHandler: initialized handler.
func NewCredentialHandler(credentialService *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
	}
}

type createCredentialRequest struct {
	Label  string `json:"label" binding:"required,min=1,max=100"`
	APIKey string `json:"apiKey" binding:"required,min=1"`
}

// credentialView is the API shape of a credential. The key is always masked;
// the full key never leaves the server after creation.
type credentialView struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	MaskedKey    string                  `json:"maskedKey"`
	Status       domain.CredentialStatus `json:"status"`
	FailureCount int                     `json:"failureCount"`
	LastUsedAt   *time.Time              `json:"lastUsedAt"`
	LastFailedAt *time.Time              `json:"lastFailedAt"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func toCredentialView(c *domain.Credential) credentialView {
	return credentialView{
		ID:           c.ID,
		Label:        c.Label,
		MaskedKey:    c.MaskedKey(),
		Status:       c.Status,
		FailureCount: c.FailureCount,
		LastUsedAt:   c.LastUsedAt,
		LastFailedAt: c.LastFailedAt,
		CreatedAt:    c.CreatedAt,
	}
}

// Create handles POST /api/v1/credentials.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CredentialHandler) Create(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	cred, err := h.credentialService.Create(c.Request.Context(), middleware.UserID(c), req.Label, req.APIKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create credential: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, toCredentialView(cred))
}

// List handles GET /api/v1/credentials.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CredentialHandler) List(c *gin.Context) {
	creds, err := h.credentialService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list credentials: " + err.Error(),
		})
		return
	}

	views := make([]credentialView, len(creds))
	for i := range creds {
		views[i] = toCredentialView(&creds[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"credentials": views,
		"total":       len(views),
	})
}

// Delete handles DELETE /api/v1/credentials/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CredentialHandler) Delete(c *gin.Context) {
	err := h.credentialService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Credential not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete credential: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": true,
	})
}

// Reactivate handles POST /api/v1/credentials/:id/reactivate.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CredentialHandler) Reactivate(c *gin.Context) {
	userID := middleware.UserID(c)
	id := c.Param("id")

	if err := h.credentialService.Reactivate(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Credential not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reactivate credential: " + err.Error(),
		})
		return
	}

	cred, err := h.credentialService.Get(c.Request.Context(), userID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load credential: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, toCredentialView(cred))
}

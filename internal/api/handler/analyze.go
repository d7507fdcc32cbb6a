package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"serpgap/internal/api/middleware"
	"serpgap/internal/service"
)

// AnalyzeHandler handles the webhook analysis endpoint.
type AnalyzeHandler struct {
	analysisService *service.AnalysisService
}

// NewAnalyzeHandler creates a new analyze handler.
// Parameters:
//   - analysisService: analysis service instance.
// Returns:
//   - *AnalyzeHandler: initialized handler.
func NewAnalyzeHandler(analysisService *service.AnalysisService) *AnalyzeHandler {
	return &AnalyzeHandler{
		analysisService: analysisService,
	}
}

// analyzeRequest is the webhook payload. Keywords is the only required field;
// decision-rule overrides are optional per request.
type analyzeRequest struct {
	Keywords       []string                `json:"keywords" binding:"required,min=1,max=30,dive,notblank"`
	Region         string                  `json:"region"`
	Page           int                     `json:"page" binding:"omitempty,min=1"`
	DecisionConfig *service.DecisionConfig `json:"decisionConfig"`
}

// Analyze handles POST /analyze.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request: " + err.Error(),
		})
		return
	}

	result, err := h.analysisService.Analyze(c.Request.Context(), middleware.UserID(c), &service.AnalyzeRequest{
		Keywords: req.Keywords,
		Region:   req.Region,
		Page:     req.Page,
		Decision: req.DecisionConfig,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeywordCountOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_keyword_count",
				"message": err.Error(),
			})
		case errors.Is(err, service.ErrNoCredentialsAvailable):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "no_credentials_available",
				"message": err.Error(),
			})
		default:
			body := gin.H{
				"error":   "internal_error",
				"message": "Analysis failed: " + err.Error(),
			}
			var batchErr *service.BatchError
			if errors.As(err, &batchErr) {
				body["requestId"] = batchErr.RequestID
			}
			c.JSON(http.StatusInternalServerError, body)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printpoint/kiosk/internal/api/middleware"
	"github.com/printpoint/kiosk/internal/core"
	"github.com/printpoint/kiosk/internal/db"
)

type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type AdminStatsResponse struct {
	TotalDocuments  int64              `json:"total_documents"`
	CompletedPrints int64              `json:"completed_prints"`
	FailedPrints    int64              `json:"failed_prints"`
	RecentDocuments []DocumentResponse `json:"recent_documents"`
}

type AdminHandler struct {
	auth *middleware.Auth
}

func NewAdminHandler(auth *middleware.Auth) *AdminHandler {
	return &AdminHandler{auth: auth}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if err := h.auth.VerifyAdmin(req.Username, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}

	token, err := h.auth.GenerateToken(middleware.PrincipalAdmin, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Stats aggregates directly over the store on every request; there is no
// second set of counters to drift out of sync.
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := db.Documents.CountDocuments(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count documents"})
		return
	}

	completed, err := db.Documents.CountByStatus(ctx, string(core.StatusCompleted))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count documents"})
		return
	}

	failed, err := db.Documents.CountByStatus(ctx, string(core.StatusFailed))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count documents"})
		return
	}

	recent, err := db.Documents.RecentDocuments(ctx, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recent documents"})
		return
	}

	resp := AdminStatsResponse{
		TotalDocuments:  total,
		CompletedPrints: completed,
		FailedPrints:    failed,
		RecentDocuments: make([]DocumentResponse, 0, len(recent)),
	}
	for _, doc := range recent {
		resp.RecentDocuments = append(resp.RecentDocuments, docToResponse(doc))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) RegisterRoutes(r *gin.Engine, auth *middleware.Auth) {
	admin := r.Group("/admin")
	admin.POST("/login", h.Login)
	admin.GET("/stats", auth.RequireAdmin(), h.Stats)
}

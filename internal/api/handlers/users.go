package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/printpoint/kiosk/internal/api/middleware"
	"github.com/printpoint/kiosk/internal/db"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type UserLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	TotalPrints int64  `json:"total_prints"`
}

type UserLoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        UserProfile `json:"user"`
}

type UserHandler struct {
	auth *middleware.Auth
}

func NewUserHandler(auth *middleware.Auth) *UserHandler {
	return &UserHandler{auth: auth}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password (min 6 chars) are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := &db.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	}

	if err := db.Users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered successfully",
		"user_id": user.ID,
	})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req UserLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := db.Users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// Same answer for unknown email and bad password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}

	token, err := h.auth.GenerateToken(middleware.PrincipalUser, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, UserLoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User: UserProfile{
			ID:          user.ID,
			Name:        user.Name,
			Email:       user.Email,
			TotalPrints: user.TotalPrints,
		},
	})
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := db.Users.GetUserByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	c.JSON(http.StatusOK, UserProfile{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		TotalPrints: user.TotalPrints,
	})
}

func (h *UserHandler) MyDocuments(c *gin.Context) {
	docs, err := db.Documents.ListByOwner(c.Request.Context(), middleware.UserID(c), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}

	responses := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		responses = append(responses, docToResponse(doc))
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     len(responses),
		"documents": responses,
	})
}

func (h *UserHandler) RegisterRoutes(r *gin.Engine, auth *middleware.Auth) {
	user := r.Group("/user")
	user.POST("/register", h.Register)
	user.POST("/login", h.Login)
	user.GET("/me", auth.RequireUser(), h.Me)
	user.GET("/documents", auth.RequireUser(), h.MyDocuments)
}

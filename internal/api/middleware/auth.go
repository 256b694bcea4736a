package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/printpoint/kiosk/internal/config"
	"github.com/printpoint/kiosk/internal/db"
)

const (
	PrincipalAdmin = "admin"
	PrincipalUser  = "user"

	settingsKeyJWTSecret     = "jwt_secret"
	settingsKeyAdminPassword = "admin_password"

	contextKeyUserID = "user_id"
)

// Claims is the single token shape shared by both credential domains; Kind
// tags which principal the token represents.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

type Auth struct {
	secret        []byte
	adminUsername string
	adminTTL      time.Duration
	userTTL       time.Duration
}

// NewAuth loads (or generates) the signing secret and seeds the admin
// password hash into the settings table on first boot.
func NewAuth(cfg *config.AuthConfig) (*Auth, error) {
	a := &Auth{
		adminUsername: cfg.AdminUsername,
		adminTTL:      cfg.AdminTokenTTL,
		userTTL:       cfg.UserTokenTTL,
	}

	secret, err := getOrCreateSecret()
	if err != nil {
		return nil, err
	}
	a.secret = secret

	if err := seedAdminPassword(cfg.AdminPassword); err != nil {
		return nil, err
	}

	return a, nil
}

func getOrCreateSecret() ([]byte, error) {
	ctx := context.Background()
	setting, err := db.Settings.GetSetting(ctx, settingsKeyJWTSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return nil, err
			}
			if err := db.Settings.SetSetting(ctx, settingsKeyJWTSecret, hex.EncodeToString(secret)); err != nil {
				return nil, err
			}
			return secret, nil
		}
		return nil, err
	}
	return hex.DecodeString(setting.Value)
}

func seedAdminPassword(password string) error {
	ctx := context.Background()
	_, err := db.Settings.GetSetting(ctx, settingsKeyAdminPassword)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if password == "" {
		return errors.New("admin password is not configured and not yet set")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Settings.SetSetting(ctx, settingsKeyAdminPassword, string(hash))
}

// VerifyAdmin checks the fixed admin principal's credentials.
func (a *Auth) VerifyAdmin(username, password string) error {
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.adminUsername)) != 1 {
		return errors.New("invalid credentials")
	}

	setting, err := db.Settings.GetSetting(context.Background(), settingsKeyAdminPassword)
	if err != nil {
		return errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(password)); err != nil {
		return errors.New("invalid credentials")
	}
	return nil
}

// GenerateToken issues a bearer token for the given principal kind.
func (a *Auth) GenerateToken(kind, subject string) (string, error) {
	ttl := a.userTTL
	if kind == PrincipalAdmin {
		ttl = a.adminTTL
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "kiosk",
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) validateToken(tokenString, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Kind != kind {
		return nil, errors.New("wrong principal kind")
	}
	return claims, nil
}

func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// RequireAdmin gates the administrative read path. Auth failures are always
// 401, never 404.
func (a *Auth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if _, err := a.validateToken(token, PrincipalAdmin); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Next()
	}
}

func (a *Auth) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := a.validateToken(token, PrincipalUser)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(contextKeyUserID, claims.Subject)
		c.Next()
	}
}

// OptionalUser attaches the user identity when a valid user token is present
// and lets the request through either way; guest uploads stay anonymous.
func (a *Auth) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token != "" {
			if claims, err := a.validateToken(token, PrincipalUser); err == nil {
				c.Set(contextKeyUserID, claims.Subject)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id, or empty for guests.
func UserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

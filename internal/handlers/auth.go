package handlers

import (
	"net/http"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/middleware"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
)

const tokenLifetime = 72 * time.Hour

// AuthHandler exchanges Firebase ID tokens for local session tokens
type AuthHandler struct {
	verifier  middleware.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler. verifier may be nil when
// Firebase is not configured; sign-in then answers 503.
func NewAuthHandler(verifier middleware.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{verifier: verifier, jwtSecret: jwtSecret}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/firebase-login", h.FirebaseLogin)
}

// FirebaseLogin handles Firebase ID token verification and issues a local JWT
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req models.FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if h.verifier == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Firebase sign-in is not configured")
	}

	token, err := h.verifier.VerifyIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		glog.V(1).Infof("[auth]firebase login rejected = %s\n", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	claims := middleware.ClaimsFromToken(token)
	localJWT, err := h.generateJWT(claims)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate local JWT")
	}

	glog.Infof("[auth]signed in %s\n", claims.UID)
	return c.JSON(http.StatusOK, echo.Map{"token": localJWT, "user": claims.User()})
}

// generateJWT signs the claims with a 72 hour expiry
func (h *AuthHandler) generateJWT(claims *models.JwtCustomClaims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UID,
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}

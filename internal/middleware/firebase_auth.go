package middleware

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
func FirebaseAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				glog.V(1).Infof("[auth]firebase token rejected = %s\n", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}

			c.Set(UserContextKey, ClaimsFromToken(token))
			return next(c)
		}
	}
}

// ClaimsFromToken copies the identity fields of a verified Firebase token
func ClaimsFromToken(token *auth.Token) *models.JwtCustomClaims {
	claims := &models.JwtCustomClaims{UID: token.UID}
	if name, ok := token.Claims["name"].(string); ok {
		claims.Name = name
	}
	if picture, ok := token.Claims["picture"].(string); ok {
		claims.AvatarURL = picture
	}
	if claims.Name == "" {
		if email, ok := token.Claims["email"].(string); ok {
			claims.Name = email
		} else {
			claims.Name = "Anonymous"
		}
	}
	return claims
}

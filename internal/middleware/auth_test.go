package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func whoami(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "no user")
	}
	return c.JSON(http.StatusOK, user)
}

func call(mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(whoami)(c)
}

func sign(t *testing.T, secret string, claims *models.JwtCustomClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.Equal(t, err, nil)
	return token
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw := JWTAuthMiddleware("s3cret")
	valid := &models.JwtCustomClaims{
		UID:  "u1",
		Name: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	rec, err := call(mw, "Bearer "+sign(t, "s3cret", valid))
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	_, err = call(mw, "")
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)

	_, err = call(mw, "Token abc")
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)

	_, err = call(mw, "Bearer "+sign(t, "other", valid))
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)

	expired := *valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = call(mw, "Bearer "+sign(t, "s3cret", &expired))
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)

	anonymous := *valid
	anonymous.UID = ""
	_, err = call(mw, "Bearer "+sign(t, "s3cret", &anonymous))
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)
}

type stubVerifier map[string]*auth.Token

func (v stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if token, ok := v[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("invalid token")
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	mw := FirebaseAuthMiddleware(stubVerifier{
		"ada": {UID: "u1", Claims: map[string]interface{}{"name": "Ada", "picture": "https://a/p.png"}},
	})

	rec, err := call(mw, "Bearer ada")
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	_, err = call(mw, "Bearer mallory")
	assert.Equal(t, statusOf(err), http.StatusUnauthorized)
}

func TestClaimsFromToken(t *testing.T) {
	claims := ClaimsFromToken(&auth.Token{UID: "u1", Claims: map[string]interface{}{"name": "Ada", "picture": "https://a/p.png"}})
	assert.Equal(t, claims.User(), models.CurrentUser{UID: "u1", Name: "Ada", AvatarURL: "https://a/p.png"})

	claims = ClaimsFromToken(&auth.Token{UID: "u2", Claims: map[string]interface{}{"email": "grace@example.com"}})
	assert.Equal(t, claims.Name, "grace@example.com")

	claims = ClaimsFromToken(&auth.Token{UID: "u3"})
	assert.Equal(t, claims.Name, "Anonymous")
	assert.Equal(t, claims.User().ProfilePicURL(), models.ProfilePlaceholderURL)
}

package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ProfilePlaceholderURL is shown for users without a profile picture
const ProfilePlaceholderURL = "/images/profile_placeholder.png"

// CurrentUser is the signed-in identity supplying author fields at entry creation
type CurrentUser struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ProfilePicURL returns the avatar url or the placeholder
func (u CurrentUser) ProfilePicURL() string {
	if u.AvatarURL == "" {
		return ProfilePlaceholderURL
	}
	return u.AvatarURL
}

// SizedAvatarURL asks Google-hosted avatars for a 150px rendition
func SizedAvatarURL(url string) string {
	if url == "" {
		return ProfilePlaceholderURL
	}
	if strings.Contains(url, "googleusercontent.com") && !strings.Contains(url, "?") {
		return url + "?sz=150"
	}
	return url
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// User returns the identity carried by the claims
func (c *JwtCustomClaims) User() CurrentUser {
	return CurrentUser{UID: c.UID, Name: c.Name, AvatarURL: c.AvatarURL}
}

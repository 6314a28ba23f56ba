// Package identity extracts the local user identity from the stored access
// token. The relay verifies token signatures; the client only needs the
// claims to stamp outgoing signaling payloads, so the parse is unverified.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims mirrors the access-token claims issued by the auth service
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the local user as seen by the call subsystem
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Token       string // raw access token, forwarded on the signaling handshake
}

// FromToken parses an access token into an Identity without verifying the
// signature. Returns an error if the token is malformed or carries no user id.
func FromToken(token string) (*Identity, error) {
	parser := jwt.NewParser()

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		// Some tokens carry the user id in the subject instead
		userID, err = uuid.Parse(claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("access token has no usable user id")
		}
	}

	return &Identity{
		UserID:      userID,
		DisplayName: claims.Username,
		Token:       token,
	}, nil
}

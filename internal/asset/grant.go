package asset

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// GrantDuration is how long a signed playback grant stays valid. Grants
// authorize playback of one asset through a share link; they are not user
// sessions.
const GrantDuration = 4 * time.Hour

type grantClaims struct {
	AssetID string `json:"assetId"`
	jwt.RegisteredClaims
}

func SignPlaybackGrant(secret, assetID string, duration time.Duration) (string, error) {
	claims := &grantClaims{
		AssetID: assetID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyPlaybackGrant returns the asset id a grant was issued for.
func VerifyPlaybackGrant(secret, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &grantClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("parse grant: %w", err)
	}
	claims, ok := token.Claims.(*grantClaims)
	if !ok || !token.Valid || claims.AssetID == "" {
		return "", fmt.Errorf("invalid grant")
	}
	return claims.AssetID, nil
}

func HashSharePassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckSharePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

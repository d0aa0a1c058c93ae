package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidJWT      = errors.New("invalid JWT token")
	ErrExpiredJWT      = errors.New("JWT token expired")
	ErrUnauthenticated = errors.New("authentication required")
)

// Claims carries the connection-level identity a bearer token asserts. The
// hub never uses these to gate features (§1: "does not authenticate end
// users beyond token presence checks") — they are forwarded as connection
// metadata for upstream auth/analytics systems to act on.
type Claims struct {
	Subject string `json:"sub"`
	Surface string `json:"surface"` // hinted consumer surface: web|driver|broadcast
	jwt.RegisteredClaims
}

// GenerateJWT creates a token carrying connection identity, used by tests and
// tooling that need to mint a credential for a simulated producer/consumer.
func GenerateJWT(subject, surface string, secret []byte) (string, error) {
	claims := &Claims{
		Subject: subject,
		Surface: surface,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateJWT validates a JWT token's structure and signature and returns its
// claims. This is a presence/structural check only; the hub does not treat a
// validation failure as fatal to the connection (§1, §7).
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredJWT
		}
		return nil, ErrInvalidJWT
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidJWT
}

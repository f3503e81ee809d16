package scheduler

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenSigner issues the signed one-time tokens that reserve a seat in a
// forming match. The match server checks tokens against its whitelist by
// equality; the signature additionally lets tooling verify who a token was
// issued to.
type tokenSigner struct {
	secret []byte
}

func newTokenSigner(secret []byte) (*tokenSigner, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("scheduler: generate token secret: %w", err)
		}
	}
	return &tokenSigner{secret: secret}, nil
}

// Issue creates a fresh per-session token for the given username.
func (t *tokenSigner) Issue(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"jti": uuid.NewString(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("scheduler: sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and returns the username it was issued
// to.
func (t *tokenSigner) Verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("scheduler: verify session token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("scheduler: unexpected token claims type %T", token.Claims)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("scheduler: token missing subject")
	}
	return sub, nil
}

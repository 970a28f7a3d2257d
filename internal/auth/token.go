package auth

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidToken covers every verification failure: malformed input, bad
// signature, missing or expired exp.
var ErrInvalidToken = errors.New("auth: invalid token")

const keyInfo = "mestre-prognosticos admin token v1"

// Claims is the token body. It always carries exp and iat after Sign.
type Claims = jwt.MapClaims

// Codec signs and verifies admin tokens. The signing key is derived from the
// admin secret, so rotating the secret invalidates every issued token.
type Codec struct {
	// Now is the clock used for exp/iat. Nil means time.Now.
	Now func() time.Time
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func deriveKey(secret string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func (c Codec) Sign(claims Claims, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: empty secret")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be > 0")
	}
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}

	now := c.now()
	body := make(Claims, len(claims)+2)
	for k, v := range claims {
		body[k] = v
	}
	body["iat"] = now.Unix()
	body["exp"] = now.Add(ttl).Unix()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(key)
}

func (c Codec) Verify(token, secret string) (Claims, error) {
	if token == "" || secret == "" {
		return nil, ErrInvalidToken
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims := Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

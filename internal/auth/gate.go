package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/settings"
)

const bearerPrefix = "Bearer "

// Principal describes how a request was let through.
type Principal struct {
	Method string // "token" or "secret"
	Claims Claims
}

// Gate decides whether an Authorization header grants admin access. The
// secret is read on every call and any lookup problem denies.
type Gate struct {
	Settings settings.Getter
	Codec    Codec
	Log      *slog.Logger
}

func NewGate(s settings.Getter, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{Settings: s, Log: log}
}

// Lookup returns the configured admin secret. No store or no secret yields
// ("", nil); only a failing store returns an error.
func (g *Gate) Lookup(ctx context.Context) (string, error) {
	if g == nil || g.Settings == nil {
		return "", nil
	}
	secret, err := g.Settings.Get(ctx, settings.KeyAdminSecret)
	switch {
	case errors.Is(err, settings.ErrNotFound):
		return "", nil
	case err != nil:
		return "", err
	}
	return secret, nil
}

// Secret returns the configured admin secret, or "" when none is set or the
// store cannot be read.
func (g *Gate) Secret(ctx context.Context) string {
	secret, err := g.Lookup(ctx)
	if err != nil {
		g.Log.Warn("admin secret lookup failed", "err", err)
		return ""
	}
	return secret
}

func (g *Gate) Authenticate(ctx context.Context, header string) (Principal, bool) {
	secret := g.Secret(ctx)
	if secret == "" || header == "" {
		return Principal{}, false
	}

	if strings.HasPrefix(header, bearerPrefix) {
		claims, err := g.Codec.Verify(strings.TrimPrefix(header, bearerPrefix), secret)
		if err != nil {
			return Principal{}, false
		}
		return Principal{Method: "token", Claims: claims}, true
	}

	if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1 {
		return Principal{Method: "secret"}, true
	}
	return Principal{}, false
}

// CheckSecret compares candidate with the configured secret in constant time
// and returns the secret on success.
func (g *Gate) CheckSecret(ctx context.Context, candidate string) (string, bool) {
	secret := g.Secret(ctx)
	if secret == "" || candidate == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) != 1 {
		return "", false
	}
	return secret, true
}

// IssueToken mints an admin token with the current secret.
func (g *Gate) IssueToken(secret string, ttl time.Duration) (string, error) {
	return g.Codec.Sign(Claims{"sub": "admin", "role": "admin"}, secret, ttl)
}

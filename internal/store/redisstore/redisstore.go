package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func loginKey(clientID string) string {
	return "mestre:admin_login_fail:" + clientID
}

// LoginFailures returns the failed admin logins counted for clientID in the
// current window.
func (s *Store) LoginFailures(ctx context.Context, clientID string) (int, error) {
	n, err := s.rdb.Get(ctx, loginKey(clientID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// IncrLoginFailure counts one failure. The window starts at the first
// failure and is not extended by later ones.
func (s *Store) IncrLoginFailure(ctx context.Context, clientID string, window time.Duration) (int, error) {
	key := loginKey(clientID)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, clientID string) error {
	return s.rdb.Del(ctx, loginKey(clientID)).Err()
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Purpose separates verification tokens from password reset tokens.
type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

// ErrTokenInvalid is returned for unknown, expired or already used tokens.
var ErrTokenInvalid = errors.New("token invalid or expired")

// TokenStore keeps single-use account tokens in Redis until they expire.
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func tokenKey(p Purpose, token string) string {
	return fmt.Sprintf("auth:%s:%s", p, token)
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue stores a fresh token for userID.
func (s *TokenStore) Issue(ctx context.Context, p Purpose, userID uuid.UUID, ttl time.Duration) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, tokenKey(p, token), userID.String(), ttl).Err(); err != nil {
		return "", fmt.Errorf("store %s token: %w", p, err)
	}
	return token, nil
}

// Consume deletes the token and returns its user. A token works once.
func (s *TokenStore) Consume(ctx context.Context, p Purpose, token string) (uuid.UUID, error) {
	v, err := s.rdb.GetDel(ctx, tokenKey(p, token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrTokenInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume %s token: %w", p, err)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

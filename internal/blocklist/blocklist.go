package blocklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blocklist:"

// Blocklist is the revocation registry: a set of revoked jtis in Redis, each
// entry expiring together with the token it revokes.
type Blocklist struct {
	rdb *redis.Client
}

func New(redisURL string) (*Blocklist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Blocklist{rdb: client}, nil
}

func NewFromClient(client *redis.Client) *Blocklist {
	return &Blocklist{rdb: client}
}

func (b *Blocklist) Close() error {
	return b.rdb.Close()
}

func (b *Blocklist) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Revoke stores the jti until the token would have expired anyway. Revoking
// an already-revoked jti overwrites the entry; a non-positive ttl means the
// token is already dead, so there is nothing to protect and the call is a
// successful no-op.
func (b *Blocklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.SetEx(ctx, keyPrefix+jti, "1", ttl).Err()
}

func (b *Blocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearAll drops every revocation entry. Ops/test utility, not part of the
// normal request flow.
func (b *Blocklist) ClearAll(ctx context.Context) error {
	keys, err := b.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}

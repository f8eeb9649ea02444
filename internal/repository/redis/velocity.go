package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fraudguard/internal/repository"
)

var _ repository.RecentTransactionLookup = (*VelocityLookup)(nil)

// retention matches the in-memory window; entries older than this are
// pruned on every write.
const retention = 24 * time.Hour

// VelocityLookup keeps one sorted set per user, scored by the transaction
// timestamp in unix nanoseconds, so CountSince is a single ZCOUNT.
type VelocityLookup struct {
	client *redis.Client
}

func NewVelocityLookup(client *redis.Client) *VelocityLookup {
	return &VelocityLookup{client: client}
}

func (l *VelocityLookup) Record(ctx context.Context, userID string, timestamp time.Time) error {
	key := velocityKey(userID)
	score := float64(timestamp.UnixNano())

	pipe := l.client.TxPipeline()
	// Member includes a random suffix so two transactions landing on the
	// same nanosecond still count separately.
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  score,
		Member: strconv.FormatInt(timestamp.UnixNano(), 10) + ":" + uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(timestamp.Add(-retention).UnixNano(), 10))
	pipe.Expire(ctx, key, retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: recording velocity for %s: %v", repository.ErrUnavailable, userID, err)
	}
	return nil
}

func (l *VelocityLookup) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	count, err := l.client.ZCount(ctx, velocityKey(userID),
		strconv.FormatInt(since.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: counting velocity for %s: %v", repository.ErrUnavailable, userID, err)
	}
	return int(count), nil
}

func velocityKey(userID string) string {
	return "velocity:" + userID
}

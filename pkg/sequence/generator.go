package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"integrity-core/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator produces collision-resistant reference codes for the core's
// append-only records: ledger transactions and revenue-window run tokens.
type Generator interface {
	// NextTransactionCode returns the reference stamped onto a new
	// Transaction ledger row (§3 of SPEC_FULL.md).
	NextTransactionCode(ctx context.Context) (string, error)
	// NextWindowRunCode returns the idempotency-scoped token for a
	// finalize_revenue_window invocation over the given payment type.
	NextWindowRunCode(ctx context.Context, paymentType string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextTransactionCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "TXN", "")
}

func (g *RedisGenerator) NextWindowRunCode(ctx context.Context, paymentType string) (string, error) {
	return g.nextDailyCode(ctx, "WIN", paymentType)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix, scope string) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := rediskey.BuildSequenceKey(fmt.Sprintf("%s:%s:%s", prefix, scope, today))

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))
	randSuffix, _ := randomAlphaNumeric(2)

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}

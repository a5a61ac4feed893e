package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "affiliate:click:"

// ClickThrottle drops repeat clicks from one visitor on one code within a window.
// A nil throttle, or one with a non-positive window, allows every click.
type ClickThrottle struct {
	rdb    redis.UniversalClient
	window time.Duration
}

func NewClickThrottle(rdb redis.UniversalClient, window time.Duration) *ClickThrottle {
	return &ClickThrottle{rdb: rdb, window: window}
}

// Allow reports whether the click should be counted.
func (t *ClickThrottle) Allow(ctx context.Context, affiliateCode, visitorKey string) (bool, error) {
	if t == nil || t.rdb == nil || t.window <= 0 || visitorKey == "" {
		return true, nil
	}

	ok, err := t.rdb.SetNX(ctx, keyPrefix+affiliateCode+":"+visitorKey, 1, t.window).Result()
	if err != nil {
		return true, fmt.Errorf("click throttle: %w", err)
	}
	return ok, nil
}

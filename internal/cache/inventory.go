package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	MessageKeyPrefix = "talk:message:%d"
	UserKeyPrefix    = "talk:user:%s"
)

const (
	MessageTTL = 30 * time.Second
	UserTTL    = 30 * time.Second

	// generationTTL outlives any entry written under an older generation.
	generationTTL = 24 * time.Hour
)

func MessageKey(id uint64) string {
	return fmt.Sprintf(MessageKeyPrefix, id)
}

func UserKey(identity string) string {
	return fmt.Sprintf(UserKeyPrefix, identity)
}

// Invalidate drops keys and bumps their generations, which makes any
// in-flight Aside for them skip its write.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	pipe := client.TxPipeline()
	for _, key := range keys {
		pipe.Incr(ctx, generationKey(key))
		pipe.Expire(ctx, generationKey(key), generationTTL)
	}
	pipe.Del(ctx, keys...)
	_, _ = pipe.Exec(ctx)
}

func InvalidateMessage(ctx context.Context, id uint64) {
	Invalidate(ctx, MessageKey(id))
}

func InvalidateUser(ctx context.Context, identity string) {
	Invalidate(ctx, UserKey(identity))
}

package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campus-kart/backend/chat"
	"campus-kart/backend/models"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ChannelPrefix Redis 頻道名稱為 conversation:<對話 ID>
const ChannelPrefix = "conversation:"

// LocalBroadcaster 單一實例時直接送進本機的 Router
type LocalBroadcaster struct {
	router *Router
}

var _ chat.Broadcaster = (*LocalBroadcaster)(nil)

// NewLocalBroadcaster 創建 LocalBroadcaster
func NewLocalBroadcaster(router *Router) *LocalBroadcaster {
	return &LocalBroadcaster{router: router}
}

func (b *LocalBroadcaster) Broadcast(_ context.Context, conversationID primitive.ObjectID, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b.router.Broadcast(conversationID, payload)
	return nil
}

// RedisBackplane 多實例部署時透過 Redis Pub/Sub 廣播
// 每個實例都 PSubscribe conversation:*，收到後交給本機的 Router
type RedisBackplane struct {
	rdb    *redis.Client
	router *Router
}

var _ chat.Broadcaster = (*RedisBackplane)(nil)

// NewRedisBackplane 創建 RedisBackplane，需另外呼叫 Run 開始接收
func NewRedisBackplane(rdb *redis.Client, router *Router) *RedisBackplane {
	return &RedisBackplane{rdb: rdb, router: router}
}

// Broadcast 發布事件；本機的連線也是經由 Run 收到後才送出
func (b *RedisBackplane) Broadcast(ctx context.Context, conversationID primitive.ObjectID, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, ChannelPrefix+conversationID.Hex(), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run 訂閱所有對話頻道直到 ctx 結束；ready 在訂閱確認後關閉 (可為 nil)
func (b *RedisBackplane) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// 等待訂閱確認，之後發布的訊息才保證收得到
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", ChannelPrefix, err)
	}
	if ready != nil {
		close(ready)
	}
	zap.L().Info("redis backplane subscribed", zap.String("pattern", ChannelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg.Channel, msg.Payload)
		}
	}
}

// Start 在背景執行 Run，並等到訂閱確認後才返回
// 訂閱失敗或超過 timeout 時回傳錯誤；之後的錯誤只記錄在 log
func (b *RedisBackplane) Start(ctx context.Context, timeout time.Duration) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		err := b.Run(ctx, ready)
		if err != nil {
			zap.L().Error("redis backplane stopped", zap.Error(err))
		}
		errCh <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case err := <-errCh:
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("start redis backplane: %w", err)
	case <-timer.C:
		return fmt.Errorf("start redis backplane: no subscription confirmation after %s", timeout)
	}
}

func (b *RedisBackplane) deliver(channel, payload string) int {
	conversationID, err := primitive.ObjectIDFromHex(strings.TrimPrefix(channel, ChannelPrefix))
	if err != nil {
		zap.L().Warn("ignoring message on unexpected channel", zap.String("channel", channel))
		return 0
	}
	return b.router.Broadcast(conversationID, []byte(payload))
}

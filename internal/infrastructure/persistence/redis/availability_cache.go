package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	"github.com/xiebiao/bookstore-ledger/pkg/circuitbreaker"
	apperrors "github.com/xiebiao/bookstore-ledger/pkg/errors"
)

const (
	fieldVersion = "version"
	fieldData    = "data"
)

// setScript 仅当缓存中的版本不高于快照版本时写入
// KEYS[1]=key ARGV[1]=version ARGV[2]=data ARGV[3]=ttl(ms)
var setScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// invalidateScript 删除快照数据，保留已提交的最高版本号
// KEYS[1]=key ARGV[1]=version ARGV[2]=ttl(ms)
var invalidateScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur or tonumber(cur) < tonumber(ARGV[1]) then
	redis.call('HSET', KEYS[1], 'version', ARGV[1])
end
redis.call('HDEL', KEYS[1], 'data')
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// AvailabilityCache 可售状态缓存
// 设计说明：
// 1. Key设计：inventory:availability:{book_id}，Hash结构，version为库存版本号，data为JSON快照
// 2. 读：未命中时由调用方查库并回填；写：库存变更提交后删除data，version记为新版本
// 3. 回填按版本写入：比已提交版本旧的快照被丢弃，避免并发回填覆盖失效
// 4. 所有Redis调用经过熔断器，Redis故障时快速失败，调用方回源数据库
type AvailabilityCache struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	ttl    time.Duration
	log    *zap.Logger
}

// NewAvailabilityCache 创建可售状态缓存
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *AvailabilityCache {
	cb := circuitbreaker.NewCircuitBreaker("availability-cache", circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// 未命中不是故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
	cb.SetStateChangeCallback(func(name string, from, to circuitbreaker.State) {
		log.Warn("熔断器状态变化",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	return &AvailabilityCache{client: client, cb: cb, ttl: ttl, log: log}
}

func availabilityKey(bookID uint) string {
	return fmt.Sprintf("inventory:availability:%d", bookID)
}

// Get 读取快照，未命中返回(nil, nil)
func (c *AvailabilityCache) Get(ctx context.Context, bookID uint) (*inventory.AvailabilitySnapshot, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.HGet(ctx, availabilityKey(bookID), fieldData).Bytes()
		return err
	})

	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, apperrors.ErrRedisError.WithCause(err)
	}

	var snap inventory.AvailabilitySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// 格式不兼容的旧数据按未命中处理
		c.log.Warn("缓存数据解析失败", zap.Uint("book_id", bookID), zap.Error(err))
		return nil, nil
	}
	return &snap, nil
}

// Set 按版本写入快照
// 缓存中已记录更高版本时放弃写入，返回nil
func (c *AvailabilityCache) Set(ctx context.Context, snap inventory.AvailabilitySnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return apperrors.Wrap(err, "序列化缓存数据失败")
	}

	var written int64
	err = c.cb.Execute(func() error {
		var err error
		written, err = setScript.Run(ctx, c.client,
			[]string{availabilityKey(snap.BookID)},
			strconv.FormatInt(snap.Version, 10), body, c.ttl.Milliseconds(),
		).Int64()
		return err
	})
	if err != nil {
		return apperrors.ErrRedisError.WithCause(err)
	}
	if written == 0 {
		c.log.Debug("快照版本落后，放弃回填",
			zap.Uint("book_id", snap.BookID),
			zap.Int64("version", snap.Version),
		)
	}
	return nil
}

// Invalidate 删除快照，并记录已提交的版本号
// 版本记录与快照同样在ttl后过期
func (c *AvailabilityCache) Invalidate(ctx context.Context, bookID uint, version int64) error {
	err := c.cb.Execute(func() error {
		return invalidateScript.Run(ctx, c.client,
			[]string{availabilityKey(bookID)},
			strconv.FormatInt(version, 10), c.ttl.Milliseconds(),
		).Err()
	})
	if err != nil {
		return apperrors.ErrRedisError.WithCause(err)
	}
	return nil
}

// BreakerState 熔断器当前状态
func (c *AvailabilityCache) BreakerState() circuitbreaker.State {
	return c.cb.State()
}

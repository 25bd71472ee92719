// Package store 提供带 TTL 的键值存储抽象。
//
// 内存实现用于单实例部署；Redis 实现让多个实例共享待审批提案与会话上下文。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
)

var log = logger.New("Store")

// ErrClosed 存储已关闭
var ErrClosed = errors.New("store closed")

// KV 键值存储
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Sweep 清理过期条目，返回清理数量
	Sweep(ctx context.Context) (int, error)
}

// Typed 在 KV 上按前缀存放 JSON 编码的值
type Typed[T any] struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

// NewTyped 创建类型化视图
func NewTyped[T any](kv KV, prefix string, ttl time.Duration) *Typed[T] {
	return &Typed[T]{kv: kv, prefix: prefix, ttl: ttl}
}

func (t *Typed[T]) key(id string) string { return t.prefix + id }

// TTL 条目存活时间
func (t *Typed[T]) TTL() time.Duration { return t.ttl }

// Get 读取，过期或不存在时 ok=false
func (t *Typed[T]) Get(ctx context.Context, id string) (v T, ok bool, err error) {
	data, ok, err := t.kv.Get(ctx, t.key(id))
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", t.key(id), err)
	}
	return v, true, nil
}

// Put 写入
func (t *Typed[T]) Put(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.key(id), err)
	}
	return t.kv.Set(ctx, t.key(id), data, t.ttl)
}

// Delete 删除
func (t *Typed[T]) Delete(ctx context.Context, id string) error {
	return t.kv.Delete(ctx, t.key(id))
}

// List 列出所有未过期条目
func (t *Typed[T]) List(ctx context.Context) ([]T, error) {
	keys, err := t.kv.Keys(ctx, t.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, ok, err := t.Get(ctx, k[len(t.prefix):])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// RunSweeper 周期性调用 Sweep，直到 ctx 结束
func RunSweeper(ctx context.Context, kv KV, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := kv.Sweep(ctx)
			if err != nil {
				log.Warn("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Debug("swept %d expired entries", n)
			}
		}
	}
}

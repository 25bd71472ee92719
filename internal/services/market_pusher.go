// Package services 后台服务：定时拉取行情并推送给订阅者。
package services

import (
	"context"
	"sync"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
)

var pusherLog = logger.New("pusher")

// closedEvery 休市期间每隔多少个周期拉取一次
const closedEvery = 10

// safeCall 安全调用，捕获 panic 避免崩溃
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			pusherLog.Error("panic recovered: %v", r)
		}
	}()
	fn()
}

// MarketPusher 行情推送服务
type MarketPusher struct {
	broker broker.Broker
	symbol string
	period time.Duration

	mu     sync.RWMutex
	subs   map[int]chan models.MarketSnapshot
	nextID int
	last   *models.MarketSnapshot

	stopChan chan struct{}
	running  bool
}

// NewMarketPusher 创建推送服务；period 为开盘时的拉取间隔
func NewMarketPusher(b broker.Broker, symbol string, period time.Duration) *MarketPusher {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &MarketPusher{
		broker:   b,
		symbol:   symbol,
		period:   period,
		subs:     make(map[int]chan models.MarketSnapshot),
		stopChan: make(chan struct{}),
	}
}

// Start 启动推送循环
func (p *MarketPusher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()
	go p.pushLoop(ctx)
}

// Stop 停止推送循环并关闭所有订阅
func (p *MarketPusher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		close(p.stopChan)
		p.running = false
	}
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
}

// Subscribe 订阅行情；已有快照时立即收到一份。返回的函数用于取消订阅
func (p *MarketPusher) Subscribe() (<-chan models.MarketSnapshot, func()) {
	ch := make(chan models.MarketSnapshot, 1)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	if p.last != nil {
		ch <- *p.last
	}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				close(c)
				delete(p.subs, id)
			}
		})
	}
}

// Subscribers 当前订阅数
func (p *MarketPusher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Latest 最近一次快照
func (p *MarketPusher) Latest() (models.MarketSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return models.MarketSnapshot{}, false
	}
	return *p.last, true
}

// Poll 拉取一次并推送
func (p *MarketPusher) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.period)
	defer cancel()
	snap, err := broker.Snapshot(ctx, p.broker, p.symbol)
	if err != nil {
		return err
	}
	p.broadcast(snap)
	return nil
}

// broadcast 推送给所有订阅者；慢的订阅者只保留最新一份
func (p *MarketPusher) broadcast(snap models.MarketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &snap
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// marketClosed 最近一次快照是否休市
func (p *MarketPusher) marketClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last != nil && !p.last.MarketOpen
}

// due 第 count 个周期是否需要拉取；休市时降频
func due(count int, closed bool) bool {
	return !closed || count%closedEvery == 0
}

// pushLoop 数据推送循环
func (p *MarketPusher) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	poll := func() {
		if err := p.Poll(ctx); err != nil {
			pusherLog.Warn("poll %s failed: %v", p.symbol, err)
		}
	}
	safeCall(poll)

	var count int
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			count++
			if due(count, p.marketClosed()) {
				safeCall(poll)
			}
		}
	}
}

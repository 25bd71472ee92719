// Package planner 把请求归类为固定意图，并把意图展开为不经过模型的工具计划。
package planner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
)

var log = logger.New("Planner")

// Category 请求意图
type Category string

const (
	CategoryPrice    Category = "PRICE"
	CategoryMarket   Category = "MARKET"
	CategoryPosition Category = "POSITION"
	CategoryTrade    Category = "TRADE"
	CategoryComplex  Category = "COMPLEX"
)

// 会话上下文参数
const (
	FollowUpWindow    = 5 * time.Minute
	SessionCapacity   = 100
	shortUtteranceLen = 12
	sessionKeyPrefix  = "session:"
)

// Rule 规则表中的一项，按顺序匹配
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// DefaultRules 默认规则表；PRICE 必须排在 MARKET 之前
var DefaultRules = []Rule{
	{CategoryTrade, regexp.MustCompile(`\b(trade|trading idea|sell|buy|enter|propose|proposal|execute|strangle|open (a |an )?(put|call|position))\b`)},
	{CategoryPosition, regexp.MustCompile(`\b(positions?|holdings?|portfolio|account|p&l|pnl|exposure|balance|buying power|margin)\b`)},
	{CategoryPrice, regexp.MustCompile(`(\bprice\b|\bquote\b|\bhow much\b|\btrading at\b|\bwhere(?:'s| is) spy\b|^\s*spy\s*\?*\s*$)`)},
	{CategoryMarket, regexp.MustCompile(`\b(market|vix|volatility|conditions|sentiment|open|closed|trend|outlook|session)\b`)},
}

// followUps 明确的追问短语
var followUps = map[string]bool{
	"and now":        true,
	"now":            true,
	"again":          true,
	"what about now": true,
	"how about now":  true,
	"refresh":        true,
	"update":         true,
	"still":          true,
	"and":            true,
	"same":           true,
	"what now":       true,
}

// Match 按规则顺序匹配，第一条命中即返回
func Match(rules []Rule, text string) (Category, bool) {
	norm := strings.ToLower(strings.TrimSpace(text))
	for _, r := range rules {
		if r.Pattern.MatchString(norm) {
			return r.Category, true
		}
	}
	return CategoryComplex, false
}

// IsFollowUp 是否追问：命中短语表，或是未命中任何规则的短句
func IsFollowUp(rules []Rule, text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.TrimRight(norm, "?!. ")
	if followUps[norm] {
		return true
	}
	if utf8.RuneCountInString(norm) >= shortUtteranceLen {
		return false
	}
	_, matched := Match(rules, text)
	return !matched
}

// SessionContext 会话的上一次分类
type SessionContext struct {
	Category  Category  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Classifier 意图分类器
type Classifier struct {
	rules    []Rule
	kv       store.KV
	sessions *store.Typed[SessionContext]
	clock    clock.Clock
}

// NewClassifier 创建分类器，会话上下文存放在 kv 中
func NewClassifier(kv store.KV, c clock.Clock, rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	if c == nil {
		c = clock.System{}
	}
	return &Classifier{
		rules:    rules,
		kv:       kv,
		sessions: store.NewTyped[SessionContext](kv, sessionKeyPrefix, FollowUpWindow),
		clock:    c,
	}
}

// Classify 分类并记录到会话上下文
func (c *Classifier) Classify(ctx context.Context, sessionID, text string) Category {
	cat := c.resolve(ctx, sessionID, text)
	if sessionID != "" {
		if err := c.Remember(ctx, sessionID, cat); err != nil {
			log.Warn("save session context %s: %v", sessionID, err)
		}
	}
	return cat
}

func (c *Classifier) resolve(ctx context.Context, sessionID, text string) Category {
	if IsFollowUp(c.rules, text) {
		if prior, ok := c.prior(ctx, sessionID); ok {
			log.Debug("follow-up %q reuses %s", text, prior)
			return prior
		}
		return CategoryPrice
	}
	cat, _ := Match(c.rules, text)
	return cat
}

func (c *Classifier) prior(ctx context.Context, sessionID string) (Category, bool) {
	if sessionID == "" {
		return "", false
	}
	sc, ok, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Warn("load session context %s: %v", sessionID, err)
		return "", false
	}
	if !ok || c.clock.Now().Sub(sc.Timestamp) >= FollowUpWindow {
		return "", false
	}
	return sc.Category, true
}

// Remember 直接写入会话上下文，供外部路径同步意图；超出 SessionCapacity 时淘汰最旧会话
func (c *Classifier) Remember(ctx context.Context, sessionID string, cat Category) error {
	if err := c.sessions.Put(ctx, sessionID, SessionContext{Category: cat, Timestamp: c.clock.Now()}); err != nil {
		return err
	}
	return c.trim(ctx)
}

// trim 按会话时间淘汰，只处理 session: 前缀，不依赖底层 KV 的容量策略
func (c *Classifier) trim(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(keys) <= SessionCapacity {
		return nil
	}

	type aged struct {
		id string
		at time.Time
	}
	all := make([]aged, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, sessionKeyPrefix)
		sc, ok, err := c.sessions.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		all = append(all, aged{id: id, at: sc.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].id < all[j].id
		}
		return all[i].at.Before(all[j].at)
	})
	for _, a := range all[:max(len(all)-SessionCapacity, 0)] {
		if err := c.sessions.Delete(ctx, a.id); err != nil {
			return fmt.Errorf("evict session %s: %w", a.id, err)
		}
	}
	return nil
}

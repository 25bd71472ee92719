package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/mcp"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/chat"
	"github.com/bearhedge/APEYOLO-sub001/internal/commandcenter"
	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/dualbrain"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/paths"
	"github.com/bearhedge/APEYOLO-sub001/internal/planner"
	"github.com/bearhedge/APEYOLO-sub001/internal/services"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
	"github.com/bearhedge/APEYOLO-sub001/internal/store/sqlite"
)

var log = logger.New("CLI")

// proposalCapacity 内存提案存储的条目上限；会话上下文另用一个 KV，不会挤占提案
const proposalCapacity = 1000

type app struct {
	cfg      *config.Config
	kv       store.KV
	sessions store.KV
	db       *sqlite.Store
	broker   broker.Broker
	agents   *agent.Container
	router   *tools.Router
	desk     *dualbrain.Desk
	chat     *chat.Service
	machine  *commandcenter.Machine
	pusher   *services.MarketPusher

	classifier *planner.Classifier

	closers []func() error
}

// wireApp 按依赖顺序组装全部组件；失败时释放已打开的资源
func wireApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.kv, err = openKV(cfg.Store); err != nil {
		return nil, fmt.Errorf("wire kv store: %w", err)
	}
	if closer, ok := a.kv.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	a.sessions = sessionKV(cfg.Store, a.kv)

	if a.db, err = openDatabase(cfg.Database.Path); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	a.broker = a.openBroker(cfg.Broker)

	a.agents = agent.NewContainer()
	if err = a.agents.Load(ctx, adk.NewModelFactory(), cfg.Models); err != nil {
		return nil, fmt.Errorf("wire models: %w", err)
	}
	tiers := make(map[models.Tier]*agent.TierAgent)
	for _, t := range []models.Tier{models.TierExecutor, models.TierThinker, models.TierProcessor, models.TierChat} {
		if tiers[t], err = a.agents.Get(t); err != nil {
			return nil, err
		}
	}

	loc, err := time.LoadLocation(cfg.Tick.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Tick.Timezone, err)
	}

	symbol := cfg.Tick.Symbol
	a.router = tools.NewRouter(tools.NewRegistry(a.broker, symbol, cfg.Timeouts.Tool))
	proposals := dualbrain.NewProposals(a.kv, clock.System{})
	a.desk = dualbrain.NewDesk(proposals, a.router, dualbrain.MandateGuard(cfg.Mandate, a.broker))
	critic := dualbrain.NewCritic(tiers[models.TierProcessor])
	a.desk.SetReviewer(dualbrain.CriticReviewer(critic, a.broker, symbol, cfg.Mandate, cfg.Timeouts.Validation))
	orchestrator := dualbrain.NewOrchestrator(
		dualbrain.NewProposer(tiers[models.TierThinker]),
		critic,
		proposals,
		clock.System{},
	)

	a.classifier = planner.NewClassifier(a.sessions, clock.System{}, planner.DefaultRules)
	a.chat = chat.NewService(chat.Options{
		Classifier:        a.classifier,
		Executor:          planner.NewExecutor(a.router),
		Router:            a.router,
		Model:             tiers[models.TierChat],
		Orchestrator:      orchestrator,
		Broker:            a.broker,
		Mandate:           cfg.Mandate,
		ValidationTimeout: cfg.Timeouts.Validation,
	})

	a.machine = commandcenter.New(commandcenter.Options{
		Broker:    a.broker,
		Executor:  tiers[models.TierExecutor],
		Thinker:   tiers[models.TierThinker],
		Knowledge: a.db,
		Audit:     a.db,
		Symbol:    symbol,
		Lessons:   cfg.Tick.Lessons,
		Location:  loc,
	})

	a.pusher = services.NewMarketPusher(a.broker, symbol, cfg.Broker.PollPeriod)
	log.Info("wired broker=%s store=%s symbol=%s", cfg.Broker.Kind, cfg.Store.Kind, symbol)
	return a, nil
}

func openKV(cfg config.StoreConfig) (store.KV, error) {
	if cfg.Kind == "redis" {
		return store.NewRedis(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return store.NewMemory(clock.System{}, proposalCapacity), nil
}

// sessionKV 内存模式下会话上下文独占一个容量为 SessionCapacity 的 KV；
// Redis 模式共用连接，由 Classifier 按 session: 前缀自行淘汰
func sessionKV(cfg config.StoreConfig, shared store.KV) store.KV {
	if cfg.Kind == "redis" {
		return shared
	}
	return store.NewMemory(clock.System{}, planner.SessionCapacity)
}

func openDatabase(path string) (*sqlite.Store, error) {
	if err := paths.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("prepare database directory: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

func (a *app) openBroker(cfg config.BrokerConfig) broker.Broker {
	if cfg.Kind == "mcp" {
		m := mcp.NewManager("broker", cfg.MCP)
		a.closers = append(a.closers, m.Close)
		return broker.NewMCP(m)
	}
	return broker.NewREST(cfg.BaseURL, cfg.Timeout)
}

// Close 逆序释放资源
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

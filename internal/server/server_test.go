package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/adk/adktest"
	"github.com/bearhedge/APEYOLO-sub001/internal/adk/tools"
	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker/brokertest"
	"github.com/bearhedge/APEYOLO-sub001/internal/chat"
	"github.com/bearhedge/APEYOLO-sub001/internal/commandcenter"
	"github.com/bearhedge/APEYOLO-sub001/internal/dualbrain"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/clock"
	"github.com/bearhedge/APEYOLO-sub001/internal/planner"
	"github.com/bearhedge/APEYOLO-sub001/internal/services"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
)

type memAudit struct {
	mu   sync.Mutex
	recs []models.TickRecord
}

func (a *memAudit) AppendTick(_ context.Context, rec *models.TickRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append([]models.TickRecord{*rec}, a.recs...)
	return nil
}

func (a *memAudit) RecentTicks(context.Context, int) ([]models.TickRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.TickRecord(nil), a.recs...), nil
}

type fixture struct {
	broker *brokertest.Fake
	desk   *dualbrain.Desk
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC))
	kv := store.NewMemory(clk, 0)
	b := brokertest.New()
	router := tools.NewRouter(tools.NewRegistry(b, "SPY", time.Second))
	mandate := models.Mandate{AllowedSymbols: []string{"SPY"}, MaxContracts: 2}

	agents := agent.NewContainer()
	for _, tier := range []models.Tier{models.TierExecutor, models.TierThinker, models.TierProcessor, models.TierChat} {
		agents.Set(tier, models.AIConfig{Provider: models.AIProviderOllama, ModelName: string(tier), Timeout: time.Second},
			adktest.Text(string(tier), `{"proceed":false,"reason":"quiet"}`))
	}
	get := func(tier models.Tier) *agent.TierAgent {
		a, err := agents.Get(tier)
		require.NoError(t, err)
		return a
	}

	proposals := dualbrain.NewProposals(kv, clk)
	orch := dualbrain.NewOrchestrator(dualbrain.NewProposer(get(models.TierThinker)), dualbrain.NewCritic(get(models.TierProcessor)), proposals, clk)
	desk := dualbrain.NewDesk(proposals, router, dualbrain.MandateGuard(mandate, b))

	f := &fixture{broker: b, desk: desk}
	f.srv = New(":0", Deps{
		Chat: chat.NewService(chat.Options{
			Classifier:   planner.NewClassifier(kv, clk, planner.DefaultRules),
			Executor:     planner.NewExecutor(router),
			Router:       router,
			Model:        get(models.TierChat),
			Orchestrator: orch,
			Broker:       b,
			Mandate:      mandate,
		}),
		Desk: desk,
		Machine: commandcenter.New(commandcenter.Options{
			Broker:   b,
			Executor: get(models.TierExecutor),
			Thinker:  get(models.TierThinker),
			Audit:    &memAudit{},
			Clock:    clk,
		}),
		Pusher:        services.NewMarketPusher(b, "SPY", time.Second),
		Agents:        agents,
		StreamTimeout: 5 * time.Second,
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) addProposal(t *testing.T) *models.Proposal {
	t.Helper()
	p, err := f.desk.Proposals().Add(context.Background(), &models.Proposal{
		Action: models.ActionSell,
		Terms: models.TradeTerms{Symbol: "SPY", OptionType: models.OptionPut, Strike: decimal.NewFromInt(595),
			Expiry: "2025-01-15", Quantity: 1, Price: decimal.RequireFromString("0.85")},
		Source: "consensus",
	})
	require.NoError(t, err)
	return p
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestChatStreamsPlan(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"what is the SPY price?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: plan")
	assert.Contains(t, body, "SPY: $601.23")
	assert.Equal(t, 1, strings.Count(body, "event: done"))
}

func TestChatRejectsBadJSON(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid", body.Code)
}

func TestTickEndpoints(t *testing.T) {
	f := newFixture(t)
	f.broker.SetMarketOpen(false)

	rec := f.do(http.MethodPost, "/api/agent/tick", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.TickResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, models.DecisionWait, res.Decision)

	rec = f.do(http.MethodGet, "/api/agent/ticks?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Ticks []models.TickRecord `json:"ticks"`
		State models.Decision     `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Ticks, 1)
	assert.Equal(t, models.DecisionWait, hist.State)
}

func TestApproveExecutesAndRemovesProposal(t *testing.T) {
	f := newFixture(t)
	p := f.addProposal(t)

	rec := f.do(http.MethodGet, "/api/agent/proposals", "")
	assert.Contains(t, rec.Body.String(), p.ID)

	rec = f.do(http.MethodPost, "/api/agent/proposals/"+p.ID+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"executionResult"`)
	assert.Len(t, f.broker.Orders, 1)

	rec = f.do(http.MethodPost, "/api/agent/proposals/"+p.ID+"/approve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}

func TestRejectAndModify(t *testing.T) {
	f := newFixture(t)
	p := f.addProposal(t)

	rec := f.do(http.MethodPost, "/api/agent/proposals/"+p.ID+"/modify", `{"legIndex":1,"quantity":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/agent/proposals/"+p.ID+"/modify", `{"legIndex":0,"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next models.Proposal
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&next))
	assert.NotEqual(t, p.ID, next.ID)
	assert.Equal(t, 2, next.Terms.Quantity)

	rec = f.do(http.MethodPost, "/api/agent/proposals/"+next.ID+"/reject", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ps, err := f.desk.Proposals().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestApproveSurfacesModificationNote(t *testing.T) {
	f := newFixture(t)
	p := f.addProposal(t)

	rec := f.do(http.MethodPost, "/api/agent/proposals/"+p.ID+"/modify", `{"legIndex":0,"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next models.Proposal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))

	rec = f.do(http.MethodPost, "/api/agent/proposals/"+next.ID+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Note string `json:"note"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "modified from "+p.ID+"; not re-validated", body.Note)
}

func TestModelsAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/agent/models", "")
	assert.Contains(t, rec.Body.String(), `"tier":"thinker"`)

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "apeyolo_requests_total")
}

func TestContextStreamEndsOnDisconnect(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.srv.Handler())
	defer srv.Close()
	require.NoError(t, f.srv.deps.Pusher.Poll(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/agent/context/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	assert.Equal(t, "context", event)
	assert.Contains(t, data, `"spyPrice":601.23`)
	cancel()
}

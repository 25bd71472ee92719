package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/broker"
	"github.com/bearhedge/APEYOLO-sub001/internal/broker/brokertest"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

func TestSnapshot(t *testing.T) {
	f := brokertest.New()
	snap, err := broker.Snapshot(context.Background(), f, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 601.23, snap.SPY)
	assert.Equal(t, 14.8, snap.VIX)
	assert.True(t, snap.MarketOpen)
	assert.Equal(t, 2, f.Calls("market"))

	f.MarketErr = apperr.New(apperr.KindOffline, "bridge", "down")
	_, err = broker.Snapshot(context.Background(), f, "SPY")
	assert.Equal(t, apperr.KindOffline, apperr.KindOf(err))
}

func TestRESTClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/market-data/SPY", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Quote{Symbol: "SPY", Price: 601.23, MarketOpen: true})
	})
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"SPY 250115P595","secType":"OPT","optionType":"PUT","strike":"595","quantity":-1}]`))
	})
	mux.HandleFunc("/api/account", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var o broker.Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&o))
		assert.Equal(t, models.ActionSell, o.Action)
		_ = json.NewEncoder(w).Encode(models.ExecutionResult{OrderID: "42", Status: "Submitted"})
	})
	mux.HandleFunc("/api/engine/run", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := broker.NewREST(srv.URL+"/api/", time.Second)
	ctx := context.Background()

	q, err := c.GetMarketData(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 601.23, q.Price)

	pos, err := c.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.True(t, models.HasOpenOption(pos))
	assert.True(t, decimal.NewFromInt(595).Equal(pos[0].Strike))

	_, err = c.GetAccount(ctx)
	assert.Equal(t, apperr.KindOffline, apperr.KindOf(err))

	res, err := c.ExecuteTrade(ctx, broker.Order{Action: models.ActionSell, Terms: models.TradeTerms{Symbol: "SPY", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)

	_, err = c.RunEngine(ctx, broker.EngineRequest{Symbol: "SPY"})
	assert.Equal(t, apperr.KindMalformed, apperr.KindOf(err))

	_, err = c.GetMarketData(ctx, "QQQ")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRESTOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := broker.NewREST(url, time.Second).GetPositions(context.Background())
	assert.Equal(t, apperr.KindOffline, apperr.KindOf(err))
}

type fakeCaller struct {
	replies map[string]string
	args    map[string]map[string]any
	err     error
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.args == nil {
		f.args = map[string]map[string]any{}
	}
	f.args[name] = args
	return f.replies[name], nil
}

func TestMCPBroker(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		"get_market_data": `{"price": 14.8}`,
		"get_account":     `{"accountId":"DU1","netLiquidation":"1000.5"}`,
		"execute_trade":   `{"orderId":"7","status":"Filled","filledQty":1}`,
		"get_positions":   `oops`,
	}}
	b := broker.NewMCP(caller)
	ctx := context.Background()

	q, err := b.GetMarketData(ctx, "VIX")
	require.NoError(t, err)
	assert.Equal(t, "VIX", q.Symbol)
	assert.Equal(t, "VIX", caller.args["get_market_data"]["symbol"])

	a, err := b.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000.5", a.NetLiq.String())

	res, err := b.ExecuteTrade(ctx, broker.Order{ProposalID: "p1", Action: models.ActionSell})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilledQty)
	assert.Equal(t, "p1", caller.args["execute_trade"]["proposalId"])

	_, err = b.GetPositions(ctx)
	assert.Equal(t, apperr.KindMalformed, apperr.KindOf(err))

	caller.err = errors.New("session closed")
	_, err = b.GetAccount(ctx)
	assert.EqualError(t, err, "session closed")
}

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
)

var log = logger.New("Broker")

// REST 通过 HTTP 访问券商桥接服务
type REST struct {
	BaseURL string
	Client  *http.Client
}

var _ Broker = (*REST)(nil)

// NewREST 创建 REST 客户端
func NewREST(baseURL string, timeout time.Duration) *REST {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &REST{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// GetMarketData 获取单个标的行情
func (r *REST) GetMarketData(ctx context.Context, symbol string) (*models.Quote, error) {
	var q models.Quote
	if err := r.do(ctx, http.MethodGet, "/market-data/"+url.PathEscape(symbol), nil, &q); err != nil {
		return nil, err
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return &q, nil
}

// GetPositions 获取持仓
func (r *REST) GetPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	if err := r.do(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount 获取账户
func (r *REST) GetAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	if err := r.do(ctx, http.MethodGet, "/account", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RunEngine 运行策略引擎
func (r *REST) RunEngine(ctx context.Context, req EngineRequest) (*models.EngineSignal, error) {
	var s models.EngineSignal
	if err := r.do(ctx, http.MethodPost, "/engine/run", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExecuteTrade 提交订单
func (r *REST) ExecuteTrade(ctx context.Context, order Order) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	if err := r.do(ctx, http.MethodPost, "/orders", order, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *REST) do(ctx context.Context, method, path string, body, out any) error {
	op := "broker " + method + " " + path
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalid, op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalid, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.Client.Do(req)
	if err != nil {
		return apperr.Classify(op, err)
	}
	defer resp.Body.Close()
	log.Debug("%s -> %d (%s)", op, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindMalformed, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func statusError(op string, status int, body string) error {
	msg := fmt.Sprintf("status %d", status)
	if body != "" {
		msg += ": " + body
	}
	switch {
	case status == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, op, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperr.New(apperr.KindInvalid, op, msg)
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusUnauthorized:
		// 桥接服务未登录或上游网关不可用
		return apperr.New(apperr.KindOffline, op, msg)
	case status == http.StatusGatewayTimeout:
		return apperr.New(apperr.KindTimeout, op, msg)
	default:
		return apperr.New(apperr.KindTool, op, msg)
	}
}

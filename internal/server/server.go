// Package server 暴露 HTTP 接口：对话与协商的 SSE、tick、提案审批与行情推送。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bearhedge/APEYOLO-sub001/internal/agent"
	"github.com/bearhedge/APEYOLO-sub001/internal/chat"
	"github.com/bearhedge/APEYOLO-sub001/internal/commandcenter"
	"github.com/bearhedge/APEYOLO-sub001/internal/dualbrain"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/metrics"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/apperr"
	"github.com/bearhedge/APEYOLO-sub001/internal/services"
	"github.com/bearhedge/APEYOLO-sub001/internal/sse"
)

var log = logger.New("Server")

// Deps 路由依赖
type Deps struct {
	Chat          *chat.Service
	Desk          *dualbrain.Desk
	Machine       *commandcenter.Machine
	Pusher        *services.MarketPusher
	Agents        *agent.Container
	StreamTimeout time.Duration
}

// Server HTTP 服务
type Server struct {
	deps       Deps
	handler    http.Handler
	httpServer *http.Server
	startTime  time.Time
}

// ErrorBody 结构化错误响应
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New 创建服务
func New(addr string, d Deps) *Server {
	s := &Server{deps: d, startTime: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/agent/operate", s.handleOperate)
	mux.HandleFunc("POST /api/agent/tick", s.handleTick)
	mux.HandleFunc("GET /api/agent/ticks", s.handleTicks)
	mux.HandleFunc("GET /api/agent/models", s.handleModels)
	mux.HandleFunc("GET /api/agent/context/stream", s.handleContextStream)
	mux.HandleFunc("GET /api/agent/proposals", s.handleListProposals)
	mux.HandleFunc("POST /api/agent/proposals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/agent/proposals/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/agent/proposals/{id}/modify", s.handleModify)

	s.handler = instrument(mux)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 根处理器
func (s *Server) Handler() http.Handler { return s.handler }

// Start 阻塞监听，Shutdown 后返回 nil
func (s *Server) Start() error {
	log.Info("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !decode(w, r, &req) {
		return
	}
	s.stream(w, r, func(ctx context.Context, sink sse.Sink) error {
		return s.deps.Chat.Chat(ctx, req, sink)
	})
}

func (s *Server) handleOperate(w http.ResponseWriter, r *http.Request) {
	var req chat.OperateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperr.Wrap(apperr.KindInvalid, "decode request", err))
		return
	}
	s.stream(w, r, func(ctx context.Context, sink sse.Sink) error {
		_, err := s.deps.Chat.Operate(ctx, req, sink)
		return err
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, fn sse.Handler) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	sse.Run(r.Context(), sw, s.deps.StreamTimeout, fn)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Machine.Tick(r.Context())
	if errors.Is(err, commandcenter.ErrTickInProgress) {
		writeJSON(w, http.StatusConflict, ErrorBody{Code: "busy", Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.deps.Machine.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticks": recs, "state": s.deps.Machine.State()})
}

type modelInfo struct {
	Tier     string `json:"tier"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	out := []modelInfo{}
	if s.deps.Agents != nil {
		for _, a := range s.deps.Agents.All() {
			out = append(out, modelInfo{Tier: string(a.Tier), Provider: string(a.Config.Provider), Model: a.Config.ModelName})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleContextStream 持续推送行情，直到客户端断开
func (s *Server) handleContextStream(w http.ResponseWriter, r *http.Request) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	ch, cancel := s.deps.Pusher.Subscribe()
	defer cancel()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	start := time.Now()
	for {
		select {
		case <-r.Context().Done():
			_ = sw.Done(sse.Done{Success: true, DurationMs: time.Since(start).Milliseconds()})
			return
		case snap, ok := <-ch:
			if !ok {
				_ = sw.Done(sse.Done{Success: true, DurationMs: time.Since(start).Milliseconds()})
				return
			}
			if err := sw.Send(sse.EventContext, sse.ContextFrom(snap)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	ps, err := s.deps.Desk.Proposals().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": ps})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.deps.Desk.Proposals().Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.deps.Desk.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sse.Execution{ExecutionResult: res, Note: p.Note})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Desk.Reject(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": r.PathValue("id")})
}

type modifyRequest struct {
	LegIndex int `json:"legIndex"`
	dualbrain.Modification
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.deps.Desk.Modify(r.Context(), r.PathValue("id"), req.LegIndex, req.Modification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, apperr.Wrap(apperr.KindInvalid, "decode request", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response: %v", err)
	}
}

// writeError 按错误种类映射状态码，客户端只看到 code 与 message
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed: %v", err)
	}
	writeJSON(w, status, ErrorBody{Code: string(apperr.KindOf(err)), Message: err.Error()})
}

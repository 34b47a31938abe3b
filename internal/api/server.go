package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Maxxit-Agent/internal/errors"
	"Maxxit-Agent/internal/observability/metrics"
	"Maxxit-Agent/internal/onboarding"
	"Maxxit-Agent/pkg/logger"
)

// Server 负责暴露引导流程的 REST 接口。
type Server struct {
	addr    string
	service *onboarding.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *onboarding.Service) *Server {
	return &Server{addr: addr, service: service}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整的路由。便于测试直接挂到 httptest 上。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/onboarding/", s.instrument("onboarding", http.HandlerFunc(s.handleOnboarding)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// handleOnboarding 按路径尾段分发引导操作。
func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "引导服务未初始化")
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/onboarding/"), "/")
	switch r.Method {
	case http.MethodPost:
		switch action {
		case "generate-agent":
			s.handleGenerateAgent(w, r)
		case "generate-link":
			s.handleGenerateLink(w, r)
		case "confirm-link":
			s.handleConfirmLink(w, r)
		case "finalize-setup":
			s.handleFinalizeSetup(w, r)
		default:
			writeError(w, http.StatusNotFound, xerrors.CodeUnknownOperation, "未知的引导操作: "+action)
		}
	case http.MethodGet:
		switch action {
		case "poll-link-status":
			s.handlePollLinkStatus(w, r)
		case "check-setup":
			s.handleCheckSetup(w, r)
		default:
			writeError(w, http.StatusNotFound, xerrors.CodeUnknownOperation, "未知的引导操作: "+action)
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.CodeInvalidArgument, "仅支持 GET/POST")
	}
}

type walletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type generateAgentResponse struct {
	AgentAddress string `json:"agentAddress"`
	IsNew        bool   `json:"isNew"`
}

// handleGenerateAgent 为钱包生成（或返回既有的）智能体地址。
func (s *Server) handleGenerateAgent(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "walletAddress 不能为空")
		return
	}

	addr, isNew, err := s.service.GenerateAgent(r.Context(), req.WalletAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if isNew {
		metrics.IncAgentGenerated()
	}
	writeJSON(w, http.StatusOK, generateAgentResponse{AgentAddress: addr, IsNew: isNew})
}

// handleGenerateLink 签发绑定码或返回已绑定账号。
func (s *Server) handleGenerateLink(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "walletAddress 不能为空")
		return
	}

	offer, err := s.service.RequestLink(r.Context(), req.WalletAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !offer.AlreadyLinked {
		metrics.IncLinkCodeIssued()
	}
	writeJSON(w, http.StatusOK, offer)
}

type confirmLinkRequest struct {
	LinkCode string             `json:"linkCode"`
	Account  onboarding.Account `json:"telegramUser"`
}

type confirmLinkResponse struct {
	Success bool   `json:"success"`
	Wallet  string `json:"wallet"`
}

// handleConfirmLink 是外部消息渠道确认入口的演示版本，线上由机器人侧
// 通过队列投递同样的事件。
func (s *Server) handleConfirmLink(w http.ResponseWriter, r *http.Request) {
	var req confirmLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.LinkCode) == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "linkCode 不能为空")
		return
	}

	wallet, err := s.service.Confirm(r.Context(), req.LinkCode, req.Account)
	if err != nil {
		if stdErrors.Is(err, onboarding.ErrCodeNotFound) {
			metrics.IncLinkConfirmation("unknown_code")
		} else {
			metrics.IncLinkConfirmation("error")
		}
		writeServiceError(w, err)
		return
	}
	metrics.IncLinkConfirmation("linked")
	writeJSON(w, http.StatusOK, confirmLinkResponse{Success: true, Wallet: wallet})
}

// handlePollLinkStatus 查询绑定状态。query 参数 wallet 必填，code 选填。
func (s *Server) handlePollLinkStatus(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "wallet 参数不能为空")
		return
	}

	status, err := s.service.PollStatus(r.Context(), wallet, r.URL.Query().Get("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type finalizeRequest struct {
	WalletAddress string                 `json:"walletAddress"`
	AccountRef    string                 `json:"accountRef"`
	Preferences   onboarding.Preferences `json:"tradingPreferences"`
}

// handleFinalizeSetup 接受交易偏好并完成引导。
func (s *Server) handleFinalizeSetup(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "walletAddress 不能为空")
		return
	}

	result, err := s.service.Finalize(r.Context(), req.WalletAddress, req.AccountRef, req.Preferences)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.IncSetupCompleted()
	s.refreshStats(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// handleCheckSetup 查询引导完成状态。
func (s *Server) handleCheckSetup(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, onboarding.CodeValidation, "wallet 参数不能为空")
		return
	}

	status, err := s.service.CheckSetup(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// refreshStats 将存储统计同步到指标。失败只记日志，不影响请求。
func (s *Server) refreshStats(ctx context.Context) {
	stats, err := s.service.Stats(ctx)
	if err != nil {
		logger.L().Warn("刷新引导统计失败", slog.Any("error", err))
		return
	}
	metrics.SetWalletStats(stats.Total, stats.Linked, stats.SetupComplete)
}

// statusRecorder 捕获响应码供指标中间件使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器附加请求标识与指标采集。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))

		logger.L().Debug("请求处理完成",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Int("status", recorder.status),
		)
	})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeServiceError 将服务层错误映射为 HTTP 状态码。
func writeServiceError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case code == onboarding.CodeValidation || code == xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case stdErrors.Is(err, onboarding.ErrWalletNotFound) || stdErrors.Is(err, onboarding.ErrCodeNotFound):
		status = http.StatusNotFound
	case stdErrors.Is(err, onboarding.ErrAlreadyLinked):
		status = http.StatusConflict
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: string(code), Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

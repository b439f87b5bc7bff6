package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"taste-agent/internal/domain"
	"taste-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerUserID        = "X-User-Id"

	defaultRequestsPerMinute = 20
)

type ChatService interface {
	ProcessTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnResult, error)
	GetHistory(userID, conversationID string) (domain.ConversationHistory, error)
	ClearHistory(userID, conversationID string) error
}

type chatRequest struct {
	UserID         string         `json:"user_id"`
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

type chatResponse struct {
	Message        string            `json:"message"`
	ToolCalls      []domain.ToolCall `json:"tool_calls"`
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Outcome        string            `json:"outcome"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler serves the chat API behind an API Gateway proxy integration.
type Handler struct {
	svc      ChatService
	logger   *slog.Logger
	throttle *userThrottle
}

type Option func(*Handler)

// WithRequestsPerMinute sets the per-user limit on POST /chat.
func WithRequestsPerMinute(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.throttle = newUserThrottle(n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(svc ChatService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	h := &Handler{
		svc:      svc,
		logger:   slog.Default(),
		throttle: newUserThrottle(defaultRequestsPerMinute),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	path := strings.TrimRight(event.Path, "/")
	switch {
	case path == "/chat" && event.HTTPMethod == http.MethodPost:
		return h.chat(ctx, log, event, correlationID), nil
	case strings.HasPrefix(path, "/conversations/"):
		convID := event.PathParameters["conversationId"]
		if convID == "" {
			convID = strings.TrimPrefix(path, "/conversations/")
		}
		userID := userIDFrom(event, event.QueryStringParameters["user_id"])
		switch event.HTTPMethod {
		case http.MethodGet:
			return h.history(log, userID, convID, correlationID), nil
		case http.MethodDelete:
			return h.clear(log, userID, convID, correlationID), nil
		}
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"}, correlationID), nil
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"}, correlationID), nil
}

func (h *Handler) chat(ctx context.Context, log *slog.Logger, event events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"}, correlationID)
	}
	userID := userIDFrom(event, req.UserID)

	if userID != "" && !h.throttle.allow(userID) {
		log.Warn("request throttled", "user_id", userID)
		return jsonResponse(http.StatusTooManyRequests, errorResponse{Error: string(usecase.ErrorRateLimited), Reason: "too_many_requests"}, correlationID)
	}

	res, err := h.svc.ProcessTurn(ctx, usecase.TurnInput{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Context:        req.Context,
	})
	if err != nil {
		return h.errorResponse(log, err, correlationID)
	}

	calls := res.ToolCalls
	if calls == nil {
		calls = []domain.ToolCall{}
	}
	status := http.StatusOK
	if res.Outcome == usecase.OutcomeRateLimited {
		status = http.StatusTooManyRequests
	}
	log.Info("turn completed", "conversation_id", res.ConversationID, "outcome", res.Outcome, "tool_calls", len(calls))
	return jsonResponse(status, chatResponse{
		Message:        res.FinalMessage,
		ToolCalls:      calls,
		ConversationID: res.ConversationID,
		MessageID:      res.MessageID,
		Outcome:        string(res.Outcome),
	}, correlationID)
}

func (h *Handler) history(log *slog.Logger, userID, convID, correlationID string) events.APIGatewayProxyResponse {
	hist, err := h.svc.GetHistory(userID, convID)
	if err != nil {
		return h.errorResponse(log, err, correlationID)
	}
	if hist.Messages == nil {
		hist.Messages = []domain.Message{}
	}
	return jsonResponse(http.StatusOK, hist, correlationID)
}

func (h *Handler) clear(log *slog.Logger, userID, convID, correlationID string) events.APIGatewayProxyResponse {
	if err := h.svc.ClearHistory(userID, convID); err != nil {
		return h.errorResponse(log, err, correlationID)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNoContent,
		Headers:    map[string]string{headerCorrelationID: correlationID},
	}
}

func (h *Handler) errorResponse(log *slog.Logger, err error, correlationID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, correlationID)
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", err)
	} else {
		log.Info("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}, correlationID)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(raw),
	}
}

// userIDFrom prefers the X-User-Id header, set by the authorizer, over the
// id the client sent.
func userIDFrom(event events.APIGatewayProxyRequest, fallback string) string {
	if id := strings.TrimSpace(headerValue(event.Headers, headerUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(fallback)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// userThrottle keeps one limiter per user. A limiter idle for a full
// minute has refilled its burst, so it is dropped when the next new user
// arrives.
type userThrottle struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	perMin   int
	now      func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserThrottle(perMinute int) *userThrottle {
	return &userThrottle{
		limiters: make(map[string]*userLimiter),
		perMin:   perMinute,
		now:      time.Now,
	}
}

func (t *userThrottle) allow(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	l, ok := t.limiters[userID]
	if !ok {
		t.sweep(now)
		// full burst up front, then refill evenly over the minute
		l = &userLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.perMin)), t.perMin)}
		t.limiters[userID] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (t *userThrottle) sweep(now time.Time) {
	for id, l := range t.limiters {
		if now.Sub(l.lastSeen) >= time.Minute {
			delete(t.limiters, id)
		}
	}
}

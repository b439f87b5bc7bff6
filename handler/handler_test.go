package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"taste-agent/internal/domain"
	"taste-agent/internal/usecase"
)

type stubService struct {
	out     usecase.TurnResult
	err     error
	in      usecase.TurnInput
	calls   int
	history domain.ConversationHistory
	histErr error
	visits []string
}

func (s *stubService) ProcessTurn(_ context.Context, in usecase.TurnInput) (usecase.TurnResult, error) {
	s.in = in
	s.calls++
	return s.out, s.err
}

func (s *stubService) GetHistory(userID, conversationID string) (domain.ConversationHistory, error) {
	s.visits = append(s.visits, "get:"+userID+"/"+conversationID)
	return s.history, s.histErr
}

func (s *stubService) ClearHistory(userID, conversationID string) error {
	s.visits = append(s.visits, "clear:"+userID+"/"+conversationID)
	return s.histErr
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/chat",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustNewHandler(t *testing.T, svc ChatService, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(svc, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_ChatHappyPath(t *testing.T) {
	svc := &stubService{out: usecase.TurnResult{
		FinalMessage:   "Try Phở Thìn on Lò Đúc.",
		ToolCalls:      []domain.ToolCall{{CallID: "call_1", Name: "search_restaurants", Arguments: map[string]any{"query": "phở"}}},
		ConversationID: "conv_1",
		MessageID:      "msg_1",
		Outcome:        usecase.OutcomeOK,
	}}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"phở near me","conversation_id":"conv_1","context":{"city":"Hà Nội"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{
		UserID:         "u1",
		Message:        "phở near me",
		ConversationID: "conv_1",
		Context:        map[string]any{"city": "Hà Nội"},
	}, svc.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "Try Phở Thìn on Lò Đúc.", out.Message)
	require.Equal(t, "conv_1", out.ConversationID)
	require.Equal(t, "msg_1", out.MessageID)
	require.Equal(t, "ok", out.Outcome)
	require.Len(t, out.ToolCalls, 1)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_EmptyToolCallsEncodeAsArray(t *testing.T) {
	svc := &stubService{out: usecase.TurnResult{FinalMessage: "hi", ConversationID: "c", Outcome: usecase.OutcomeOK}}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"hi"}`))
	require.NoError(t, err)
	require.Contains(t, resp.Body, `"tool_calls":[]`)
}

func TestHandle_RateLimitedOutcomeIs429(t *testing.T) {
	svc := &stubService{out: usecase.TurnResult{FinalMessage: "limit", ConversationID: "c", Outcome: usecase.OutcomeRateLimited}}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"hi","conversation_id":"c"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "rate_limited", out.Outcome)
	require.Equal(t, "limit", out.Message)
}

func TestHandle_UserHeaderOverridesBody(t *testing.T) {
	svc := &stubService{out: usecase.TurnResult{Outcome: usecase.OutcomeOK}}
	h := mustNewHandler(t, svc)

	event := makeEvent(`{"user_id":"spoofed","message":"hi"}`)
	event.Headers["x-user-id"] = "real-user"
	_, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "real-user", svc.in.UserID)
}

func TestHandle_InvalidBody(t *testing.T) {
	h := mustNewHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_json", out.Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "conversation_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "x"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "ssm_load_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustNewHandler(t, &stubService{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := mustNewHandler(t, &stubService{out: usecase.TurnResult{Outcome: usecase.OutcomeOK}})

	event := makeEvent(`{"user_id":"u1","message":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_ThrottlesPerUser(t *testing.T) {
	svc := &stubService{out: usecase.TurnResult{Outcome: usecase.OutcomeOK}}
	h := mustNewHandler(t, svc, WithRequestsPerMinute(2))

	for i := 0; i < 2; i++ {
		resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"hi"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := h.Handle(context.Background(), makeEvent(`{"user_id":"u1","message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorRateLimited), parseBody[errorResponse](t, resp.Body).Error)
	require.Equal(t, 2, svc.calls)

	resp, err = h.Handle(context.Background(), makeEvent(`{"user_id":"u2","message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_GetHistory(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{history: domain.ConversationHistory{
		UserID:         "u1",
		ConversationID: "conv_1",
		Messages:       []domain.Message{{ID: "msg_1", Role: domain.RoleUser, Text: "hi", Timestamp: ts}},
		CreatedAt:      ts,
		LastUpdated:    ts,
	}}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/conversations/conv_1",
		PathParameters:        map[string]string{"conversationId": "conv_1"},
		QueryStringParameters: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"get:u1/conv_1"}, svc.visits)

	out := parseBody[domain.ConversationHistory](t, resp.Body)
	require.Len(t, out.Messages, 1)
	require.Equal(t, "msg_1", out.Messages[0].ID)
}

func TestHandle_GetHistoryNotFound(t *testing.T) {
	svc := &stubService{histErr: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "conversation_not_found"}}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/conversations/nope",
		QueryStringParameters: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, []string{"get:u1/nope"}, svc.visits)
}

func TestHandle_DeleteConversation(t *testing.T) {
	svc := &stubService{}
	h := mustNewHandler(t, svc)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodDelete,
		Path:       "/conversations/conv_9",
		Headers:    map[string]string{"X-User-Id": "u7"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, []string{"clear:u7/conv_9"}, svc.visits)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := mustNewHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/ask"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodPut, Path: "/conversations/c"})
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUserThrottle_EvictsIdleUsers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := newUserThrottle(1)
	th.now = func() time.Time { return now }

	require.True(t, th.allow("u1"))
	require.False(t, th.allow("u1"))
	require.True(t, th.allow("u2"))
	require.Equal(t, 2, th.size())

	now = now.Add(30 * time.Second)
	require.True(t, th.allow("u3"))
	require.Equal(t, 3, th.size(), "recent users are kept")

	now = now.Add(time.Minute)
	require.True(t, th.allow("u4"))
	require.Equal(t, 1, th.size())

	// u1 starts over with a full burst after eviction.
	require.True(t, th.allow("u1"))
}

func (t *userThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
